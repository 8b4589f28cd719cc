package staking

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"stakevault/core/types"
	"stakevault/crypto"
)

// Engine orchestrates the staking ledger: it validates inputs, refreshes the
// accrual accumulator, settles pending rewards, mutates positions, and
// enforces the global cap. Every mutating entry point runs as one critical
// section under the engine mutex; the mutex doubles as the reentrancy
// exclusion around the ledger.
type Engine struct {
	mu        sync.Mutex
	params    Params
	tiers     *TierTable
	acc       *Accumulator
	ledger    *PositionLedger
	custodian Custodian
	events    []types.Event
	now       func() time.Time
}

// NewEngine wires an engine to its custodial collaborator.
func NewEngine(params Params, custodian Custodian) (*Engine, error) {
	params = params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if custodian == nil {
		return nil, errNilCustodian
	}
	tiers := NewTierTable()
	e := &Engine{
		params:    params,
		tiers:     tiers,
		ledger:    NewPositionLedger(tiers),
		custodian: custodian,
		now:       time.Now,
	}
	e.acc = NewAccumulator(params.RewardRatePerSecond, e.timestamp())
	return e, nil
}

// SetClock overrides the wall clock. Tests drive accrual with a fake clock;
// production keeps time.Now. While the ledger is still pristine the
// accumulator is re-anchored to the new clock.
func (e *Engine) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
	if e.acc.TotalStaked.Sign() == 0 && e.acc.AccPerShare.Sign() == 0 {
		e.acc.LastUpdate = e.timestamp()
	}
}

func (e *Engine) timestamp() uint64 {
	ts := e.now().UTC().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) appendEvent(eventType string, attrs map[string]string) {
	e.events = append(e.events, types.Event{Type: eventType, Attributes: attrs})
}

// DrainEvents returns and clears the events emitted since the last drain.
func (e *Engine) DrainEvents() []types.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.events
	e.events = nil
	return out
}

func (e *Engine) requireAdmin(caller crypto.Address) error {
	if !caller.Equal(e.params.Admin) {
		return ErrUnauthorized
	}
	return nil
}

// settleAll harvests every open position for the owner against the already
// refreshed accumulator and returns the summed reward.
func (e *Engine) settleAll(owner crypto.Address, now uint64) (*big.Int, error) {
	total := big.NewInt(0)
	for _, idx := range e.ledger.OpenIndices(owner) {
		r, err := e.ledger.Settle(owner, idx, e.acc.AccPerShare, now)
		if err != nil {
			return nil, err
		}
		total.Add(total, r)
	}
	return total, nil
}

// transferOrRollback runs the operation's custodial batch. On failure it
// restores the saved accumulator and position state so the ledger and the
// asset balances never diverge.
func (e *Engine) transferOrRollback(owner crypto.Address, savedAcc *Accumulator, savedPositions []*Position, legs []TransferLeg) error {
	if len(legs) == 0 {
		return nil
	}
	if err := e.custodian.TransferBatch(e.params.StakeToken, legs); err != nil {
		e.acc = savedAcc
		e.ledger.restoreAccount(owner, savedPositions)
		return fmt.Errorf("%w: %v", ErrTransferFailure, err)
	}
	return nil
}

// Deposit opens a new position under the chosen tier. Any rewards already
// pending on the caller's open positions are harvested first, so the new
// deposit's checkpoint cannot dilute them.
func (e *Engine) Deposit(caller crypto.Address, amount *big.Int, tierIndex int) (int, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return 0, 0, fmt.Errorf("%w: amount must be positive", ErrInvalidParameter)
	}
	tier, err := e.tiers.At(tierIndex)
	if err != nil {
		return 0, 0, err
	}
	if e.params.StakingCap != nil && e.params.StakingCap.Sign() > 0 {
		next := new(big.Int).Add(e.acc.TotalStaked, amount)
		if next.Cmp(e.params.StakingCap) > 0 {
			return 0, 0, fmt.Errorf("%w: deposit would exceed staking cap %s", ErrCapacityExceeded, e.params.StakingCap)
		}
	}

	now := e.timestamp()
	savedAcc := e.acc.clone()
	savedPositions := e.ledger.cloneAccount(caller)

	e.acc.Refresh(now)
	harvested, err := e.settleAll(caller, now)
	if err != nil {
		e.acc = savedAcc
		e.ledger.restoreAccount(caller, savedPositions)
		return 0, 0, err
	}

	e.acc.TotalStaked.Add(e.acc.TotalStaked, amount)
	index := e.ledger.Open(caller, amount, tier.LockSeconds, e.acc.AccPerShare, now)
	unlocksAt := now + tier.LockSeconds

	legs := make([]TransferLeg, 0, 2)
	if harvested.Sign() > 0 {
		legs = append(legs, TransferLeg{From: e.params.ModuleAddress, To: caller, Amount: harvested})
	}
	legs = append(legs, TransferLeg{From: caller, To: e.params.ModuleAddress, Amount: copyBigInt(amount)})
	if err := e.transferOrRollback(caller, savedAcc, savedPositions, legs); err != nil {
		return 0, 0, err
	}

	e.appendEvent(EventDeposited, map[string]string{
		"owner":     addrAttr(caller.Bytes()),
		"amount":    bigAttr(amount),
		"tier":      intAttr(tierIndex),
		"index":     intAttr(index),
		"unlocksAt": uintAttr(unlocksAt),
		"harvested": bigAttr(harvested),
	})
	return index, unlocksAt, nil
}

// Withdraw closes an unlocked position and pays out principal plus the final
// harvested reward.
func (e *Engine) Withdraw(caller crypto.Address, index int) (*big.Int, *big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.ledger.Get(caller, index)
	if err != nil {
		return nil, nil, err
	}
	now := e.timestamp()
	if now < pos.UnlocksAt {
		return nil, nil, fmt.Errorf("%w: position locked until %d", ErrInvalidState, pos.UnlocksAt)
	}

	savedAcc := e.acc.clone()
	savedPositions := e.ledger.cloneAccount(caller)

	e.acc.Refresh(now)
	reward, err := e.ledger.Settle(caller, index, e.acc.AccPerShare, now)
	if err != nil {
		e.acc = savedAcc
		e.ledger.restoreAccount(caller, savedPositions)
		return nil, nil, err
	}
	principal, err := e.ledger.Close(caller, index)
	if err != nil {
		e.acc = savedAcc
		e.ledger.restoreAccount(caller, savedPositions)
		return nil, nil, err
	}
	e.acc.TotalStaked.Sub(e.acc.TotalStaked, principal)

	legs := []TransferLeg{{From: e.params.ModuleAddress, To: caller, Amount: copyBigInt(principal)}}
	if reward.Sign() > 0 {
		legs = append(legs, TransferLeg{From: e.params.ModuleAddress, To: caller, Amount: copyBigInt(reward)})
	}
	if err := e.transferOrRollback(caller, savedAcc, savedPositions, legs); err != nil {
		return nil, nil, err
	}

	e.appendEvent(EventWithdrawn, map[string]string{
		"owner":     addrAttr(caller.Bytes()),
		"index":     intAttr(index),
		"principal": bigAttr(principal),
		"reward":    bigAttr(reward),
	})
	return principal, reward, nil
}

// EmergencyWithdraw closes a position before its unlock time. The pending
// reward is forfeited outright and a penalty is taken from principal and paid
// to the treasury.
func (e *Engine) EmergencyWithdraw(caller crypto.Address, index int) (*big.Int, *big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.ledger.Get(caller, index); err != nil {
		return nil, nil, err
	}
	now := e.timestamp()
	savedAcc := e.acc.clone()
	savedPositions := e.ledger.cloneAccount(caller)

	e.acc.Refresh(now)
	// No settlement: closing without settling discards the accrued reward.
	principal, err := e.ledger.Close(caller, index)
	if err != nil {
		e.acc = savedAcc
		e.ledger.restoreAccount(caller, savedPositions)
		return nil, nil, err
	}
	e.acc.TotalStaked.Sub(e.acc.TotalStaked, principal)

	fee := feeOf(principal, e.params.PenaltyBps)
	paid := new(big.Int).Sub(principal, fee)
	legs := make([]TransferLeg, 0, 2)
	if paid.Sign() > 0 {
		legs = append(legs, TransferLeg{From: e.params.ModuleAddress, To: caller, Amount: paid})
	}
	if fee.Sign() > 0 {
		legs = append(legs, TransferLeg{From: e.params.ModuleAddress, To: e.params.Treasury, Amount: fee})
	}
	if err := e.transferOrRollback(caller, savedAcc, savedPositions, legs); err != nil {
		return nil, nil, err
	}

	e.appendEvent(EventEarlyExited, map[string]string{
		"owner":   addrAttr(caller.Bytes()),
		"index":   intAttr(index),
		"paid":    bigAttr(paid),
		"penalty": bigAttr(fee),
	})
	return paid, fee, nil
}

// Claim harvests every open position for the caller and pays the summed
// reward. A zero total is a silent no-op, not an error.
func (e *Engine) Claim(caller crypto.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.timestamp()
	savedAcc := e.acc.clone()
	savedPositions := e.ledger.cloneAccount(caller)

	e.acc.Refresh(now)
	total, err := e.settleAll(caller, now)
	if err != nil {
		e.acc = savedAcc
		e.ledger.restoreAccount(caller, savedPositions)
		return nil, err
	}
	if total.Sign() > 0 {
		legs := []TransferLeg{{From: e.params.ModuleAddress, To: caller, Amount: copyBigInt(total)}}
		if err := e.transferOrRollback(caller, savedAcc, savedPositions, legs); err != nil {
			return nil, err
		}
		e.appendEvent(EventClaimed, map[string]string{
			"owner":  addrAttr(caller.Bytes()),
			"reward": bigAttr(total),
		})
	}
	return total, nil
}

// SetRewardRate refreshes the accumulator before swapping the rate so elapsed
// time is priced at the old rate and only the future at the new one.
func (e *Engine) SetRewardRate(caller crypto.Address, rate *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if rate == nil || rate.Sign() < 0 {
		return fmt.Errorf("%w: reward rate must be non-negative", ErrInvalidParameter)
	}
	e.acc.Refresh(e.timestamp())
	e.acc.RewardRate = copyBigInt(rate)
	e.params.RewardRatePerSecond = copyBigInt(rate)

	e.appendEvent(EventRateUpdated, map[string]string{"rate": bigAttr(rate)})
	return nil
}

// SetStakingCap replaces the ceiling. It takes effect immediately but only
// constrains future deposits; open positions above a lowered cap stay open.
func (e *Engine) SetStakingCap(caller crypto.Address, cap *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if cap == nil || cap.Sign() < 0 {
		return fmt.Errorf("%w: staking cap must be non-negative", ErrInvalidParameter)
	}
	e.params.StakingCap = copyBigInt(cap)

	e.appendEvent(EventCapUpdated, map[string]string{"cap": bigAttr(cap)})
	return nil
}

// AddTier appends a tier definition. Tiers are additive-only; positions opened
// under earlier definitions keep resolving via exact-duration matching.
func (e *Engine) AddTier(caller crypto.Address, lockSeconds uint64, multiplier *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.tiers.Add(lockSeconds, multiplier); err != nil {
		return err
	}

	e.appendEvent(EventTierAdded, map[string]string{
		"lockSeconds": uintAttr(lockSeconds),
		"multiplier":  bigAttr(multiplier),
	})
	return nil
}

// RecoverToken lets the administrator sweep mistakenly sent assets out of the
// module account. The staked asset itself is always excluded to protect
// solvency.
func (e *Engine) RecoverToken(caller crypto.Address, token string, to crypto.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if token == "" || token == e.params.StakeToken {
		return fmt.Errorf("%w: staked asset cannot be recovered", ErrInvalidParameter)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidParameter)
	}
	legs := []TransferLeg{{From: e.params.ModuleAddress, To: to, Amount: copyBigInt(amount)}}
	if err := e.custodian.TransferBatch(token, legs); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailure, err)
	}

	e.appendEvent(EventTokenRecovered, map[string]string{
		"token":  token,
		"to":     addrAttr(to.Bytes()),
		"amount": bigAttr(amount),
	})
	return nil
}

// --- Read operations (no side effects) ---

// PendingReward projects the unharvested reward for one open position.
func (e *Engine) PendingReward(owner crypto.Address, index int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Pending(owner, index, e.acc.Projected(e.timestamp()))
}

// PositionInfo returns the full read model for a position slot. Tombstones are
// reported with Closed set rather than an error, so callers relying on stable
// indices can distinguish a hole from an out-of-range index.
func (e *Engine) PositionInfo(owner crypto.Address, index int) (PositionInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.ledger.At(owner, index)
	if err != nil {
		return PositionInfo{}, err
	}
	info := PositionInfo{
		Index:         index,
		Amount:        copyBigInt(pos.Amount),
		OpenedAt:      pos.OpenedAt,
		UnlocksAt:     pos.UnlocksAt,
		LastSettledAt: pos.LastSettledAt,
		Pending:       big.NewInt(0),
		Closed:        !pos.Open(),
	}
	if pos.Open() {
		info.Pending = e.ledger.pendingOf(pos, e.acc.Projected(e.timestamp()))
	}
	return info, nil
}

// PositionCount reports how many position slots exist for the owner,
// tombstones included.
func (e *Engine) PositionCount(owner crypto.Address) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Count(owner)
}

// StakedAmount sums the owner's open principal.
func (e *Engine) StakedAmount(owner crypto.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.StakedAmount(owner)
}

// TotalStaked reports the pool-wide open principal.
func (e *Engine) TotalStaked() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyBigInt(e.acc.TotalStaked)
}

// TierCount reports the number of configured tiers.
func (e *Engine) TierCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tiers.Len()
}

// Tiers exports the tier table in insertion order.
func (e *Engine) Tiers() []Tier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tiers.Tiers()
}

// RewardRate reports the current emission per second.
func (e *Engine) RewardRate() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyBigInt(e.acc.RewardRate)
}

// StakingCap reports the current deposit ceiling; zero means uncapped.
func (e *Engine) StakingCap() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyBigInt(e.params.StakingCap)
}
