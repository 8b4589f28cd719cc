package staking

import (
	"fmt"
	"math/big"

	"stakevault/crypto"
)

// PositionLedger holds every account's positions in insertion order. Closing a
// position leaves a zero-valued tombstone in place, so an index handed to a
// caller stays valid for the life of the ledger.
type PositionLedger struct {
	tiers     *TierTable
	positions map[string][]*Position
}

func NewPositionLedger(tiers *TierTable) *PositionLedger {
	return &PositionLedger{tiers: tiers, positions: make(map[string][]*Position)}
}

func ledgerKey(addr crypto.Address) string {
	return string(addr.Bytes())
}

// Open appends a new position. The reward debt checkpoint is taken against the
// current accumulator so nothing accrued before the deposit is owed to it.
func (l *PositionLedger) Open(owner crypto.Address, amount *big.Int, lockSeconds uint64, accPerShare *big.Int, now uint64) int {
	pos := &Position{
		Amount:        copyBigInt(amount),
		OpenedAt:      now,
		UnlocksAt:     now + lockSeconds,
		LastSettledAt: now,
		RewardDebt:    shareOf(amount, accPerShare),
	}
	key := ledgerKey(owner)
	l.positions[key] = append(l.positions[key], pos)
	return len(l.positions[key]) - 1
}

// Get returns the open position at the given index, or ErrNotFound when the
// index is out of range or refers to a tombstone.
func (l *PositionLedger) Get(owner crypto.Address, index int) (*Position, error) {
	list := l.positions[ledgerKey(owner)]
	if index < 0 || index >= len(list) || !list[index].Open() {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return list[index], nil
}

// Pending computes the projected unharvested reward for a position against the
// supplied (projected) accumulator value. The tier multiplier applies to the
// net delta over the debt checkpoint, so harvested and unharvested rewards are
// scaled identically.
func (l *PositionLedger) Pending(owner crypto.Address, index int, projectedAcc *big.Int) (*big.Int, error) {
	pos, err := l.Get(owner, index)
	if err != nil {
		return nil, err
	}
	return l.pendingOf(pos, projectedAcc), nil
}

func (l *PositionLedger) pendingOf(pos *Position, projectedAcc *big.Int) *big.Int {
	delta := shareOf(pos.Amount, projectedAcc)
	delta.Sub(delta, pos.RewardDebt)
	return applyMultiplier(delta, l.tiers.ResolveMultiplier(pos.lockSeconds()))
}

// Settle harvests the pending reward and resets the debt checkpoint to the
// full current share, never by an ad hoc increment, so repeated harvests do
// not compound rounding drift. A subsequent Pending call with an unchanged
// accumulator returns exactly zero.
func (l *PositionLedger) Settle(owner crypto.Address, index int, accPerShare *big.Int, now uint64) (*big.Int, error) {
	pos, err := l.Get(owner, index)
	if err != nil {
		return nil, err
	}
	harvested := l.pendingOf(pos, accPerShare)
	pos.RewardDebt = shareOf(pos.Amount, accPerShare)
	pos.LastSettledAt = now
	if pos.LastSettledAt > pos.UnlocksAt {
		pos.LastSettledAt = pos.UnlocksAt
	}
	return harvested, nil
}

// Close zeroes the position, leaving the tombstone in place. The caller is
// responsible for the matching totalStaked decrement.
func (l *PositionLedger) Close(owner crypto.Address, index int) (*big.Int, error) {
	pos, err := l.Get(owner, index)
	if err != nil {
		return nil, err
	}
	amount := copyBigInt(pos.Amount)
	pos.Amount = big.NewInt(0)
	pos.RewardDebt = big.NewInt(0)
	return amount, nil
}

// Count reports how many position slots, open or closed, exist for an account.
func (l *PositionLedger) Count(owner crypto.Address) int {
	return len(l.positions[ledgerKey(owner)])
}

// OpenIndices lists the indices of the account's open positions in order.
func (l *PositionLedger) OpenIndices(owner crypto.Address) []int {
	list := l.positions[ledgerKey(owner)]
	out := make([]int, 0, len(list))
	for i, pos := range list {
		if pos.Open() {
			out = append(out, i)
		}
	}
	return out
}

// StakedAmount sums the open principal held by one account.
func (l *PositionLedger) StakedAmount(owner crypto.Address) *big.Int {
	total := big.NewInt(0)
	for _, pos := range l.positions[ledgerKey(owner)] {
		if pos.Open() {
			total.Add(total, pos.Amount)
		}
	}
	return total
}

// At returns the slot at index whether open or closed; out of range is an
// error. Used by the read API, which reports tombstones as closed.
func (l *PositionLedger) At(owner crypto.Address, index int) (*Position, error) {
	list := l.positions[ledgerKey(owner)]
	if index < 0 || index >= len(list) {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return list[index], nil
}

// cloneAccount deep-copies one account's slots so an operation can be rolled
// back wholesale if a custodial transfer fails.
func (l *PositionLedger) cloneAccount(owner crypto.Address) []*Position {
	list := l.positions[ledgerKey(owner)]
	out := make([]*Position, len(list))
	for i, pos := range list {
		out[i] = pos.clone()
	}
	return out
}

func (l *PositionLedger) restoreAccount(owner crypto.Address, saved []*Position) {
	key := ledgerKey(owner)
	if len(saved) == 0 {
		delete(l.positions, key)
		return
	}
	l.positions[key] = saved
}

func (l *PositionLedger) accounts() map[string][]*Position {
	return l.positions
}
