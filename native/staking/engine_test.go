package staking

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"stakevault/crypto"
)

type fakeClock struct {
	now uint64
}

func (c *fakeClock) Now() time.Time {
	return time.Unix(int64(c.now), 0).UTC()
}

type recordedBatch struct {
	token string
	legs  []TransferLeg
}

type mockCustodian struct {
	failures int
	batches  []recordedBatch
}

func (m *mockCustodian) TransferBatch(token string, legs []TransferLeg) error {
	if m.failures > 0 {
		m.failures--
		return errors.New("custodian offline")
	}
	copied := make([]TransferLeg, len(legs))
	for i, leg := range legs {
		copied[i] = TransferLeg{From: leg.From, To: leg.To, Amount: copyBigInt(leg.Amount)}
	}
	m.batches = append(m.batches, recordedBatch{token: token, legs: copied})
	return nil
}

// credited sums every amount transferred to the address for the token.
func (m *mockCustodian) credited(token string, to crypto.Address) *big.Int {
	total := big.NewInt(0)
	for _, batch := range m.batches {
		if batch.token != token {
			continue
		}
		for _, leg := range batch.legs {
			if leg.To.Equal(to) {
				total.Add(total, leg.Amount)
			}
		}
	}
	return total
}

var (
	moduleAddr   = testAddr(0xAA)
	adminAddr    = testAddr(0xAD)
	treasuryAddr = testAddr(0xFE)
	alice        = testAddr(0x01)
	bob          = testAddr(0x02)
)

const testToken = "SVT"

func newTestEngine(t *testing.T, rate int64, cap *big.Int) (*Engine, *mockCustodian, *fakeClock) {
	t.Helper()
	custodian := &mockCustodian{}
	engine, err := NewEngine(Params{
		StakeToken:          testToken,
		ModuleAddress:       moduleAddr,
		Admin:               adminAddr,
		Treasury:            treasuryAddr,
		RewardRatePerSecond: big.NewInt(rate),
		StakingCap:          cap,
	}, custodian)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	clock := &fakeClock{now: 1000}
	engine.SetClock(clock.Now)
	if err := engine.AddTier(adminAddr, 100, PrecisionUnit()); err != nil {
		t.Fatalf("add tier: %v", err)
	}
	if err := engine.AddTier(adminAddr, 200, new(big.Int).Mul(PrecisionUnit(), big.NewInt(2))); err != nil {
		t.Fatalf("add tier: %v", err)
	}
	return engine, custodian, clock
}

func TestDepositValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t, 10, nil)

	if _, _, err := engine.Deposit(alice, big.NewInt(0), 0); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter for zero amount, got %v", err)
	}
	if _, _, err := engine.Deposit(alice, nil, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter for nil amount, got %v", err)
	}
	if _, _, err := engine.Deposit(alice, big.NewInt(10), 5); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter for bad tier, got %v", err)
	}
	if engine.TotalStaked().Sign() != 0 || engine.PositionCount(alice) != 0 {
		t.Fatal("rejected deposit left state behind")
	}
}

func TestSoloStakerEarnsRateTimesTime(t *testing.T) {
	engine, _, clock := newTestEngine(t, 10, nil)

	index, unlocksAt, err := engine.Deposit(alice, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if unlocksAt != 1100 {
		t.Fatalf("unexpected unlock time: %d", unlocksAt)
	}

	clock.now = 1100
	pending, err := engine.PendingReward(alice, index)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	// A single position owning the whole pool earns rate*time regardless of
	// its size: 10/s over 100s.
	if pending.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected pending: %s", pending)
	}
}

func TestNoRetroactiveAccrual(t *testing.T) {
	engine, _, clock := newTestEngine(t, 10, nil)

	if _, _, err := engine.Deposit(alice, big.NewInt(1000), 0); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	clock.now = 1050
	index, _, err := engine.Deposit(bob, big.NewInt(500), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	pending, err := engine.PendingReward(bob, index)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Sign() != 0 {
		t.Fatalf("new position owes pre-join reward: %s", pending)
	}
}

func TestRateChangeFairness(t *testing.T) {
	engine, _, clock := newTestEngine(t, 10, nil)

	index, _, err := engine.Deposit(alice, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	clock.now = 1050
	if err := engine.SetRewardRate(adminAddr, big.NewInt(40)); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	clock.now = 1100
	pending, err := engine.PendingReward(alice, index)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	// 50s at the old rate (500) plus 50s at the new rate (2000).
	if pending.Cmp(big.NewInt(2500)) != 0 {
		t.Fatalf("unexpected pending after rate change: %s", pending)
	}
}

func TestClaimIsIdempotentAtSameInstant(t *testing.T) {
	engine, custodian, clock := newTestEngine(t, 10, nil)

	if _, _, err := engine.Deposit(alice, big.NewInt(1000), 0); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	clock.now = 1100

	first, err := engine.Claim(alice)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if first.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected first claim: %s", first)
	}

	second, err := engine.Claim(alice)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second.Sign() != 0 {
		t.Fatalf("second claim with no elapsed time harvested %s", second)
	}
	if got := custodian.credited(testToken, alice); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected total credited: %s", got)
	}
}

func TestClaimWithNothingPendingIsSilent(t *testing.T) {
	engine, custodian, _ := newTestEngine(t, 10, nil)

	total, err := engine.Claim(alice)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if total.Sign() != 0 {
		t.Fatalf("unexpected claim total: %s", total)
	}
	if len(custodian.batches) != 0 {
		t.Fatalf("claim with nothing pending touched the custodian: %d batches", len(custodian.batches))
	}
}

func TestMultiplierLinearity(t *testing.T) {
	engine, _, clock := newTestEngine(t, 10, nil)

	idxA, _, err := engine.Deposit(alice, big.NewInt(500), 0) // 1x tier
	if err != nil {
		t.Fatalf("deposit A: %v", err)
	}
	idxB, _, err := engine.Deposit(bob, big.NewInt(500), 1) // 2x tier
	if err != nil {
		t.Fatalf("deposit B: %v", err)
	}

	clock.now = 1100
	pendingA, err := engine.PendingReward(alice, idxA)
	if err != nil {
		t.Fatalf("pending A: %v", err)
	}
	pendingB, err := engine.PendingReward(bob, idxB)
	if err != nil {
		t.Fatalf("pending B: %v", err)
	}

	doubled := new(big.Int).Mul(pendingA, big.NewInt(2))
	if doubled.Cmp(pendingB) != 0 {
		t.Fatalf("multiplier not linear: %s vs %s", pendingA, pendingB)
	}
	if pendingA.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected base pending: %s", pendingA)
	}
}

func TestWithdrawRequiresUnlock(t *testing.T) {
	engine, custodian, clock := newTestEngine(t, 10, nil)

	index, _, err := engine.Deposit(alice, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	clock.now = 1099
	if _, _, err := engine.Withdraw(alice, index); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state before unlock, got %v", err)
	}

	clock.now = 1100
	principal, reward, err := engine.Withdraw(alice, index)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if principal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected principal: %s", principal)
	}
	if reward.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected reward: %s", reward)
	}
	if engine.TotalStaked().Sign() != 0 {
		t.Fatalf("total staked not released: %s", engine.TotalStaked())
	}
	// Principal plus the final harvest, both credited to the withdrawer.
	if got := custodian.credited(testToken, alice); got.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("unexpected credited total: %s", got)
	}
}

func TestEarlyExitForfeitsRewardAndPenalisesPrincipal(t *testing.T) {
	engine, custodian, clock := newTestEngine(t, 10, nil)

	index, _, err := engine.Deposit(alice, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	clock.now = 1050 // still locked, 500 reward pending
	paid, fee, err := engine.EmergencyWithdraw(alice, index)
	if err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	if paid.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("unexpected payout: %s", paid)
	}
	if fee.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected penalty: %s", fee)
	}
	if got := custodian.credited(testToken, alice); got.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("account credited %s, want exactly principal minus penalty", got)
	}
	if got := custodian.credited(testToken, treasuryAddr); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("treasury credited %s", got)
	}
	if _, err := engine.PendingReward(alice, index); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected closed position, got %v", err)
	}
	if engine.TotalStaked().Sign() != 0 {
		t.Fatalf("total staked not released: %s", engine.TotalStaked())
	}
}

func TestDepositHarvestsExistingPositionsFirst(t *testing.T) {
	engine, custodian, clock := newTestEngine(t, 10, nil)

	first, _, err := engine.Deposit(alice, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	clock.now = 1100
	if _, _, err := engine.Deposit(alice, big.NewInt(500), 0); err != nil {
		t.Fatalf("second deposit: %v", err)
	}

	// The 1000 pending on the first position was paid out before the stake
	// change, so the later checkpoint cannot dilute it.
	if got := custodian.credited(testToken, alice); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected pre-deposit harvest of 1000, credited %s", got)
	}
	pending, err := engine.PendingReward(alice, first)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Sign() != 0 {
		t.Fatalf("first position still pends %s after harvest", pending)
	}
}

func TestCapacityEnforcement(t *testing.T) {
	engine, _, _ := newTestEngine(t, 10, big.NewInt(1500))

	if _, _, err := engine.Deposit(alice, big.NewInt(1000), 0); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, _, err := engine.Deposit(bob, big.NewInt(600), 0); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if engine.TotalStaked().Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("failed deposit changed total staked: %s", engine.TotalStaked())
	}
	if engine.PositionCount(bob) != 0 {
		t.Fatal("failed deposit left a position behind")
	}
	// Filling the pool exactly to the cap is allowed.
	if _, _, err := engine.Deposit(bob, big.NewInt(500), 0); err != nil {
		t.Fatalf("deposit to cap: %v", err)
	}
}

func TestLoweredCapOnlyConstrainsFutureDeposits(t *testing.T) {
	engine, _, clock := newTestEngine(t, 10, big.NewInt(2000))

	index, _, err := engine.Deposit(alice, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.SetStakingCap(adminAddr, big.NewInt(500)); err != nil {
		t.Fatalf("set cap: %v", err)
	}

	if _, _, err := engine.Deposit(bob, big.NewInt(100), 0); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity error under lowered cap, got %v", err)
	}
	// The open position above the cap keeps working.
	clock.now = 1100
	if _, _, err := engine.Withdraw(alice, index); err != nil {
		t.Fatalf("withdraw under lowered cap: %v", err)
	}
}

func TestTransferFailureRollsBackClaim(t *testing.T) {
	engine, custodian, clock := newTestEngine(t, 10, nil)

	index, _, err := engine.Deposit(alice, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	clock.now = 1100

	custodian.failures = 1
	if _, err := engine.Claim(alice); !errors.Is(err, ErrTransferFailure) {
		t.Fatalf("expected transfer failure, got %v", err)
	}

	// Everything the failed claim touched must be back in place: the reward is
	// still pending and a retry harvests it in full.
	pending, err := engine.PendingReward(alice, index)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("rollback lost pending reward: %s", pending)
	}
	total, err := engine.Claim(alice)
	if err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	if total.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected retry harvest: %s", total)
	}
}

func TestTransferFailureRollsBackWithdraw(t *testing.T) {
	engine, custodian, clock := newTestEngine(t, 10, nil)

	index, _, err := engine.Deposit(alice, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	clock.now = 1100

	custodian.failures = 1
	if _, _, err := engine.Withdraw(alice, index); !errors.Is(err, ErrTransferFailure) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if engine.TotalStaked().Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("failed withdraw changed total staked: %s", engine.TotalStaked())
	}
	if _, _, err := engine.Withdraw(alice, index); err != nil {
		t.Fatalf("retry withdraw: %v", err)
	}
}

func TestTransferFailureRollsBackDeposit(t *testing.T) {
	engine, custodian, _ := newTestEngine(t, 10, nil)

	custodian.failures = 1
	if _, _, err := engine.Deposit(alice, big.NewInt(1000), 0); !errors.Is(err, ErrTransferFailure) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if engine.TotalStaked().Sign() != 0 || engine.PositionCount(alice) != 0 {
		t.Fatal("failed deposit left ledger state behind")
	}
}

func TestAdminGating(t *testing.T) {
	engine, _, _ := newTestEngine(t, 10, nil)

	if err := engine.SetRewardRate(alice, big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := engine.SetStakingCap(alice, big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := engine.AddTier(alice, 300, PrecisionUnit()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := engine.RecoverToken(alice, "USDX", bob, big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestRecoverTokenExcludesStakedAsset(t *testing.T) {
	engine, custodian, _ := newTestEngine(t, 10, nil)

	if err := engine.RecoverToken(adminAddr, testToken, bob, big.NewInt(5)); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected staked asset to be excluded, got %v", err)
	}
	if err := engine.RecoverToken(adminAddr, "USDX", bob, big.NewInt(5)); err != nil {
		t.Fatalf("recover foreign token: %v", err)
	}
	if got := custodian.credited("USDX", bob); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected recovered amount: %s", got)
	}
}

func TestConservationAcrossMixedOperations(t *testing.T) {
	engine, _, clock := newTestEngine(t, 10, nil)

	check := func(step string) {
		t.Helper()
		sum := new(big.Int).Add(engine.StakedAmount(alice), engine.StakedAmount(bob))
		if engine.TotalStaked().Cmp(sum) != 0 {
			t.Fatalf("%s: totalStaked %s != position sum %s", step, engine.TotalStaked(), sum)
		}
	}

	idxA, _, err := engine.Deposit(alice, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("deposit A: %v", err)
	}
	check("deposit A")

	clock.now = 1050
	idxB, _, err := engine.Deposit(bob, big.NewInt(500), 1)
	if err != nil {
		t.Fatalf("deposit B: %v", err)
	}
	check("deposit B")

	clock.now = 1080
	if _, err := engine.Claim(alice); err != nil {
		t.Fatalf("claim A: %v", err)
	}
	check("claim A")

	if _, _, err := engine.EmergencyWithdraw(bob, idxB); err != nil {
		t.Fatalf("early exit B: %v", err)
	}
	check("early exit B")

	clock.now = 1100
	if _, _, err := engine.Withdraw(alice, idxA); err != nil {
		t.Fatalf("withdraw A: %v", err)
	}
	check("withdraw A")

	if engine.TotalStaked().Sign() != 0 {
		t.Fatalf("pool not drained: %s", engine.TotalStaked())
	}
}

func TestPositionIndicesStayStable(t *testing.T) {
	engine, _, clock := newTestEngine(t, 10, nil)

	first, _, err := engine.Deposit(alice, big.NewInt(100), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	second, _, err := engine.Deposit(alice, big.NewInt(200), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	clock.now = 1100
	if _, _, err := engine.Withdraw(alice, first); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	info, err := engine.PositionInfo(alice, first)
	if err != nil {
		t.Fatalf("info first: %v", err)
	}
	if !info.Closed || info.Amount.Sign() != 0 {
		t.Fatalf("expected tombstone, got %+v", info)
	}
	info, err = engine.PositionInfo(alice, second)
	if err != nil {
		t.Fatalf("info second: %v", err)
	}
	if info.Closed || info.Amount.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("second position disturbed: %+v", info)
	}
	if engine.PositionCount(alice) != 2 {
		t.Fatalf("tombstone compacted: count=%d", engine.PositionCount(alice))
	}

	third, _, err := engine.Deposit(alice, big.NewInt(300), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if third != 2 {
		t.Fatalf("closed slot was reused for a new deposit: index=%d", third)
	}
}

func TestEventsEmitted(t *testing.T) {
	engine, _, clock := newTestEngine(t, 10, nil)

	// Drain the tier-added events from setup first.
	engine.DrainEvents()

	index, _, err := engine.Deposit(alice, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	clock.now = 1100
	if _, _, err := engine.Withdraw(alice, index); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	events := engine.DrainEvents()
	if len(events) != 2 {
		t.Fatalf("unexpected event count: %d", len(events))
	}
	if events[0].Type != EventDeposited || events[1].Type != EventWithdrawn {
		t.Fatalf("unexpected event types: %s, %s", events[0].Type, events[1].Type)
	}
	if events[1].Attributes["principal"] != "1000" {
		t.Fatalf("unexpected withdraw attributes: %v", events[1].Attributes)
	}
	if len(engine.DrainEvents()) != 0 {
		t.Fatal("drain did not clear events")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	engine, custodian, clock := newTestEngine(t, 10, nil)

	index, _, err := engine.Deposit(alice, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	clock.now = 1050
	if _, err := engine.Claim(alice); err != nil {
		t.Fatalf("claim: %v", err)
	}

	snap := engine.Snapshot()

	restored, err := NewEngine(Params{
		StakeToken:          testToken,
		ModuleAddress:       moduleAddr,
		Admin:               adminAddr,
		Treasury:            treasuryAddr,
		RewardRatePerSecond: big.NewInt(10),
	}, custodian)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	restored.SetClock(clock.Now)

	if restored.TotalStaked().Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("total staked lost in restore: %s", restored.TotalStaked())
	}
	if restored.TierCount() != 2 {
		t.Fatalf("tiers lost in restore: %d", restored.TierCount())
	}
	clock.now = 1100
	pending, err := restored.PendingReward(alice, index)
	if err != nil {
		t.Fatalf("pending after restore: %v", err)
	}
	if pending.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("accrual state lost in restore: %s", pending)
	}
}
