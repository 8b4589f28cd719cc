package staking

import "math/big"

// Accumulator is the lazily updated global reward-per-share counter. It is
// refreshed at the top of every mutating operation, so rate and stake changes
// only ever affect accrual going forward, never retroactively.
type Accumulator struct {
	TotalStaked *big.Int
	RewardRate  *big.Int // reward units per second, spread across all stake
	LastUpdate  uint64   // unix seconds
	AccPerShare *big.Int // scaled by precision; monotonically non-decreasing
}

func NewAccumulator(rewardRate *big.Int, now uint64) *Accumulator {
	return &Accumulator{
		TotalStaked: big.NewInt(0),
		RewardRate:  copyBigInt(rewardRate),
		LastUpdate:  now,
		AccPerShare: big.NewInt(0),
	}
}

// Refresh folds the elapsed wall-clock time into the per-share counter. While
// nothing is staked the clock still advances but no reward accrues.
func (a *Accumulator) Refresh(now uint64) {
	if now <= a.LastUpdate {
		return
	}
	if a.TotalStaked.Sign() == 0 {
		a.LastUpdate = now
		return
	}
	elapsed := new(big.Int).SetUint64(now - a.LastUpdate)
	accrued := elapsed.Mul(elapsed, a.RewardRate)
	accrued.Mul(accrued, precision)
	accrued.Quo(accrued, a.TotalStaked)
	a.AccPerShare.Add(a.AccPerShare, accrued)
	a.LastUpdate = now
}

// Projected returns the per-share value Refresh would produce at the given
// time without mutating any state. Pure read used by pending-reward queries.
func (a *Accumulator) Projected(now uint64) *big.Int {
	projected := copyBigInt(a.AccPerShare)
	if now <= a.LastUpdate || a.TotalStaked.Sign() == 0 {
		return projected
	}
	elapsed := new(big.Int).SetUint64(now - a.LastUpdate)
	accrued := elapsed.Mul(elapsed, a.RewardRate)
	accrued.Mul(accrued, precision)
	accrued.Quo(accrued, a.TotalStaked)
	return projected.Add(projected, accrued)
}

func (a *Accumulator) clone() *Accumulator {
	return &Accumulator{
		TotalStaked: copyBigInt(a.TotalStaked),
		RewardRate:  copyBigInt(a.RewardRate),
		LastUpdate:  a.LastUpdate,
		AccPerShare: copyBigInt(a.AccPerShare),
	}
}
