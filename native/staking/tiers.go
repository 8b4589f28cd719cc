package staking

import (
	"fmt"
	"math/big"
)

// MaxTiers bounds the tier table size.
const MaxTiers = 5

// TierTable is the ordered collection of lock-duration/multiplier pairs.
// Insertion order is the lookup order and tiers are additive-only.
type TierTable struct {
	tiers []Tier
}

func NewTierTable() *TierTable {
	return &TierTable{}
}

// Add appends a tier. Both the lock duration and the multiplier must be
// positive; the table holds at most MaxTiers entries.
func (t *TierTable) Add(lockSeconds uint64, multiplier *big.Int) error {
	if len(t.tiers) >= MaxTiers {
		return fmt.Errorf("%w: tier table full", ErrCapacityExceeded)
	}
	if lockSeconds == 0 {
		return fmt.Errorf("%w: lock duration must be positive", ErrInvalidParameter)
	}
	if multiplier == nil || multiplier.Sign() <= 0 {
		return fmt.Errorf("%w: multiplier must be positive", ErrInvalidParameter)
	}
	t.tiers = append(t.tiers, Tier{LockSeconds: lockSeconds, Multiplier: copyBigInt(multiplier)})
	return nil
}

// ResolveMultiplier scans for a tier whose lock duration matches exactly and
// returns its multiplier. Positions whose originating tier no longer matches
// fall back to the neutral 1x multiplier instead of failing the lookup.
func (t *TierTable) ResolveMultiplier(lockSeconds uint64) *big.Int {
	for _, tier := range t.tiers {
		if tier.LockSeconds == lockSeconds {
			return copyBigInt(tier.Multiplier)
		}
	}
	return PrecisionUnit()
}

// At returns the tier at the given insertion index.
func (t *TierTable) At(index int) (Tier, error) {
	if index < 0 || index >= len(t.tiers) {
		return Tier{}, fmt.Errorf("%w: tier index %d out of range", ErrInvalidParameter, index)
	}
	return t.tiers[index].clone(), nil
}

// Len reports the number of configured tiers.
func (t *TierTable) Len() int {
	return len(t.tiers)
}

// Tiers exports a copy of the table in insertion order.
func (t *TierTable) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	for i, tier := range t.tiers {
		out[i] = tier.clone()
	}
	return out
}

func (t *TierTable) clone() *TierTable {
	return &TierTable{tiers: t.Tiers()}
}
