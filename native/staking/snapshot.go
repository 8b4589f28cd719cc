package staking

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// Snapshot is the JSON-serialisable image of the ledger used for best-effort
// durability across restarts. The in-memory ledger stays authoritative; a
// snapshot is written after successful mutations and restored at boot.
type Snapshot struct {
	RewardRate  *big.Int               `json:"rewardRate"`
	StakingCap  *big.Int               `json:"stakingCap"`
	TotalStaked *big.Int               `json:"totalStaked"`
	AccPerShare *big.Int               `json:"accRewardPerShare"`
	LastUpdate  uint64                 `json:"lastGlobalUpdate"`
	Tiers       []Tier                 `json:"tiers"`
	Positions   map[string][]*Position `json:"positions"` // hex address -> slots
}

// Snapshot captures the full ledger state.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := &Snapshot{
		RewardRate:  copyBigInt(e.acc.RewardRate),
		StakingCap:  copyBigInt(e.params.StakingCap),
		TotalStaked: copyBigInt(e.acc.TotalStaked),
		AccPerShare: copyBigInt(e.acc.AccPerShare),
		LastUpdate:  e.acc.LastUpdate,
		Tiers:       e.tiers.Tiers(),
		Positions:   make(map[string][]*Position),
	}
	for key, list := range e.ledger.accounts() {
		cloned := make([]*Position, len(list))
		for i, pos := range list {
			cloned[i] = pos.clone()
		}
		snap.Positions[hex.EncodeToString([]byte(key))] = cloned
	}
	return snap
}

// Restore replaces the ledger state with a previously captured snapshot.
func (e *Engine) Restore(snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	tiers := NewTierTable()
	for _, tier := range snap.Tiers {
		if err := tiers.Add(tier.LockSeconds, tier.Multiplier); err != nil {
			return fmt.Errorf("restore tier table: %w", err)
		}
	}
	ledger := NewPositionLedger(tiers)
	for key, list := range snap.Positions {
		raw, err := hex.DecodeString(key)
		if err != nil {
			return fmt.Errorf("restore position owner %q: %w", key, err)
		}
		cloned := make([]*Position, len(list))
		for i, pos := range list {
			cloned[i] = pos.clone()
		}
		ledger.positions[string(raw)] = cloned
	}

	e.tiers = tiers
	e.ledger = ledger
	e.acc = &Accumulator{
		TotalStaked: copyBigInt(snap.TotalStaked),
		RewardRate:  copyBigInt(snap.RewardRate),
		LastUpdate:  snap.LastUpdate,
		AccPerShare: copyBigInt(snap.AccPerShare),
	}
	e.params.RewardRatePerSecond = copyBigInt(snap.RewardRate)
	e.params.StakingCap = copyBigInt(snap.StakingCap)
	return nil
}
