package staking

import (
	"math/big"

	"stakevault/crypto"
)

// Tier pairs a lock duration with a fixed-point reward multiplier. Tiers are
// immutable once added and looked up in insertion order.
type Tier struct {
	LockSeconds uint64   `json:"lockSeconds"`
	Multiplier  *big.Int `json:"multiplier"`
}

func (t Tier) clone() Tier {
	return Tier{LockSeconds: t.LockSeconds, Multiplier: copyBigInt(t.Multiplier)}
}

// Position is one deposit event: its principal, lock window, and the reward
// checkpoint against the global accumulator. RewardDebt is the scaled
// accumulator share already paid out, not a balance.
type Position struct {
	Amount        *big.Int `json:"amount"`
	OpenedAt      uint64   `json:"openedAt"`
	UnlocksAt     uint64   `json:"unlocksAt"`
	LastSettledAt uint64   `json:"lastSettledAt"`
	RewardDebt    *big.Int `json:"rewardDebt"`
}

// Open reports whether the position still holds principal. Closed positions
// stay in place as zero-valued tombstones so indices remain stable.
func (p *Position) Open() bool {
	return p != nil && p.Amount != nil && p.Amount.Sign() > 0
}

func (p *Position) lockSeconds() uint64 {
	if p == nil || p.UnlocksAt < p.OpenedAt {
		return 0
	}
	return p.UnlocksAt - p.OpenedAt
}

func (p *Position) clone() *Position {
	if p == nil {
		return &Position{Amount: big.NewInt(0), RewardDebt: big.NewInt(0)}
	}
	return &Position{
		Amount:        copyBigInt(p.Amount),
		OpenedAt:      p.OpenedAt,
		UnlocksAt:     p.UnlocksAt,
		LastSettledAt: p.LastSettledAt,
		RewardDebt:    copyBigInt(p.RewardDebt),
	}
}

// PositionInfo is the read-model view of a position exposed over RPC.
type PositionInfo struct {
	Index         int      `json:"index"`
	Amount        *big.Int `json:"amount"`
	OpenedAt      uint64   `json:"openedAt"`
	UnlocksAt     uint64   `json:"unlocksAt"`
	LastSettledAt uint64   `json:"lastSettledAt"`
	Pending       *big.Int `json:"pending"`
	Closed        bool     `json:"closed"`
}

// TransferLeg describes one custodial balance movement requested by the engine.
type TransferLeg struct {
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

// Custodian is the external asset ledger. A batch must apply every leg or none
// so a failed transfer leaves the custodial ledger untouched.
type Custodian interface {
	TransferBatch(token string, legs []TransferLeg) error
}
