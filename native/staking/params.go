package staking

import (
	"errors"
	"math/big"

	"stakevault/crypto"
)

// DefaultPenaltyBps is the early-exit fee taken from principal: 10%.
const DefaultPenaltyBps uint64 = 1_000

var (
	errNoStakeToken    = errors.New("staking engine: stake token not configured")
	errNoModuleAddress = errors.New("staking engine: module address not configured")
	errNoAdmin         = errors.New("staking engine: admin address not configured")
	errNoTreasury      = errors.New("staking engine: treasury address not configured")
	errPenaltyTooLarge = errors.New("staking engine: penalty exceeds 100%")
)

// Params carries the engine's fixed wiring and its administrator-tunable
// starting values.
type Params struct {
	// StakeToken is the custodial symbol of the staked asset. It is excluded
	// from token recovery to protect solvency.
	StakeToken string
	// ModuleAddress is the custodial account holding all staked principal and
	// the reward budget.
	ModuleAddress crypto.Address
	// Admin is the only identity allowed to call gated operations.
	Admin crypto.Address
	// Treasury receives early-exit penalties.
	Treasury crypto.Address
	// RewardRatePerSecond is the reward emission spread across all stake.
	RewardRatePerSecond *big.Int
	// StakingCap bounds totalStaked after every successful deposit.
	StakingCap *big.Int
	// PenaltyBps is the early-exit fee in basis points of principal.
	PenaltyBps uint64
}

// Normalize fills zero values with defaults and detaches the big integers
// from the caller's copies.
func (p Params) Normalize() Params {
	out := p
	if out.PenaltyBps == 0 {
		out.PenaltyBps = DefaultPenaltyBps
	}
	out.RewardRatePerSecond = copyBigInt(p.RewardRatePerSecond)
	out.StakingCap = copyBigInt(p.StakingCap)
	return out
}

// Validate rejects wiring the engine cannot operate with.
func (p Params) Validate() error {
	if p.StakeToken == "" {
		return errNoStakeToken
	}
	if p.ModuleAddress.IsZero() {
		return errNoModuleAddress
	}
	if p.Admin.IsZero() {
		return errNoAdmin
	}
	if p.Treasury.IsZero() {
		return errNoTreasury
	}
	if p.PenaltyBps > 10_000 {
		return errPenaltyTooLarge
	}
	return nil
}
