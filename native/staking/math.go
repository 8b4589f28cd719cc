package staking

import "math/big"

var (
	// precision scales the reward-per-share accumulator and tier multipliers so
	// fractional rewards survive integer division. All share math floors, which
	// bounds rounding error per settlement to under one reward unit.
	precision = big.NewInt(1_000_000_000_000) // 1e12
	bpsDenom  = big.NewInt(10_000)
)

// PrecisionUnit returns the fixed-point scale shared by the accumulator and
// tier multipliers; a multiplier equal to this value is neutral (1x).
func PrecisionUnit() *big.Int {
	return new(big.Int).Set(precision)
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// shareOf computes amount * accPerShare / precision, the scaled share of the
// accumulator owned by a position of the given size.
func shareOf(amount, accPerShare *big.Int) *big.Int {
	if amount == nil || accPerShare == nil || amount.Sign() == 0 || accPerShare.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, accPerShare)
	return out.Quo(out, precision)
}

// applyMultiplier scales a raw reward delta by a fixed-point tier multiplier.
func applyMultiplier(delta, multiplier *big.Int) *big.Int {
	if delta == nil || delta.Sign() <= 0 {
		return big.NewInt(0)
	}
	if multiplier == nil || multiplier.Sign() == 0 {
		multiplier = precision
	}
	out := new(big.Int).Mul(delta, multiplier)
	return out.Quo(out, precision)
}

// feeOf computes amount * bps / 10000, flooring the division.
func feeOf(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Quo(out, bpsDenom)
}
