package staking

import (
	"encoding/hex"
	"math/big"
	"strconv"
)

const (
	EventDeposited      = "staking.deposited"
	EventWithdrawn      = "staking.withdrawn"
	EventEarlyExited    = "staking.early_exited"
	EventClaimed        = "staking.claimed"
	EventRateUpdated    = "staking.rate_updated"
	EventCapUpdated     = "staking.cap_updated"
	EventTierAdded      = "staking.tier_added"
	EventTokenRecovered = "staking.token_recovered"
)

func bigAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addrAttr(b []byte) string {
	return hex.EncodeToString(b)
}

func uintAttr(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func intAttr(v int) string {
	return strconv.Itoa(v)
}
