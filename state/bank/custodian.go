package bank

import (
	"stakevault/native/staking"
)

// Custodian adapts the bank ledger to the staking engine's custodial
// interface.
type Custodian struct {
	ledger *Ledger
}

func NewCustodian(ledger *Ledger) *Custodian {
	return &Custodian{ledger: ledger}
}

func (c *Custodian) TransferBatch(token string, legs []staking.TransferLeg) error {
	converted := make([]TransferLeg, len(legs))
	for i, leg := range legs {
		converted[i] = TransferLeg{From: leg.From, To: leg.To, Amount: leg.Amount}
	}
	return c.ledger.TransferBatch(token, converted)
}
