package types

import "math/big"

// Account holds the custodial token balances tracked for one address. Balances
// are keyed by token symbol; absent entries read as zero.
type Account struct {
	Nonce    uint64              `json:"nonce"`
	Balances map[string]*big.Int `json:"balances"`
}

// NewAccount returns an account with an initialised balance table.
func NewAccount() *Account {
	return &Account{Balances: make(map[string]*big.Int)}
}

// Balance returns a copy of the balance held for the given token. A missing
// entry reads as zero.
func (a *Account) Balance(token string) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	if v, ok := a.Balances[token]; ok && v != nil {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

// SetBalance overwrites the balance held for the given token.
func (a *Account) SetBalance(token string, amount *big.Int) {
	if a.Balances == nil {
		a.Balances = make(map[string]*big.Int)
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	a.Balances[token] = new(big.Int).Set(amount)
}

// Clone produces a deep copy so callers can mutate without aliasing shared state.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := &Account{Nonce: a.Nonce, Balances: make(map[string]*big.Int, len(a.Balances))}
	for token, amount := range a.Balances {
		if amount == nil {
			amount = big.NewInt(0)
		}
		clone.Balances[token] = new(big.Int).Set(amount)
	}
	return clone
}
