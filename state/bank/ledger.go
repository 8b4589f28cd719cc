package bank

import (
	"errors"
	"math/big"
	"sync"

	"stakevault/core/types"
	"stakevault/crypto"
)

var (
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrInvalidToken        = errors.New("bank: token symbol required")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
)

// TransferLeg is one balance movement inside an atomic batch.
type TransferLeg struct {
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

// Ledger is the custodial token ledger. It tracks per-address balances for any
// number of tokens and applies transfers atomically: a batch either moves every
// leg or none of them.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*types.Account
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*types.Account)}
}

func key(addr crypto.Address) string {
	return string(addr.Bytes())
}

func (l *Ledger) account(addr crypto.Address) *types.Account {
	if acc, ok := l.accounts[key(addr)]; ok {
		return acc
	}
	acc := types.NewAccount()
	l.accounts[key(addr)] = acc
	return acc
}

// Mint credits freshly issued tokens to an address. Used for genesis funding
// and tests; there is no corresponding burn.
func (l *Ledger) Mint(token string, to crypto.Address, amount *big.Int) error {
	if token == "" {
		return ErrInvalidToken
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(to)
	acc.SetBalance(token, new(big.Int).Add(acc.Balance(token), amount))
	return nil
}

// Balance reports the balance an address holds for a token.
func (l *Ledger) Balance(token string, addr crypto.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if acc, ok := l.accounts[key(addr)]; ok {
		return acc.Balance(token)
	}
	return big.NewInt(0)
}

// Transfer moves a single amount between two addresses.
func (l *Ledger) Transfer(token string, from, to crypto.Address, amount *big.Int) error {
	return l.TransferBatch(token, []TransferLeg{{From: from, To: to, Amount: amount}})
}

// TransferBatch applies every leg or none. Debits are validated against the
// projected balances produced by earlier legs in the same batch, so a batch may
// safely spend funds credited by one of its own legs.
func (l *Ledger) TransferBatch(token string, legs []TransferLeg) error {
	if token == "" {
		return ErrInvalidToken
	}
	if len(legs) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	projected := make(map[string]*big.Int)
	balance := func(addr crypto.Address) *big.Int {
		k := key(addr)
		if v, ok := projected[k]; ok {
			return v
		}
		v := big.NewInt(0)
		if acc, ok := l.accounts[k]; ok {
			v = acc.Balance(token)
		}
		projected[k] = v
		return v
	}

	for _, leg := range legs {
		if leg.Amount == nil || leg.Amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		from := balance(leg.From)
		if from.Cmp(leg.Amount) < 0 {
			return ErrInsufficientBalance
		}
		from.Sub(from, leg.Amount)
		to := balance(leg.To)
		to.Add(to, leg.Amount)
	}

	for k, v := range projected {
		acc, ok := l.accounts[k]
		if !ok {
			acc = types.NewAccount()
			l.accounts[k] = acc
		}
		acc.SetBalance(token, v)
	}
	return nil
}

// Accounts exports a deep copy of every account, keyed by raw address bytes.
func (l *Ledger) Accounts() map[string]*types.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]*types.Account, len(l.accounts))
	for k, acc := range l.accounts {
		out[k] = acc.Clone()
	}
	return out
}

// SetAccounts replaces the ledger contents, used when restoring a snapshot.
func (l *Ledger) SetAccounts(accounts map[string]*types.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = make(map[string]*types.Account, len(accounts))
	for k, acc := range accounts {
		l.accounts[k] = acc.Clone()
	}
}
