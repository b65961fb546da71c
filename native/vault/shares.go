package vault

import (
	"fmt"
	"math/big"
	"strings"

	"defipool/crypto"
)

// ShareLedger tracks pool share balances. Balances live in the state token
// table under the share symbol; the circulating supply is kept alongside so
// that the sum of balances always equals TotalSupply.
type ShareLedger struct {
	state  engineState
	symbol string
}

// NewShareLedger binds a share ledger to the token registered under symbol.
func NewShareLedger(st engineState, symbol string) *ShareLedger {
	return &ShareLedger{state: st, symbol: strings.ToUpper(strings.TrimSpace(symbol))}
}

// ShareMetadata describes the share token.
type ShareMetadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// Metadata returns the registered share token metadata.
func (l *ShareLedger) Metadata() (ShareMetadata, error) {
	meta, err := l.state.Token(l.symbol)
	if err != nil {
		return ShareMetadata{}, err
	}
	if meta == nil {
		return ShareMetadata{}, fmt.Errorf("vault: share token %s not registered", l.symbol)
	}
	return ShareMetadata{Name: meta.Name, Symbol: meta.Symbol, Decimals: meta.Decimals}, nil
}

func (l *ShareLedger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	return l.state.Balance(addr.Bytes(), l.symbol)
}

func (l *ShareLedger) TotalSupply() (*big.Int, error) {
	supply := new(big.Int)
	ok, err := l.state.KVGet(shareSupplyKey, supply)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return supply, nil
}

// Mint credits amount shares to addr.
func (l *ShareLedger) Mint(addr crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := l.BalanceOf(addr)
	if err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	newBalance, err := Add(balance, amount)
	if err != nil {
		return err
	}
	newSupply, err := Add(supply, amount)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(addr.Bytes(), l.symbol, newBalance); err != nil {
		return err
	}
	return l.state.KVPut(shareSupplyKey, newSupply)
}

// Burn debits amount shares from addr.
func (l *ShareLedger) Burn(addr crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.BalanceOf(addr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientShares, balance, amount)
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	newSupply, err := Sub(supply, amount)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(addr.Bytes(), l.symbol, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return l.state.KVPut(shareSupplyKey, newSupply)
}
