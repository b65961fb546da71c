package token

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"defipool/core/state"
	"defipool/crypto"
)

// Storage abstracts the subset of state manager functionality required by the
// token ledger.
type Storage interface {
	Token(symbol string) (*state.TokenMetadata, error)
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	ErrInvalidAmount         = errors.New("token: amount must not be negative")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrUnknownToken          = errors.New("token: not registered")
	ErrMintUnauthorized      = errors.New("token: caller is not the mint authority")
)

var (
	allowancePrefix = []byte("token/allowance/")
	supplyPrefix    = []byte("token/supply/")
)

func allowanceKey(symbol string, owner, spender []byte) []byte {
	buf := make([]byte, 0, len(allowancePrefix)+len(symbol)+1+len(owner)+len(spender))
	buf = append(buf, allowancePrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, '/')
	buf = append(buf, owner...)
	buf = append(buf, spender...)
	return buf
}

func supplyKey(symbol string) []byte {
	buf := make([]byte, 0, len(supplyPrefix)+len(symbol))
	buf = append(buf, supplyPrefix...)
	return append(buf, symbol...)
}

// Ledger implements fungible token semantics (balances, allowances, minting)
// for a single registered token symbol.
type Ledger struct {
	store  Storage
	symbol string
}

// NewLedger binds a ledger to the token registered under symbol.
func NewLedger(store Storage, symbol string) *Ledger {
	return &Ledger{store: store, symbol: strings.ToUpper(strings.TrimSpace(symbol))}
}

// Symbol returns the normalised token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Metadata loads the registered token metadata.
func (l *Ledger) Metadata() (*state.TokenMetadata, error) {
	meta, err := l.store.Token(l.symbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, l.symbol)
	}
	return meta, nil
}

// Decimals returns the token's configured decimals.
func (l *Ledger) Decimals() (uint8, error) {
	meta, err := l.Metadata()
	if err != nil {
		return 0, err
	}
	return meta.Decimals, nil
}

func (l *Ledger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	return l.store.Balance(addr.Bytes(), l.symbol)
}

// TotalSupply returns the amount minted so far.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	supply := new(big.Int)
	ok, err := l.store.KVGet(supplyKey(l.symbol), supply)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return supply, nil
}

func (l *Ledger) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	allowance := new(big.Int)
	ok, err := l.store.KVGet(allowanceKey(l.symbol, owner.Bytes(), spender.Bytes()), allowance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return allowance, nil
}

// Approve sets the amount spender may pull from owner, replacing any previous
// allowance.
func (l *Ledger) Approve(owner, spender crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, err := l.Metadata(); err != nil {
		return err
	}
	return l.store.KVPut(allowanceKey(l.symbol, owner.Bytes(), spender.Bytes()), new(big.Int).Set(amount))
}

// Transfer moves amount from sender to recipient.
func (l *Ledger) Transfer(sender, recipient crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 || bytes.Equal(sender.Bytes(), recipient.Bytes()) {
		return nil
	}
	from, err := l.BalanceOf(sender)
	if err != nil {
		return err
	}
	if from.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, from, amount)
	}
	to, err := l.BalanceOf(recipient)
	if err != nil {
		return err
	}
	if err := l.store.SetBalance(sender.Bytes(), l.symbol, new(big.Int).Sub(from, amount)); err != nil {
		return err
	}
	return l.store.SetBalance(recipient.Bytes(), l.symbol, new(big.Int).Add(to, amount))
}

// TransferFrom moves amount from owner to recipient on behalf of spender and
// consumes the allowance.
func (l *Ledger) TransferFrom(spender, owner, recipient crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	allowance, err := l.Allowance(owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance, amount)
	}
	if err := l.Transfer(owner, recipient, amount); err != nil {
		return err
	}
	return l.store.KVPut(allowanceKey(l.symbol, owner.Bytes(), spender.Bytes()), new(big.Int).Sub(allowance, amount))
}

// Mint credits newly issued tokens to recipient. Only the registered mint
// authority may mint.
func (l *Ledger) Mint(authority, recipient crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	meta, err := l.Metadata()
	if err != nil {
		return err
	}
	if len(meta.MintAuthority) == 0 || !bytes.Equal(meta.MintAuthority, authority.Bytes()) {
		return ErrMintUnauthorized
	}
	balance, err := l.BalanceOf(recipient)
	if err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if err := l.store.SetBalance(recipient.Bytes(), l.symbol, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	return l.store.KVPut(supplyKey(l.symbol), new(big.Int).Add(supply, amount))
}
