package bridge

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Handler applies one inbound settlement.
type Handler func(roundID uint64, amount *big.Int) error

// Handlers lists one handler per selector. Every field is required.
type Handlers struct {
	DistributeShare Handler
	DistributeAsset Handler
}

func (h Handlers) table() (map[Selector]Handler, error) {
	table := map[Selector]Handler{
		SelectorDistributeShare: h.DistributeShare,
		SelectorDistributeAsset: h.DistributeAsset,
	}
	for selector := range selectorNames {
		if table[selector] == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingHandler, selector)
		}
	}
	return table, nil
}

// RemoteView exposes the L1 contract inbound messages must originate from.
type RemoteView interface {
	RemoteContract() (common.Address, error)
}

// Dispatcher routes inbound messages to settlement handlers.
type Dispatcher struct {
	remote RemoteView
	table  map[Selector]Handler
}

// NewDispatcher validates that every selector has a handler.
func NewDispatcher(remote RemoteView, handlers Handlers) (*Dispatcher, error) {
	if remote == nil {
		return nil, fmt.Errorf("bridge: remote view required")
	}
	table, err := handlers.table()
	if err != nil {
		return nil, err
	}
	return &Dispatcher{remote: remote, table: table}, nil
}

// Dispatch checks the origin of msg and invokes the matching handler.
func (d *Dispatcher) Dispatch(msg InboundMessage) error {
	handler, ok := d.table[msg.Selector]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSelector, uint8(msg.Selector))
	}
	remote, err := d.remote.RemoteContract()
	if err != nil {
		return err
	}
	if remote == (common.Address{}) || msg.From != remote {
		return fmt.Errorf("%w: got %s", ErrUnknownRemote, msg.From.Hex())
	}
	amount := msg.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	return handler(msg.RoundID, amount)
}
