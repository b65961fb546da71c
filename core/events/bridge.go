package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"defipool/core/types"
)

const (
	// TypeBridgeMessageSent is emitted when an outbound request is queued.
	TypeBridgeMessageSent = "bridge.message_sent"
	// TypeBridgeMessageReceived is emitted when an inbound settlement is applied.
	TypeBridgeMessageReceived = "bridge.message_received"
)

type BridgeMessage struct {
	EventKind   string
	ID          common.Hash
	Sequence    uint64
	Counterpart common.Address
	MessageType string
	RoundID     uint64
	Amount      *big.Int
}

func (e BridgeMessage) EventType() string { return e.EventKind }

func (e BridgeMessage) Event() *types.Event {
	return &types.Event{
		Type: e.EventKind,
		Attributes: map[string]string{
			"id":          e.ID.Hex(),
			"sequence":    strconv.FormatUint(e.Sequence, 10),
			"counterpart": e.Counterpart.Hex(),
			"messageType": e.MessageType,
			"roundId":     strconv.FormatUint(e.RoundID, 10),
			"amount":      amountString(e.Amount),
		},
	}
}
