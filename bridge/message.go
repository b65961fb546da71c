package bridge

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// MessageType tags outbound requests sent to the L1 contract. The values are
// part of the wire format shared with L1.
type MessageType uint8

const (
	WithdrawalRequest MessageType = 1
	DepositRequest    MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case WithdrawalRequest:
		return "withdrawal_request"
	case DepositRequest:
		return "deposit_request"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Valid reports whether t is a known outbound type.
func (t MessageType) Valid() bool {
	return t == WithdrawalRequest || t == DepositRequest
}

// Selector names the inbound settlement handler a message targets.
type Selector uint8

const (
	SelectorDistributeShare Selector = iota + 1
	SelectorDistributeAsset
)

var selectorNames = map[Selector]string{
	SelectorDistributeShare: "handle_distribute_share",
	SelectorDistributeAsset: "handle_distribute_asset",
}

func (s Selector) String() string {
	if name, ok := selectorNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

var (
	ErrUnknownSelector = errors.New("bridge: unknown selector")
	ErrUnknownRemote   = errors.New("bridge: message not sent by the configured remote contract")
	ErrMissingHandler  = errors.New("bridge: handler not configured")
	ErrInvalidMessage  = errors.New("bridge: invalid message")
)

// ParseSelector resolves a handler name such as "handle_distribute_share".
func ParseSelector(name string) (Selector, error) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	for selector, candidate := range selectorNames {
		if candidate == trimmed {
			return selector, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSelector, name)
}

// Message is the payload of an outbound request.
type Message struct {
	Type    MessageType
	RoundID uint64
	// Amount is the round total: underlying for deposits, shares for withdrawals.
	Amount *big.Int
}

type wireMessage struct {
	Type    uint8
	RoundID uint64
	Amount  *big.Int
}

// EncodePayload serialises a message with RLP.
func EncodePayload(msg Message) ([]byte, error) {
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("%w: type %d", ErrInvalidMessage, uint8(msg.Type))
	}
	amount := msg.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrInvalidMessage)
	}
	return rlp.EncodeToBytes(wireMessage{Type: uint8(msg.Type), RoundID: msg.RoundID, Amount: amount})
}

// DecodePayload parses a payload produced by EncodePayload.
func DecodePayload(data []byte) (Message, error) {
	var wire wireMessage
	if err := rlp.DecodeBytes(data, &wire); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	msg := Message{Type: MessageType(wire.Type), RoundID: wire.RoundID, Amount: wire.Amount}
	if !msg.Type.Valid() {
		return Message{}, fmt.Errorf("%w: type %d", ErrInvalidMessage, wire.Type)
	}
	if msg.Amount == nil {
		msg.Amount = big.NewInt(0)
	}
	return msg, nil
}

// MessageID derives the identifier relayers use to reference an envelope.
func MessageID(counterpart common.Address, sequence uint64, payload []byte) common.Hash {
	encoded, err := rlp.EncodeToBytes([]interface{}{counterpart, sequence, payload})
	if err != nil {
		return common.Hash{}
	}
	return common.BytesToHash(ethcrypto.Keccak256(encoded))
}

// InboundMessage is a settlement message delivered from L1.
type InboundMessage struct {
	From     common.Address
	Selector Selector
	RoundID  uint64
	Amount   *big.Int
	// Nonce is the L1 message nonce; together with the other fields it
	// identifies a delivery.
	Nonce uint64
}

// ID returns the delivery identifier for deduplication.
func (m InboundMessage) ID() common.Hash {
	amount := m.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	payload, err := rlp.EncodeToBytes([]interface{}{uint8(m.Selector), m.RoundID, amount})
	if err != nil {
		return common.Hash{}
	}
	return MessageID(m.From, m.Nonce, payload)
}
