package bridge

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Storage abstracts the subset of state manager functionality required by the
// outbox.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

var (
	outboxHeadKey     = []byte("bridge/outbox/head")
	outboxEntryPrefix = []byte("bridge/outbox/entry/")
	outboxRoundPrefix = []byte("bridge/outbox/round/")
)

// outboxRoundKey indexes the sequences queued for one round of one request
// type.
func outboxRoundKey(typ MessageType, roundID uint64) []byte {
	key := append([]byte(nil), outboxRoundPrefix...)
	key = strconv.AppendUint(key, uint64(typ), 10)
	key = append(key, '/')
	return strconv.AppendUint(key, roundID, 10)
}

func outboxEntryKey(seq uint64) []byte {
	return append(append([]byte(nil), outboxEntryPrefix...), strconv.FormatUint(seq, 10)...)
}

// Envelope is a queued outbound message awaiting relay to L1.
type Envelope struct {
	Sequence  uint64
	ID        common.Hash
	To        common.Address
	Type      MessageType
	RoundID   uint64
	Amount    *big.Int
	Payload   []byte
	CreatedAt int64
}

type storedEnvelope struct {
	Sequence  uint64
	ID        common.Hash
	To        common.Address
	Type      uint8
	RoundID   uint64
	Amount    *big.Int
	Payload   []byte
	CreatedAt uint64
}

// Outbox persists outbound messages in vault state. Writes share the caller's
// state overlay, so a request is only queued when the operation that produced
// it commits.
type Outbox struct {
	store Storage
	clock func() time.Time
}

// NewOutbox constructs an outbox bound to the provided storage backend.
func NewOutbox(store Storage) *Outbox {
	return &Outbox{store: store, clock: time.Now}
}

// SetClock overrides the clock used to stamp envelopes.
func (o *Outbox) SetClock(clock func() time.Time) {
	if clock != nil {
		o.clock = clock
	}
}

// Head returns the sequence of the most recently queued envelope, or zero.
func (o *Outbox) Head() (uint64, error) {
	var head uint64
	if _, err := o.store.KVGet(outboxHeadKey, &head); err != nil {
		return 0, err
	}
	return head, nil
}

// Send queues msg for delivery to the L1 contract at to.
func (o *Outbox) Send(to common.Address, msg Message) (*Envelope, error) {
	if to == (common.Address{}) {
		return nil, fmt.Errorf("%w: destination required", ErrInvalidMessage)
	}
	payload, err := EncodePayload(msg)
	if err != nil {
		return nil, err
	}
	head, err := o.Head()
	if err != nil {
		return nil, err
	}
	seq := head + 1
	env := &Envelope{
		Sequence:  seq,
		ID:        MessageID(to, seq, payload),
		To:        to,
		Type:      msg.Type,
		RoundID:   msg.RoundID,
		Amount:    new(big.Int).Set(msg.Amount),
		Payload:   payload,
		CreatedAt: o.clock().UTC().Unix(),
	}
	stored := storedEnvelope{
		Sequence:  env.Sequence,
		ID:        env.ID,
		To:        env.To,
		Type:      uint8(env.Type),
		RoundID:   env.RoundID,
		Amount:    env.Amount,
		Payload:   env.Payload,
		CreatedAt: uint64(env.CreatedAt),
	}
	if err := o.store.KVPut(outboxEntryKey(seq), stored); err != nil {
		return nil, err
	}
	if err := o.store.KVPut(outboxHeadKey, seq); err != nil {
		return nil, err
	}
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	if err := o.store.KVAppend(outboxRoundKey(env.Type, env.RoundID), seqBytes[:]); err != nil {
		return nil, err
	}
	return env, nil
}

// Get loads the envelope with the given sequence.
func (o *Outbox) Get(seq uint64) (*Envelope, bool, error) {
	var stored storedEnvelope
	ok, err := o.store.KVGet(outboxEntryKey(seq), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &Envelope{
		Sequence:  stored.Sequence,
		ID:        stored.ID,
		To:        stored.To,
		Type:      MessageType(stored.Type),
		RoundID:   stored.RoundID,
		Amount:    stored.Amount,
		Payload:   stored.Payload,
		CreatedAt: int64(stored.CreatedAt),
	}, true, nil
}

// List returns up to limit envelopes with a sequence greater than after.
func (o *Outbox) List(after uint64, limit int) ([]*Envelope, error) {
	head, err := o.Head()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	out := make([]*Envelope, 0)
	for seq := after + 1; seq <= head && len(out) < limit; seq++ {
		env, ok, err := o.Get(seq)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, env)
		}
	}
	return out, nil
}

// ForRound returns the envelopes queued for roundID with the given type, in
// sequence order.
func (o *Outbox) ForRound(typ MessageType, roundID uint64) ([]*Envelope, error) {
	var index [][]byte
	if err := o.store.KVGetList(outboxRoundKey(typ, roundID), &index); err != nil {
		return nil, err
	}
	out := make([]*Envelope, 0, len(index))
	for _, raw := range index {
		if len(raw) != 8 {
			return nil, fmt.Errorf("bridge: corrupt outbox index entry for round %d", roundID)
		}
		env, ok, err := o.Get(binary.BigEndian.Uint64(raw))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, env)
		}
	}
	return out, nil
}
