package events

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"defipool/core/types"
)

const streamHistoryLimit = 2048

// StreamUpdate is a sequenced event delivered to stream subscribers.
type StreamUpdate struct {
	Sequence uint64       `json:"sequence"`
	Cursor   string       `json:"cursor"`
	Event    *types.Event `json:"event"`
}

func cloneUpdate(update StreamUpdate) StreamUpdate {
	cloned := update
	cloned.Event = update.Event.Clone()
	return cloned
}

// Broadcaster is an Emitter that assigns a sequence to every event, keeps a
// bounded history for cursor based resumption and fans updates out to
// subscribers. Slow subscribers drop updates rather than block emission.
type Broadcaster struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	history []StreamUpdate
	subs    map[uint64]chan StreamUpdate
}

// NewBroadcaster constructs an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]chan StreamUpdate)}
}

// Emit implements the Emitter interface.
func (b *Broadcaster) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}

	b.mu.Lock()
	b.seq++
	update := StreamUpdate{Sequence: b.seq, Cursor: strconv.FormatUint(b.seq, 10), Event: payload}
	b.history = append(b.history, cloneUpdate(update))
	if len(b.history) > streamHistoryLimit {
		excess := len(b.history) - streamHistoryLimit
		trimmed := make([]StreamUpdate, streamHistoryLimit)
		copy(trimmed, b.history[excess:])
		b.history = trimmed
	}
	subscribers := make([]chan StreamUpdate, 0, len(b.subs))
	for _, ch := range b.subs {
		subscribers = append(subscribers, ch)
	}
	b.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- cloneUpdate(update):
		default:
		}
	}
}

// Subscribe registers a subscriber for updates after the supplied cursor. The
// returned backlog holds retained updates newer than the cursor.
func (b *Broadcaster) Subscribe(ctx context.Context, cursor string) (<-chan StreamUpdate, func(), []StreamUpdate) {
	updates := make(chan StreamUpdate, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = updates
	history := make([]StreamUpdate, len(b.history))
	copy(history, b.history)
	b.mu.Unlock()

	backlog := make([]StreamUpdate, 0, len(history))
	for _, entry := range history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneUpdate(entry))
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog
}

// Subscribers reports the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
