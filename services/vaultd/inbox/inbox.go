package inbox

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"
)

var bucketDeliveries = []byte("deliveries")

var (
	// ErrAlreadyApplied is returned when a message id was applied before.
	ErrAlreadyApplied = errors.New("inbox: message already applied")
	// ErrInFlight is returned while another delivery of the id holds the
	// reservation.
	ErrInFlight = errors.New("inbox: message delivery in flight")
)

// State of a delivery.
type State string

const (
	StatePending State = "pending"
	StateApplied State = "applied"
)

// Record is the persisted delivery state.
type Record struct {
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Inbox remembers inbound bridge deliveries so relayer retries are answered
// without reaching the engine. The engine's own Closed check stays the
// authority on replays; the inbox only saves the round trip.
type Inbox struct {
	db       *bolt.DB
	leaseTTL time.Duration
	now      func() time.Time
}

// Open initialises (and migrates) the bolt-backed inbox.
func Open(path string, options *bolt.Options) (*Inbox, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDeliveries)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Inbox{db: db, leaseTTL: time.Minute, now: time.Now}, nil
}

// Close releases the bolt handle.
func (i *Inbox) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	return i.db.Close()
}

// Reserve claims id for processing. A stale pending reservation (older than
// the lease) is taken over.
func (i *Inbox) Reserve(id common.Hash) error {
	now := i.now().UTC()
	return i.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketDeliveries)
		if raw := bucket.Get(id.Bytes()); raw != nil {
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			switch {
			case rec.State == StateApplied:
				return ErrAlreadyApplied
			case now.Sub(rec.UpdatedAt) < i.leaseTTL:
				return ErrInFlight
			}
		}
		return put(bucket, id, Record{State: StatePending, UpdatedAt: now})
	})
}

// MarkApplied records that the engine accepted id.
func (i *Inbox) MarkApplied(id common.Hash) error {
	return i.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketDeliveries), id, Record{State: StateApplied, UpdatedAt: i.now().UTC()})
	})
}

// Release drops a pending reservation so the delivery can be retried.
func (i *Inbox) Release(id common.Hash) error {
	return i.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketDeliveries)
		raw := bucket.Get(id.Bytes())
		if raw == nil {
			return nil
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		if rec.State == StateApplied {
			return nil
		}
		return bucket.Delete(id.Bytes())
	})
}

// Lookup returns the delivery state for id.
func (i *Inbox) Lookup(id common.Hash) (Record, bool, error) {
	var (
		rec   Record
		found bool
	)
	err := i.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketDeliveries).Get(id.Bytes())
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &rec)
	})
	return rec, found, err
}

func put(bucket *bolt.Bucket, id common.Hash, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return bucket.Put(id.Bytes(), payload)
}
