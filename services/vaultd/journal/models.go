package journal

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is a committed vault event. ID doubles as the journal
// sequence; events from one operation share a Batch.
type EventRecord struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	Batch      uuid.UUID `gorm:"type:uuid;index"`
	Operation  string    `gorm:"size:64;index"`
	Type       string    `gorm:"size:64;index"`
	Kind       string    `gorm:"size:16;index"`
	RoundID    *uint64   `gorm:"index"`
	Account    string    `gorm:"size:128;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// OutboundMessage indexes a request queued for L1.
type OutboundMessage struct {
	Sequence    uint64 `gorm:"primaryKey;autoIncrement:false"`
	MessageID   string `gorm:"size:66;uniqueIndex"`
	Counterpart string `gorm:"size:42"`
	MessageType string `gorm:"size:32"`
	RoundID     uint64 `gorm:"index"`
	Amount      string `gorm:"size:80"`
	CreatedAt   time.Time
}

// InboundDelivery records the outcome of a relayed L1 message.
type InboundDelivery struct {
	MessageID string `gorm:"primaryKey;size:66"`
	From      string `gorm:"size:42"`
	Selector  string `gorm:"size:48"`
	RoundID   uint64 `gorm:"index"`
	Amount    string `gorm:"size:80"`
	Nonce     uint64
	Outcome   string `gorm:"size:16;index"`
	Error     string `gorm:"type:text"`
	CreatedAt time.Time
}

// AutoMigrate performs all schema migrations for the journal.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&EventRecord{},
		&OutboundMessage{},
		&InboundDelivery{},
	)
}
