package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"defipool/bridge"
	"defipool/core/events"
	"defipool/core/types"
)

// Inbound delivery outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
)

// Journal is the queryable audit trail of committed vault activity. The
// vault state itself lives in LevelDB; the journal is derived from it and
// can be rebuilt.
type Journal struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to dsn. postgres selects the postgres driver; otherwise dsn
// is a sqlite path or URI.
func Open(dsn string, postgresDSN bool) (*Journal, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, errors.New("journal: dsn required")
	}
	dialector := sqlite.Open(trimmed)
	if postgresDSN {
		dialector = postgres.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return New(db)
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AppendEvents stores the events of one committed operation.
func (j *Journal) AppendEvents(ctx context.Context, operation string, evts []events.Event) (uuid.UUID, error) {
	batch := uuid.New()
	if len(evts) == 0 {
		return batch, nil
	}
	now := j.now().UTC()
	records := make([]EventRecord, 0, len(evts))
	for _, evt := range evts {
		payload := evt.Event()
		if payload == nil {
			continue
		}
		record, err := newEventRecord(batch, operation, payload, now)
		if err != nil {
			return uuid.Nil, err
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return batch, nil
	}
	if err := j.db.WithContext(ctx).Create(&records).Error; err != nil {
		return uuid.Nil, fmt.Errorf("journal: append events: %w", err)
	}
	return batch, nil
}

func newEventRecord(batch uuid.UUID, operation string, evt *types.Event, now time.Time) (EventRecord, error) {
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return EventRecord{}, fmt.Errorf("journal: encode attributes: %w", err)
	}
	record := EventRecord{
		Batch:      batch,
		Operation:  operation,
		Type:       evt.Type,
		Kind:       eventKind(evt),
		Account:    evt.Attr("account"),
		Attributes: string(attrs),
		CreatedAt:  now,
	}
	if raw := evt.Attr("roundId"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			record.RoundID = &id
		}
	}
	return record, nil
}

func eventKind(evt *types.Event) string {
	if kind := evt.Attr("kind"); kind != "" {
		return kind
	}
	switch evt.Type {
	case events.TypeVaultDeposited, events.TypeVaultDepositCancelled, events.TypeVaultSharesDistributed:
		return "deposit"
	case events.TypeVaultRedeemRequested, events.TypeVaultWithdrawCancelled, events.TypeVaultAssetsDistributed:
		return "withdraw"
	}
	return ""
}

// RecordOutbound indexes a queued bridge request. Re-recording the same
// sequence is a no-op.
func (j *Journal) RecordOutbound(ctx context.Context, env *bridge.Envelope) error {
	if env == nil {
		return nil
	}
	msg := OutboundMessage{
		Sequence:    env.Sequence,
		MessageID:   env.ID.Hex(),
		Counterpart: env.To.Hex(),
		MessageType: env.Type.String(),
		RoundID:     env.RoundID,
		Amount:      amountString(env),
		CreatedAt:   time.Unix(env.CreatedAt, 0).UTC(),
	}
	err := j.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&msg).Error
	if err != nil {
		return fmt.Errorf("journal: record outbound: %w", err)
	}
	return nil
}

func amountString(env *bridge.Envelope) string {
	if env.Amount == nil {
		return "0"
	}
	return env.Amount.String()
}

// RecordInbound stores the outcome of a relayed message, replacing any
// earlier rejected attempt for the same id.
func (j *Journal) RecordInbound(ctx context.Context, delivery InboundDelivery) error {
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = j.now().UTC()
	}
	err := j.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&delivery).Error
	if err != nil {
		return fmt.Errorf("journal: record inbound: %w", err)
	}
	return nil
}

// EventFilter narrows Events.
type EventFilter struct {
	Type    string
	Kind    string
	RoundID *uint64
	Account string
	After   uint64
	Limit   int
}

// Events lists journal entries in sequence order.
func (j *Journal) Events(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	query := j.db.WithContext(ctx).Model(&EventRecord{}).Where("id > ?", filter.After)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.RoundID != nil {
		query = query.Where("round_id = ?", *filter.RoundID)
	}
	if filter.Account != "" {
		query = query.Where("account = ?", filter.Account)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []EventRecord
	if err := query.Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: list events: %w", err)
	}
	return out, nil
}

// Outbound lists indexed bridge requests after the given sequence.
func (j *Journal) Outbound(ctx context.Context, after uint64, limit int) ([]OutboundMessage, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []OutboundMessage
	err := j.db.WithContext(ctx).Where("sequence > ?", after).Order("sequence ASC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("journal: list outbound: %w", err)
	}
	return out, nil
}

// Inbound returns the recorded delivery for messageID.
func (j *Journal) Inbound(ctx context.Context, messageID string) (InboundDelivery, bool, error) {
	var delivery InboundDelivery
	err := j.db.WithContext(ctx).First(&delivery, "message_id = ?", messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return InboundDelivery{}, false, nil
	}
	if err != nil {
		return InboundDelivery{}, false, fmt.Errorf("journal: load inbound: %w", err)
	}
	return delivery, true, nil
}

// DecodeAttributes returns the stored attribute map.
func (r EventRecord) DecodeAttributes() (map[string]string, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}
