package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/protocolguide/go-billing/core"
)

// ProcessedEventStore is the SQL-backed idempotency ledger. Claim races
// settle at the database: the unique index on event_id rejects the second
// insert, which Claim reports as an already-processed duplicate rather than
// an error.
type ProcessedEventStore struct {
	db   *bun.DB
	repo repository.Repository[*processedEventRecord]

	Now func() time.Time
}

func NewProcessedEventStore(db *bun.DB) (*ProcessedEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*processedEventRecord](db, processedEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid processed event repository wiring: %w", err)
		}
	}
	return &ProcessedEventStore{
		db:   db,
		repo: repo,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *ProcessedEventStore) Claim(ctx context.Context, eventID string, eventType string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: processed event store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, fmt.Errorf("sqlstore: event id is required")
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	record := &processedEventRecord{
		ID:          uuid.NewString(),
		EventID:     eventID,
		EventType:   strings.TrimSpace(eventType),
		ProcessedAt: now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *ProcessedEventStore) Get(ctx context.Context, eventID string) (core.ProcessedEvent, error) {
	if s == nil || s.db == nil {
		return core.ProcessedEvent{}, fmt.Errorf("sqlstore: processed event store is not configured")
	}
	record := &processedEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.ProcessedEvent{}, core.ErrEventNotFound
		}
		return core.ProcessedEvent{}, err
	}
	return core.ProcessedEvent{
		ID:          record.ID,
		EventID:     record.EventID,
		EventType:   record.EventType,
		ProcessedAt: record.ProcessedAt,
	}, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.ProcessedEventStore = (*ProcessedEventStore)(nil)
