package webhooks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/protocolguide/go-billing/core"
)

// MemoryLedger is an in-process event ledger for tests and single-node
// setups. Production deployments use the SQL-backed store, whose uniqueness
// constraint survives restarts and spans instances.
type MemoryLedger struct {
	mu     sync.Mutex
	events map[string]core.ProcessedEvent
	Now    func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		events: map[string]core.ProcessedEvent{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryLedger) Claim(_ context.Context, eventID string, eventType string) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.events == nil {
		l.events = map[string]core.ProcessedEvent{}
	}
	if _, exists := l.events[eventID]; exists {
		return false, nil
	}
	now := time.Now().UTC()
	if l.Now != nil {
		now = l.Now().UTC()
	}
	l.events[eventID] = core.ProcessedEvent{
		ID:          uuid.NewString(),
		EventID:     eventID,
		EventType:   strings.TrimSpace(eventType),
		ProcessedAt: now,
	}
	return true, nil
}

func (l *MemoryLedger) Get(_ context.Context, eventID string) (core.ProcessedEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.events[strings.TrimSpace(eventID)]
	if !ok {
		return core.ProcessedEvent{}, core.ErrEventNotFound
	}
	return record, nil
}

var _ core.ProcessedEventStore = (*MemoryLedger)(nil)

var _ EventLedger = (*MemoryLedger)(nil)
