package query

import (
	"context"

	"github.com/protocolguide/go-billing/breaker"
	"github.com/protocolguide/go-billing/core"
)

type SubscriptionReader interface {
	GetSubscription(ctx context.Context, accountID string) (core.BillingAccount, error)
}

type ProcessedEventReader interface {
	Get(ctx context.Context, eventID string) (core.ProcessedEvent, error)
}

type BreakerStatsReader interface {
	BreakerStats() []breaker.Stats
}

type GetSubscriptionQuery struct {
	reader SubscriptionReader
}

func NewGetSubscriptionQuery(reader SubscriptionReader) *GetSubscriptionQuery {
	return &GetSubscriptionQuery{reader: reader}
}

func (q *GetSubscriptionQuery) Query(ctx context.Context, msg GetSubscriptionMessage) (core.BillingAccount, error) {
	if q == nil || q.reader == nil {
		return core.BillingAccount{}, queryDependencyError("query: subscription reader is required")
	}
	return q.reader.GetSubscription(ctx, msg.AccountID)
}

type GetProcessedEventQuery struct {
	reader ProcessedEventReader
}

func NewGetProcessedEventQuery(reader ProcessedEventReader) *GetProcessedEventQuery {
	return &GetProcessedEventQuery{reader: reader}
}

func (q *GetProcessedEventQuery) Query(ctx context.Context, msg GetProcessedEventMessage) (core.ProcessedEvent, error) {
	if q == nil || q.reader == nil {
		return core.ProcessedEvent{}, queryDependencyError("query: processed event reader is required")
	}
	return q.reader.Get(ctx, msg.EventID)
}

type BreakerStatsQuery struct {
	reader BreakerStatsReader
}

func NewBreakerStatsQuery(reader BreakerStatsReader) *BreakerStatsQuery {
	return &BreakerStatsQuery{reader: reader}
}

func (q *BreakerStatsQuery) Query(ctx context.Context, _ BreakerStatsMessage) ([]breaker.Stats, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: breaker stats reader is required")
	}
	return q.reader.BreakerStats(), nil
}
