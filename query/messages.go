package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetSubscription   = "billing.query.subscription.get"
	TypeGetProcessedEvent = "billing.query.event.get"
	TypeBreakerStats      = "billing.query.breaker.stats"
)

type GetSubscriptionMessage struct {
	AccountID string
}

func (GetSubscriptionMessage) Type() string { return TypeGetSubscription }

func (m GetSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return fmt.Errorf("query: account id is required")
	}
	return nil
}

type GetProcessedEventMessage struct {
	EventID string
}

func (GetProcessedEventMessage) Type() string { return TypeGetProcessedEvent }

func (m GetProcessedEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("query: event id is required")
	}
	return nil
}

// BreakerStatsMessage has no parameters: the snapshot always covers every
// registered breaker.
type BreakerStatsMessage struct{}

func (BreakerStatsMessage) Type() string { return TypeBreakerStats }

func (BreakerStatsMessage) Validate() error { return nil }
