package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/protocolguide/go-billing/breaker"
	"github.com/protocolguide/go-billing/core"
)

var (
	_ gocmd.Querier[GetSubscriptionMessage, core.BillingAccount]   = (*GetSubscriptionQuery)(nil)
	_ gocmd.Querier[GetProcessedEventMessage, core.ProcessedEvent] = (*GetProcessedEventQuery)(nil)
	_ gocmd.Querier[BreakerStatsMessage, []breaker.Stats]          = (*BreakerStatsQuery)(nil)
)
