package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ProcessBillingEventMessage]   = (*ProcessBillingEventCommand)(nil)
	_ gocmd.Commander[CreateCheckoutSessionMessage] = (*CreateCheckoutSessionCommand)(nil)
	_ gocmd.Commander[CreatePortalSessionMessage]   = (*CreatePortalSessionCommand)(nil)
	_ gocmd.Commander[ReconcileSubscriptionMessage] = (*ReconcileSubscriptionCommand)(nil)
	_ gocmd.Commander[ResetBreakerMessage]          = (*ResetBreakerCommand)(nil)
)
