package command

import (
	"fmt"
	"strings"

	"github.com/protocolguide/go-billing/core"
)

const (
	TypeProcessBillingEvent   = "billing.command.event.process"
	TypeCreateCheckoutSession = "billing.command.checkout_session.create"
	TypeCreatePortalSession   = "billing.command.portal_session.create"
	TypeReconcileSubscription = "billing.command.subscription.reconcile"
	TypeResetBreaker          = "billing.command.breaker.reset"
)

type ProcessBillingEventMessage struct {
	Event core.BillingEvent
}

func (ProcessBillingEventMessage) Type() string { return TypeProcessBillingEvent }

func (m ProcessBillingEventMessage) Validate() error {
	if strings.TrimSpace(string(m.Event.Type)) == "" {
		return fmt.Errorf("command: event type is required")
	}
	return nil
}

type CreateCheckoutSessionMessage struct {
	Input core.CheckoutSessionInput
}

func (CreateCheckoutSessionMessage) Type() string { return TypeCreateCheckoutSession }

func (m CreateCheckoutSessionMessage) Validate() error {
	if strings.TrimSpace(m.Input.AccountID) == "" {
		return fmt.Errorf("command: account id is required")
	}
	return nil
}

type CreatePortalSessionMessage struct {
	CustomerID string
	ReturnURL  string
}

func (CreatePortalSessionMessage) Type() string { return TypeCreatePortalSession }

func (m CreatePortalSessionMessage) Validate() error {
	if strings.TrimSpace(m.CustomerID) == "" {
		return fmt.Errorf("command: billing customer id is required")
	}
	return nil
}

type ReconcileSubscriptionMessage struct {
	AccountID string
}

func (ReconcileSubscriptionMessage) Type() string { return TypeReconcileSubscription }

func (m ReconcileSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return fmt.Errorf("command: account id is required")
	}
	return nil
}

type ResetBreakerMessage struct {
	Name string
}

func (ResetBreakerMessage) Type() string { return TypeResetBreaker }

func (m ResetBreakerMessage) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("command: breaker name is required")
	}
	return nil
}
