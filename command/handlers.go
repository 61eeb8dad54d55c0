package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/protocolguide/go-billing/core"
)

// MutatingService is the slice of the billing service that commands are
// allowed to drive. *core.Service satisfies it.
type MutatingService interface {
	ApplyBillingEvent(ctx context.Context, event core.BillingEvent) error
	CreateCheckoutSession(ctx context.Context, in core.CheckoutSessionInput) (core.SessionLink, error)
	CreatePortalSession(ctx context.Context, customerID string, returnURL string) (core.SessionLink, error)
	ReconcileSubscription(ctx context.Context, accountID string) (core.BillingAccount, error)
	ResetBreaker(name string)
}

type ProcessBillingEventCommand struct {
	service MutatingService
}

func NewProcessBillingEventCommand(service MutatingService) *ProcessBillingEventCommand {
	return &ProcessBillingEventCommand{service: service}
}

func (c *ProcessBillingEventCommand) Execute(ctx context.Context, msg ProcessBillingEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: billing event service is required")
	}
	return c.service.ApplyBillingEvent(ctx, msg.Event)
}

type CreateCheckoutSessionCommand struct {
	service MutatingService
}

func NewCreateCheckoutSessionCommand(service MutatingService) *CreateCheckoutSessionCommand {
	return &CreateCheckoutSessionCommand{service: service}
}

func (c *CreateCheckoutSessionCommand) Execute(ctx context.Context, msg CreateCheckoutSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: checkout session service is required")
	}
	out, err := c.service.CreateCheckoutSession(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreatePortalSessionCommand struct {
	service MutatingService
}

func NewCreatePortalSessionCommand(service MutatingService) *CreatePortalSessionCommand {
	return &CreatePortalSessionCommand{service: service}
}

func (c *CreatePortalSessionCommand) Execute(ctx context.Context, msg CreatePortalSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: portal session service is required")
	}
	out, err := c.service.CreatePortalSession(ctx, msg.CustomerID, msg.ReturnURL)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReconcileSubscriptionCommand struct {
	service MutatingService
}

func NewReconcileSubscriptionCommand(service MutatingService) *ReconcileSubscriptionCommand {
	return &ReconcileSubscriptionCommand{service: service}
}

func (c *ReconcileSubscriptionCommand) Execute(ctx context.Context, msg ReconcileSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: reconcile service is required")
	}
	out, err := c.service.ReconcileSubscription(ctx, msg.AccountID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResetBreakerCommand struct {
	service MutatingService
}

func NewResetBreakerCommand(service MutatingService) *ResetBreakerCommand {
	return &ResetBreakerCommand{service: service}
}

func (c *ResetBreakerCommand) Execute(ctx context.Context, msg ResetBreakerMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: breaker service is required")
	}
	c.service.ResetBreaker(msg.Name)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
