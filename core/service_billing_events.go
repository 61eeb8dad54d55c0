package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/protocolguide/go-billing/breaker"
)

// ApplyBillingEvent is the subscription state synchronizer. It consumes one
// verified, previously-unseen event and updates the stored subscription/tier
// record. A missing local account for a known external id is an expected
// race: every lookup branch logs and returns nil rather than raising.
// Events for one account may arrive out of order; subscription updates are
// last-write-wins on the fields they touch, not a queue.
func (s *Service) ApplyBillingEvent(ctx context.Context, event BillingEvent) error {
	if s == nil {
		return fmt.Errorf("core: billing service is not configured")
	}
	startedAt := time.Now()

	var err error
	switch event.Type {
	case EventCheckoutCompleted:
		err = s.applyCheckoutCompleted(ctx, event)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		err = s.applySubscriptionChanged(ctx, event)
	case EventSubscriptionDeleted:
		err = s.applySubscriptionDeleted(ctx, event)
	case EventInvoicePaymentSucceeded:
		err = s.applyInvoicePaymentSucceeded(ctx, event)
	case EventInvoicePaymentFailed:
		err = s.applyInvoicePaymentFailed(ctx, event)
	case EventDisputeCreated, EventDisputeClosed:
		err = s.applyDispute(ctx, event)
	case EventCustomerDeleted:
		err = s.applyCustomerDeleted(ctx, event)
	default:
		// New event types appear without notice; acknowledge, never error.
		s.logInfo(ctx, "unrecognized billing event acknowledged", map[string]any{
			"event_id":           event.ID,
			"billing_event_type": string(event.Type),
		})
	}

	s.observeOperation(ctx, startedAt, "billing_event_apply", err, map[string]any{
		"event_id":           event.ID,
		"billing_event_type": string(event.Type),
	})
	return err
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, event BillingEvent) error {
	data := event.Checkout
	if data == nil {
		s.logInfo(ctx, "checkout event carried no session payload", map[string]any{
			"event_id": event.ID,
		})
		return nil
	}

	reference := data.AccountReference()
	if reference == "" {
		s.logInfo(ctx, "checkout session carried no account reference", map[string]any{
			"event_id":   event.ID,
			"session_id": data.SessionID,
		})
		return nil
	}
	if err := s.requireAccountStore(); err != nil {
		return err
	}

	account, found, err := s.accountByAccountID(ctx, reference)
	if err != nil {
		return err
	}
	if !found {
		s.logInfo(ctx, "checkout references unknown account", map[string]any{
			"event_id":   event.ID,
			"account_id": reference,
		})
		return nil
	}

	pro := TierPro
	update := BillingAccountUpdate{Tier: &pro}
	if customerID := strings.TrimSpace(data.CustomerID); customerID != "" {
		update.BillingCustomerID = &customerID
	}
	_, err = s.updateAccount(ctx, account.AccountID, update)
	return err
}

func (s *Service) applySubscriptionChanged(ctx context.Context, event BillingEvent) error {
	data := event.Subscription
	if data == nil {
		s.logInfo(ctx, "subscription event carried no payload", map[string]any{
			"event_id": event.ID,
		})
		return nil
	}
	if err := s.requireAccountStore(); err != nil {
		return err
	}

	account, found, err := s.accountByCustomerID(ctx, data.CustomerID)
	if err != nil {
		return err
	}
	if !found {
		s.logInfo(ctx, "subscription change for unknown billing customer", map[string]any{
			"event_id":            event.ID,
			"billing_customer_id": data.CustomerID,
		})
		return nil
	}

	status := data.Status
	tier := TierForStatus(status)
	update := BillingAccountUpdate{
		Status: &status,
		Tier:   &tier,
	}
	if subscriptionID := strings.TrimSpace(data.SubscriptionID); subscriptionID != "" {
		update.BillingSubscriptionID = &subscriptionID
	}
	if data.CurrentPeriodEnd != nil {
		periodEnd := data.CurrentPeriodEnd.UTC()
		update.CurrentPeriodEnd = &periodEnd
	} else {
		update.ClearCurrentPeriodEnd = true
	}
	_, err = s.updateAccount(ctx, account.AccountID, update)
	return err
}

func (s *Service) applySubscriptionDeleted(ctx context.Context, event BillingEvent) error {
	data := event.Subscription
	if data == nil {
		s.logInfo(ctx, "subscription delete carried no payload", map[string]any{
			"event_id": event.ID,
		})
		return nil
	}
	if err := s.requireAccountStore(); err != nil {
		return err
	}

	account, found, err := s.accountByCustomerID(ctx, data.CustomerID)
	if err != nil {
		return err
	}
	if !found {
		s.logInfo(ctx, "subscription delete for unknown billing customer", map[string]any{
			"event_id":            event.ID,
			"billing_customer_id": data.CustomerID,
		})
		return nil
	}

	free := TierFree
	canceled := SubscriptionStatusCanceled
	_, err = s.updateAccount(ctx, account.AccountID, BillingAccountUpdate{
		Tier:                  &free,
		Status:                &canceled,
		ClearSubscription:     true,
		ClearCurrentPeriodEnd: true,
	})
	return err
}

// applyInvoicePaymentSucceeded self-heals a missed subscription update: a
// successful payment for a known account upgrades to pro unconditionally.
func (s *Service) applyInvoicePaymentSucceeded(ctx context.Context, event BillingEvent) error {
	data := event.Invoice
	if data == nil {
		s.logInfo(ctx, "invoice event carried no payload", map[string]any{
			"event_id": event.ID,
		})
		return nil
	}
	if err := s.requireAccountStore(); err != nil {
		return err
	}

	account, found, err := s.accountByCustomerID(ctx, data.CustomerID)
	if err != nil {
		return err
	}
	if !found {
		s.logInfo(ctx, "invoice payment for unknown billing customer", map[string]any{
			"event_id":            event.ID,
			"billing_customer_id": data.CustomerID,
		})
		return nil
	}
	if account.Tier == TierPro {
		return nil
	}

	pro := TierPro
	_, err = s.updateAccount(ctx, account.AccountID, BillingAccountUpdate{Tier: &pro})
	return err
}

// applyInvoicePaymentFailed logs only. Downgrades come exclusively from
// subscription-status events, never from a single transient payment failure.
func (s *Service) applyInvoicePaymentFailed(ctx context.Context, event BillingEvent) error {
	data := event.Invoice
	fields := map[string]any{
		"event_id": event.ID,
	}
	if data != nil {
		fields["billing_customer_id"] = data.CustomerID
		fields["invoice_id"] = data.InvoiceID
		fields["attempt_count"] = data.AttemptCount
	}
	s.logError(ctx, "invoice payment failed", fields)
	return nil
}

func (s *Service) applyDispute(ctx context.Context, event BillingEvent) error {
	fields := map[string]any{
		"event_id":           event.ID,
		"billing_event_type": string(event.Type),
		"manual_review":      true,
	}
	if data := event.Dispute; data != nil {
		fields["dispute_id"] = data.DisputeID
		fields["charge_id"] = data.ChargeID
		fields["reason"] = data.Reason
		fields["dispute_status"] = data.Status
	}
	s.logError(ctx, "billing dispute flagged for review", fields)
	s.recordCounter(ctx, "billing.dispute.flagged", 1, map[string]string{
		"event_type": string(event.Type),
	})
	return nil
}

func (s *Service) applyCustomerDeleted(ctx context.Context, event BillingEvent) error {
	data := event.Customer
	if data == nil {
		s.logInfo(ctx, "customer delete carried no payload", map[string]any{
			"event_id": event.ID,
		})
		return nil
	}
	if err := s.requireAccountStore(); err != nil {
		return err
	}

	account, found, err := s.accountByCustomerID(ctx, data.CustomerID)
	if err != nil {
		return err
	}
	if !found {
		s.logInfo(ctx, "customer delete for unknown billing customer", map[string]any{
			"event_id":            event.ID,
			"billing_customer_id": data.CustomerID,
		})
		return nil
	}

	free := TierFree
	none := SubscriptionStatusNone
	_, err = s.updateAccount(ctx, account.AccountID, BillingAccountUpdate{
		Tier:                  &free,
		Status:                &none,
		ClearBillingCustomer:  true,
		ClearSubscription:     true,
		ClearCurrentPeriodEnd: true,
	})
	return err
}

type accountLookup struct {
	account BillingAccount
	found   bool
}

// accountByCustomerID reads through the database breaker. A missing account
// is an expected outcome and never counts as a dependency failure.
func (s *Service) accountByCustomerID(ctx context.Context, customerID string) (BillingAccount, bool, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return BillingAccount{}, false, nil
	}
	out, err := breaker.Execute(ctx, s.databaseBreaker, func(ctx context.Context) (accountLookup, error) {
		account, err := s.accountStore.GetByCustomerID(ctx, customerID)
		if errors.Is(err, ErrAccountNotFound) {
			return accountLookup{}, nil
		}
		if err != nil {
			return accountLookup{}, err
		}
		return accountLookup{account: account, found: true}, nil
	}, nil)
	if err != nil {
		return BillingAccount{}, false, err
	}
	return out.account, out.found, nil
}

func (s *Service) accountByAccountID(ctx context.Context, accountID string) (BillingAccount, bool, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return BillingAccount{}, false, nil
	}
	out, err := breaker.Execute(ctx, s.databaseBreaker, func(ctx context.Context) (accountLookup, error) {
		account, err := s.accountStore.GetByAccountID(ctx, accountID)
		if errors.Is(err, ErrAccountNotFound) {
			return accountLookup{}, nil
		}
		if err != nil {
			return accountLookup{}, err
		}
		return accountLookup{account: account, found: true}, nil
	}, nil)
	if err != nil {
		return BillingAccount{}, false, err
	}
	return out.account, out.found, nil
}

func (s *Service) updateAccount(
	ctx context.Context,
	accountID string,
	update BillingAccountUpdate,
) (BillingAccount, error) {
	return breaker.Execute(ctx, s.databaseBreaker, func(ctx context.Context) (BillingAccount, error) {
		return s.accountStore.Update(ctx, accountID, update)
	}, nil)
}
