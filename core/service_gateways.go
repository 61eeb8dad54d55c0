package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/protocolguide/go-billing/breaker"
)

// CreateCheckoutSession mints a provider-hosted checkout URL through the
// billing breaker. Provider errors pass through unchanged so callers can
// distinguish a rejected attempt from an in-circuit failure.
func (s *Service) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (SessionLink, error) {
	if s == nil || s.billingGateway == nil {
		return SessionLink{}, fmt.Errorf("core: billing gateway is not configured")
	}
	if strings.TrimSpace(in.AccountID) == "" {
		return SessionLink{}, fmt.Errorf("core: checkout session requires an account id")
	}
	startedAt := time.Now()

	link, err := breaker.Execute(ctx, s.billingBreaker, func(ctx context.Context) (SessionLink, error) {
		return s.billingGateway.CreateCheckoutSession(ctx, in)
	}, nil)

	s.observeOperation(ctx, startedAt, "checkout_session_create", err, map[string]any{
		"account_id": in.AccountID,
	})
	if err != nil {
		return SessionLink{}, err
	}
	return link, nil
}

// CreatePortalSession mints a customer-portal URL for an already-linked
// billing customer.
func (s *Service) CreatePortalSession(ctx context.Context, customerID string, returnURL string) (SessionLink, error) {
	if s == nil || s.billingGateway == nil {
		return SessionLink{}, fmt.Errorf("core: billing gateway is not configured")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return SessionLink{}, fmt.Errorf("core: portal session requires a billing customer id")
	}
	startedAt := time.Now()

	link, err := breaker.Execute(ctx, s.billingBreaker, func(ctx context.Context) (SessionLink, error) {
		return s.billingGateway.CreatePortalSession(ctx, customerID, returnURL)
	}, nil)

	s.observeOperation(ctx, startedAt, "portal_session_create", err, map[string]any{
		"billing_customer_id": customerID,
	})
	if err != nil {
		return SessionLink{}, err
	}
	return link, nil
}

// Complete runs one inference call through the llm breaker. A degraded
// fallback, when supplied, answers only while the circuit rejects attempts;
// an upstream failure inside a closed or half-open circuit still errors.
func (s *Service) Complete(
	ctx context.Context,
	in CompletionInput,
	fallback func(ctx context.Context) (CompletionResult, error),
) (CompletionResult, error) {
	if s == nil || s.llmClient == nil {
		return CompletionResult{}, fmt.Errorf("core: llm client is not configured")
	}
	startedAt := time.Now()

	result, err := breaker.Execute(ctx, s.llmBreaker, func(ctx context.Context) (CompletionResult, error) {
		return s.llmClient.Complete(ctx, in)
	}, fallback)

	s.observeOperation(ctx, startedAt, "llm_complete", err, nil)
	if err != nil {
		return CompletionResult{}, err
	}
	return result, nil
}

// GetSubscription reads one account's stored subscription record through the
// database breaker.
func (s *Service) GetSubscription(ctx context.Context, accountID string) (BillingAccount, error) {
	if err := s.requireAccountStore(); err != nil {
		return BillingAccount{}, err
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return BillingAccount{}, fmt.Errorf("core: subscription lookup requires an account id")
	}
	startedAt := time.Now()

	account, found, err := s.accountByAccountID(ctx, accountID)
	s.observeOperation(ctx, startedAt, "subscription_get", err, map[string]any{
		"account_id": accountID,
	})
	if err != nil {
		return BillingAccount{}, err
	}
	if !found {
		return BillingAccount{}, ErrAccountNotFound
	}
	return account, nil
}

// ReconcileSubscription re-derives the tier from the stored subscription
// status and repairs drift. Safe to run from a scheduled job at any time.
func (s *Service) ReconcileSubscription(ctx context.Context, accountID string) (BillingAccount, error) {
	if err := s.requireAccountStore(); err != nil {
		return BillingAccount{}, err
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return BillingAccount{}, fmt.Errorf("core: reconcile requires an account id")
	}
	startedAt := time.Now()

	account, err := s.reconcileSubscription(ctx, accountID)
	s.observeOperation(ctx, startedAt, "subscription_reconcile", err, map[string]any{
		"account_id": accountID,
	})
	return account, err
}

func (s *Service) reconcileSubscription(ctx context.Context, accountID string) (BillingAccount, error) {
	account, found, err := s.accountByAccountID(ctx, accountID)
	if err != nil {
		return BillingAccount{}, err
	}
	if !found {
		return BillingAccount{}, ErrAccountNotFound
	}

	expected := TierForStatus(account.Status)
	if account.Tier == expected {
		return account, nil
	}

	s.logInfo(ctx, "repairing tier drift", map[string]any{
		"account_id": accountID,
		"stored":     string(account.Tier),
		"expected":   string(expected),
	})
	return s.updateAccount(ctx, accountID, BillingAccountUpdate{Tier: &expected})
}
