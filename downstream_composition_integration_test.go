package billing_test

import (
	"context"
	"fmt"
	"testing"

	billing "github.com/protocolguide/go-billing"
	"github.com/protocolguide/go-billing/breaker"
	"github.com/protocolguide/go-billing/core"
)

// A downstream product composes the runtime through its public surface: the
// shared breaker registry, the guarded LLM call with a degraded fallback,
// and the subscription read. It never touches runtime internals.
func TestDownstreamComposition_UsesGuardedPrimitivesWithoutOwningRuntimeInternals(t *testing.T) {
	registry := breaker.NewRegistry()
	llm := &downstreamLLMClient{response: "full answer"}

	svc, err := billing.NewService(
		billing.Config{},
		billing.WithBreakerRegistry(registry),
		billing.WithLLMClient(llm),
		billing.WithBillingAccountStore(downstreamAccountStore{
			accounts: map[string]core.BillingAccount{
				"acct_pro": {AccountID: "acct_pro", Tier: core.TierPro, Status: core.SubscriptionStatusActive},
			},
		}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	domain := downstreamAssistantDomain{runtime: svc}

	answer, err := domain.Answer(context.Background(), "acct_pro", "summarize my invoices")
	if err != nil {
		t.Fatalf("answer through runtime primitives: %v", err)
	}
	if answer != "full answer" {
		t.Fatalf("expected upstream completion, got %q", answer)
	}
	if llm.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", llm.calls)
	}

	// Unknown accounts are rejected before any upstream call.
	if _, err := domain.Answer(context.Background(), "acct_missing", "hello"); err == nil {
		t.Fatalf("expected unknown account to be rejected")
	}
	if llm.calls != 1 {
		t.Fatalf("expected no upstream call for unknown account, got %d", llm.calls)
	}

	// The host owns the registry, so it can trip the shared llm tracker and
	// the domain degrades without a second upstream attempt.
	llmBreaker, ok := registry.Get("llm")
	if !ok {
		t.Fatalf("expected llm breaker in shared registry")
	}
	if err := llmBreaker.ForceState(breaker.StateOpen); err != nil {
		t.Fatalf("force open llm breaker: %v", err)
	}

	answer, err = domain.Answer(context.Background(), "acct_pro", "summarize again")
	if err != nil {
		t.Fatalf("degraded answer: %v", err)
	}
	if answer != "assistant is temporarily unavailable" {
		t.Fatalf("expected degraded answer while open, got %q", answer)
	}
	if llm.calls != 1 {
		t.Fatalf("expected rejected attempt to skip upstream, got %d calls", llm.calls)
	}

	stats := svc.BreakerStats()
	var found bool
	for _, s := range stats {
		if s.Name == "llm" && s.State == breaker.StateOpen {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected open llm tracker in stats snapshot, got %#v", stats)
	}
}

type downstreamRuntime interface {
	GetSubscription(ctx context.Context, accountID string) (core.BillingAccount, error)
	Complete(
		ctx context.Context,
		in core.CompletionInput,
		fallback func(ctx context.Context) (core.CompletionResult, error),
	) (core.CompletionResult, error)
}

type downstreamAssistantDomain struct {
	runtime downstreamRuntime
}

func (d downstreamAssistantDomain) Answer(ctx context.Context, accountID string, prompt string) (string, error) {
	if d.runtime == nil {
		return "", fmt.Errorf("runtime is required")
	}
	account, err := d.runtime.GetSubscription(ctx, accountID)
	if err != nil {
		return "", err
	}
	if account.Tier != core.TierPro {
		return "", fmt.Errorf("assistant requires the pro tier")
	}

	result, err := d.runtime.Complete(ctx, core.CompletionInput{
		System: "You are a billing assistant.",
		Prompt: prompt,
	}, func(context.Context) (core.CompletionResult, error) {
		return core.CompletionResult{Content: "assistant is temporarily unavailable"}, nil
	})
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

type downstreamLLMClient struct {
	calls    int
	response string
}

func (c *downstreamLLMClient) Complete(context.Context, core.CompletionInput) (core.CompletionResult, error) {
	c.calls++
	return core.CompletionResult{Content: c.response}, nil
}

type downstreamAccountStore struct {
	accounts map[string]core.BillingAccount
}

func (s downstreamAccountStore) GetByAccountID(_ context.Context, accountID string) (core.BillingAccount, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return core.BillingAccount{}, core.ErrAccountNotFound
	}
	return account, nil
}

func (s downstreamAccountStore) GetByCustomerID(_ context.Context, customerID string) (core.BillingAccount, error) {
	for _, account := range s.accounts {
		if account.BillingCustomerID == customerID {
			return account, nil
		}
	}
	return core.BillingAccount{}, core.ErrAccountNotFound
}

func (s downstreamAccountStore) Update(_ context.Context, accountID string, _ core.BillingAccountUpdate) (core.BillingAccount, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return core.BillingAccount{}, core.ErrAccountNotFound
	}
	return account, nil
}
