package core

import (
	"testing"
	"time"
)

func TestTierForStatus(t *testing.T) {
	cases := []struct {
		status SubscriptionStatus
		want   Tier
	}{
		{SubscriptionStatusActive, TierPro},
		{SubscriptionStatusTrialing, TierPro},
		{SubscriptionStatusPastDue, TierFree},
		{SubscriptionStatusCanceled, TierFree},
		{SubscriptionStatusIncomplete, TierFree},
		{SubscriptionStatusUnpaid, TierFree},
		{SubscriptionStatusNone, TierFree},
		{SubscriptionStatus("paused"), TierFree},
	}
	for _, tc := range cases {
		if got := TierForStatus(tc.status); got != tc.want {
			t.Fatalf("TierForStatus(%q) = %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestCheckoutAccountReference(t *testing.T) {
	data := CheckoutSessionData{
		ClientReferenceID: "acct_1",
		Metadata:          map[string]string{"account_id": "acct_2"},
	}
	if got := data.AccountReference(); got != "acct_1" {
		t.Fatalf("expected client reference to win, got %q", got)
	}

	data.ClientReferenceID = " "
	if got := data.AccountReference(); got != "acct_2" {
		t.Fatalf("expected metadata account_id, got %q", got)
	}

	data.Metadata = map[string]string{"user_id": "acct_3"}
	if got := data.AccountReference(); got != "acct_3" {
		t.Fatalf("expected metadata user_id, got %q", got)
	}

	data.Metadata = nil
	if got := data.AccountReference(); got != "" {
		t.Fatalf("expected empty reference, got %q", got)
	}
}

func TestWebhookConfigTolerance(t *testing.T) {
	var cfg WebhookConfig
	if got := cfg.Tolerance(); got != 5*time.Minute {
		t.Fatalf("expected default tolerance 5m, got %v", got)
	}
	cfg.SignatureTolerance = 90 * time.Second
	if got := cfg.Tolerance(); got != 90*time.Second {
		t.Fatalf("expected configured tolerance, got %v", got)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}

	cfg.ServiceName = " "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected blank service name to fail validation")
	}

	cfg = DefaultConfig()
	cfg.Webhook.SignatureTolerance = -time.Minute
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative tolerance to fail validation")
	}
}
