package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	billingcommand "github.com/protocolguide/go-billing/command"
	"github.com/protocolguide/go-billing/core"
	billingquery "github.com/protocolguide/go-billing/query"

	"github.com/protocolguide/go-billing/breaker"
	"github.com/protocolguide/go-billing/inbound"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc, WithProcessedEventReader(&stubEventReader{}))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.ProcessEvent == nil || commands.ReconcileSubscription == nil || commands.ResetBreaker == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetSubscription == nil || queries.GetProcessedEvent == nil || queries.BreakerStats == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc, WithProcessedEventReader(&stubEventReader{}))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().ProcessEvent.Execute(context.Background(), billingcommand.ProcessBillingEventMessage{
		Event: core.BillingEvent{ID: "evt_1", Type: core.EventInvoicePaymentSucceeded},
	}); err != nil {
		t.Fatalf("execute process event command: %v", err)
	}
	if svc.lastEventID != "evt_1" {
		t.Fatalf("unexpected process event delegation payload")
	}

	account, err := facade.Queries().GetSubscription.Query(context.Background(), billingquery.GetSubscriptionMessage{
		AccountID: "acct_1",
	})
	if err != nil {
		t.Fatalf("query subscription: %v", err)
	}
	if account.AccountID != "acct_1" || account.Tier != core.TierPro {
		t.Fatalf("unexpected subscription query result: %#v", account)
	}

	stats, err := facade.Queries().BreakerStats.Query(context.Background(), billingquery.BreakerStatsMessage{})
	if err != nil {
		t.Fatalf("query breaker stats: %v", err)
	}
	if len(stats) != 1 || stats[0].Name != "database" {
		t.Fatalf("unexpected breaker stats result: %#v", stats)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

func TestNewFacade_ResolvesProcessedEventReaderFromService(t *testing.T) {
	svc := &stubFacadeServiceWithStore{
		store: &stubEventReaderStore{},
	}

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	event, err := facade.Queries().GetProcessedEvent.Query(context.Background(), billingquery.GetProcessedEventMessage{
		EventID: "evt_seen",
	})
	if err != nil {
		t.Fatalf("query processed event: %v", err)
	}
	if event.EventID != "evt_seen" {
		t.Fatalf("expected reader resolved from service store, got %#v", event)
	}
}

func TestNew_RuntimeServesWebhookEndToEnd(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Webhook.Secret = "whsec_runtime"

	runtime, err := New(cfg)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	if runtime.Service == nil || runtime.Processor == nil || runtime.Webhook == nil || runtime.Facade == nil {
		t.Fatalf("expected fully wired runtime")
	}

	router := inbound.NewRouter(runtime.Webhook)

	body := []byte(`{"id":"evt_runtime_1","type":"some.future_event","data":{"object":{}}}`)
	header := signRuntimePayload("whsec_runtime", body)

	first := postRuntimeWebhook(t, router, body, header)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200 for first delivery, got %d: %s", first.Code, first.Body.String())
	}

	second := postRuntimeWebhook(t, router, body, header)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 for redelivery, got %d", second.Code)
	}
	var ack core.ProcessResult
	if err := json.Unmarshal(second.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode redelivery ack: %v", err)
	}
	if !ack.Skipped || ack.Reason != core.ReasonAlreadyProcessed {
		t.Fatalf("expected duplicate to be skipped, got %#v", ack)
	}

	forged := postRuntimeWebhook(t, router, body, signRuntimePayload("whsec_wrong", body))
	if forged.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for forged signature, got %d", forged.Code)
	}
}

func postRuntimeWebhook(t *testing.T, router http.Handler, body []byte, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, inbound.WebhookPath, strings.NewReader(string(body)))
	req.Header.Set("Stripe-Signature", header)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func signRuntimePayload(secret string, body []byte) string {
	timestamp := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, body)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

type stubFacadeService struct {
	lastEventID string
	lastReset   string
}

func (s *stubFacadeService) ApplyBillingEvent(_ context.Context, event core.BillingEvent) error {
	s.lastEventID = event.ID
	return nil
}

func (s *stubFacadeService) CreateCheckoutSession(context.Context, core.CheckoutSessionInput) (core.SessionLink, error) {
	return core.SessionLink{URL: "https://billing.example.com/c/cs_1"}, nil
}

func (s *stubFacadeService) CreatePortalSession(context.Context, string, string) (core.SessionLink, error) {
	return core.SessionLink{URL: "https://billing.example.com/p/ps_1"}, nil
}

func (s *stubFacadeService) ReconcileSubscription(_ context.Context, accountID string) (core.BillingAccount, error) {
	return core.BillingAccount{AccountID: accountID, Tier: core.TierFree}, nil
}

func (s *stubFacadeService) ResetBreaker(name string) {
	s.lastReset = name
}

func (s *stubFacadeService) GetSubscription(_ context.Context, accountID string) (core.BillingAccount, error) {
	return core.BillingAccount{AccountID: accountID, Tier: core.TierPro}, nil
}

func (s *stubFacadeService) BreakerStats() []breaker.Stats {
	return []breaker.Stats{{Name: "database", State: breaker.StateClosed}}
}

type stubFacadeServiceWithStore struct {
	stubFacadeService
	store core.ProcessedEventStore
}

func (s *stubFacadeServiceWithStore) ProcessedEventStore() core.ProcessedEventStore {
	return s.store
}

type stubEventReader struct{}

func (stubEventReader) Get(_ context.Context, eventID string) (core.ProcessedEvent, error) {
	return core.ProcessedEvent{EventID: eventID}, nil
}

type stubEventReaderStore struct{}

func (stubEventReaderStore) Claim(context.Context, string, string) (bool, error) {
	return true, nil
}

func (stubEventReaderStore) Get(_ context.Context, eventID string) (core.ProcessedEvent, error) {
	return core.ProcessedEvent{EventID: eventID}, nil
}
