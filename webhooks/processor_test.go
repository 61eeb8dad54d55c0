package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/protocolguide/go-billing/core"
)

type recordingHandler struct {
	mu       sync.Mutex
	events   []core.BillingEvent
	failWith error
}

func (h *recordingHandler) ApplyBillingEvent(_ context.Context, event core.BillingEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failWith != nil {
		return h.failWith
	}
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func newTestProcessor(handler Handler) (*Processor, time.Time) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	verifier := SignatureVerifier{Secret: "whsec_test", Tolerance: 5 * time.Minute, Now: fixedClock(now)}
	return NewProcessor(verifier, NewMemoryLedger(), handler), now
}

func TestProcessDispatchesFirstDelivery(t *testing.T) {
	handler := &recordingHandler{}
	processor, now := newTestProcessor(handler)

	body := []byte(`{
		"id": "evt_1",
		"type": "customer.subscription.updated",
		"created": 1766908800,
		"data": {"object": {"id": "sub_1", "customer": "cus_1", "status": "active"}}
	}`)
	result, err := processor.Process(context.Background(), body, signPayload("whsec_test", now, body))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !result.Received || result.Skipped {
		t.Fatalf("expected received acknowledgement, got %+v", result)
	}
	if handler.count() != 1 {
		t.Fatalf("expected one dispatch, got %d", handler.count())
	}

	event := handler.events[0]
	if event.ID != "evt_1" || event.Type != core.EventSubscriptionUpdated {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Subscription == nil || event.Subscription.CustomerID != "cus_1" {
		t.Fatalf("expected subscription payload, got %+v", event.Subscription)
	}
}

func TestProcessDuplicateDeliverySkips(t *testing.T) {
	handler := &recordingHandler{}
	processor, now := newTestProcessor(handler)

	body := []byte(`{"id": "evt_dup", "type": "invoice.payment_succeeded", "data": {"object": {"id": "in_1", "customer": "cus_1"}}}`)
	header := signPayload("whsec_test", now, body)

	first, err := processor.Process(context.Background(), body, header)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	if first.Skipped {
		t.Fatalf("expected first delivery to dispatch")
	}

	second, err := processor.Process(context.Background(), body, header)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if !second.Received || !second.Skipped || second.Reason != core.ReasonAlreadyProcessed {
		t.Fatalf("expected already-processed acknowledgement, got %+v", second)
	}
	if handler.count() != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", handler.count())
	}
}

func TestProcessRejectsBadSignatureBeforeAnySideEffect(t *testing.T) {
	handler := &recordingHandler{}
	ledger := NewMemoryLedger()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	processor := NewProcessor(
		SignatureVerifier{Secret: "whsec_test", Tolerance: 5 * time.Minute, Now: fixedClock(now)},
		ledger,
		handler,
	)

	body := []byte(`{"id": "evt_forged", "type": "customer.subscription.updated", "data": {"object": {}}}`)
	_, err := processor.Process(context.Background(), body, signPayload("whsec_forged", now, body))
	var sigErr SignatureError
	if !errors.As(err, &sigErr) {
		t.Fatalf("expected SignatureError, got %v", err)
	}
	if handler.count() != 0 {
		t.Fatalf("expected no dispatch, got %d", handler.count())
	}
	if _, err := ledger.Get(context.Background(), "evt_forged"); !errors.Is(err, core.ErrEventNotFound) {
		t.Fatalf("expected forged event to never reach the ledger, got %v", err)
	}

	// A later legitimate delivery of the same id still processes normally.
	result, err := processor.Process(context.Background(), body, signPayload("whsec_test", now, body))
	if err != nil {
		t.Fatalf("legitimate Process: %v", err)
	}
	if !result.Received || result.Skipped {
		t.Fatalf("expected legitimate delivery to dispatch, got %+v", result)
	}
}

func TestProcessMalformedPayloadErrors(t *testing.T) {
	handler := &recordingHandler{}
	processor, now := newTestProcessor(handler)

	body := []byte(`{"id": "evt_broken", "type":`)
	if _, err := processor.Process(context.Background(), body, signPayload("whsec_test", now, body)); err == nil {
		t.Fatalf("expected malformed payload to error")
	}
	if handler.count() != 0 {
		t.Fatalf("expected no dispatch, got %d", handler.count())
	}
}

func TestProcessEmptyEventIDDispatchesWithoutDedupe(t *testing.T) {
	handler := &recordingHandler{}
	processor, now := newTestProcessor(handler)

	body := []byte(`{"type": "invoice.payment_failed", "data": {"object": {"id": "in_2", "customer": "cus_1"}}}`)
	header := signPayload("whsec_test", now, body)

	for i := 0; i < 2; i++ {
		result, err := processor.Process(context.Background(), body, header)
		if err != nil {
			t.Fatalf("Process #%d: %v", i+1, err)
		}
		if !result.Received || result.Skipped {
			t.Fatalf("expected plain acknowledgement, got %+v", result)
		}
	}
	if handler.count() != 2 {
		t.Fatalf("expected both deliveries dispatched, got %d", handler.count())
	}
}

func TestProcessHandlerFailureConsumesClaim(t *testing.T) {
	handler := &recordingHandler{failWith: fmt.Errorf("store unavailable")}
	processor, now := newTestProcessor(handler)

	body := []byte(`{"id": "evt_once", "type": "customer.deleted", "data": {"object": {"id": "cus_1"}}}`)
	header := signPayload("whsec_test", now, body)

	if _, err := processor.Process(context.Background(), body, header); err == nil {
		t.Fatalf("expected handler failure to propagate")
	}

	// The id was claimed before dispatch; a redelivery is a duplicate.
	handler.failWith = nil
	result, err := processor.Process(context.Background(), body, header)
	if err != nil {
		t.Fatalf("redelivery Process: %v", err)
	}
	if !result.Skipped || result.Reason != core.ReasonAlreadyProcessed {
		t.Fatalf("expected redelivery to skip, got %+v", result)
	}
	if handler.count() != 0 {
		t.Fatalf("expected no successful dispatch, got %d", handler.count())
	}
}

func TestProcessUnrecognizedEventTypeAcknowledged(t *testing.T) {
	handler := &recordingHandler{}
	processor, now := newTestProcessor(handler)

	body := []byte(`{"id": "evt_new", "type": "price.created", "data": {"object": {"id": "price_1"}}}`)
	result, err := processor.Process(context.Background(), body, signPayload("whsec_test", now, body))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !result.Received {
		t.Fatalf("expected acknowledgement, got %+v", result)
	}
	if handler.count() != 1 {
		t.Fatalf("expected dispatch of unrecognized event, got %d", handler.count())
	}
	if handler.events[0].Raw == nil {
		t.Fatalf("expected raw payload preserved for unrecognized type")
	}
}

func TestProcessConcurrentDuplicatesDispatchOnce(t *testing.T) {
	handler := &recordingHandler{}
	processor, now := newTestProcessor(handler)

	body := []byte(`{"id": "evt_race", "type": "checkout.session.completed", "data": {"object": {"id": "cs_1", "client_reference_id": "acct_1"}}}`)
	header := signPayload("whsec_test", now, body)

	const deliveries = 16
	results := make([]core.ProcessResult, deliveries)
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = processor.Process(context.Background(), body, header)
		}(i)
	}
	wg.Wait()

	dispatched := 0
	for i := 0; i < deliveries; i++ {
		if errs[i] != nil {
			t.Fatalf("Process #%d: %v", i, errs[i])
		}
		if !results[i].Skipped {
			dispatched++
		}
	}
	if dispatched != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", dispatched)
	}
	if handler.count() != 1 {
		t.Fatalf("expected handler to run once, got %d", handler.count())
	}
}
