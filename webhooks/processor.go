package webhooks

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/protocolguide/go-billing/core"
)

// EventLedger claims provider event ids exactly once. core.ProcessedEventStore
// satisfies it directly.
type EventLedger interface {
	Claim(ctx context.Context, eventID string, eventType string) (bool, error)
}

// Handler consumes one first-seen, decoded event.
type Handler interface {
	ApplyBillingEvent(ctx context.Context, event core.BillingEvent) error
}

// HandlerFunc adapts a bare function to Handler.
type HandlerFunc func(ctx context.Context, event core.BillingEvent) error

func (f HandlerFunc) ApplyBillingEvent(ctx context.Context, event core.BillingEvent) error {
	return f(ctx, event)
}

// Processor is the delivery pipeline: verify, decode, claim, dispatch. The
// ledger claim lands before the handler runs, so a handler crash consumes
// the event id (at-most-once dispatch); the provider's next redelivery
// answers "already processed" rather than re-running side effects.
type Processor struct {
	Verifier Verifier
	Ledger   EventLedger
	Handler  Handler
	Logger   glog.Logger
	Now      func() time.Time
}

func NewProcessor(verifier Verifier, ledger EventLedger, handler Handler) *Processor {
	return &Processor{
		Verifier: verifier,
		Ledger:   ledger,
		Handler:  handler,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Process runs one raw delivery end to end and returns the acknowledgement
// body for the provider. A non-nil error means the delivery must NOT be
// acknowledged; the caller's status code decides whether the provider
// retries.
func (p *Processor) Process(ctx context.Context, body []byte, signatureHeader string) (core.ProcessResult, error) {
	if p == nil || p.Handler == nil || p.Ledger == nil {
		return core.ProcessResult{}, fmt.Errorf("webhooks: processor requires handler and ledger")
	}
	if p.Verifier == nil {
		return core.ProcessResult{}, SignatureError{Reason: "verifier is not configured"}
	}

	if err := p.Verifier.Verify(body, signatureHeader); err != nil {
		p.logInfo(ctx, "rejected unauthenticated delivery", map[string]any{
			"body_bytes": len(body),
			"error":      err.Error(),
		})
		return core.ProcessResult{}, err
	}

	event, err := DecodeEvent(body)
	if err != nil {
		return core.ProcessResult{}, err
	}

	if event.ID == "" {
		// Nothing to dedupe on; dispatch and let the handler's own
		// idempotent writes absorb a redelivery.
		p.logInfo(ctx, "delivery carried no event id", map[string]any{
			"billing_event_type": string(event.Type),
		})
		if err := p.Handler.ApplyBillingEvent(ctx, event); err != nil {
			return core.ProcessResult{}, err
		}
		return core.ProcessResult{Received: true}, nil
	}

	claimed, err := p.Ledger.Claim(ctx, event.ID, string(event.Type))
	if err != nil {
		return core.ProcessResult{}, fmt.Errorf("webhooks: claim event %s: %w", event.ID, err)
	}
	if !claimed {
		p.logInfo(ctx, "duplicate delivery skipped", map[string]any{
			"event_id":           event.ID,
			"billing_event_type": string(event.Type),
		})
		return core.ProcessResult{
			Received: true,
			Skipped:  true,
			Reason:   core.ReasonAlreadyProcessed,
		}, nil
	}

	if err := p.Handler.ApplyBillingEvent(ctx, event); err != nil {
		return core.ProcessResult{}, err
	}
	return core.ProcessResult{Received: true}, nil
}

func (p *Processor) logInfo(ctx context.Context, message string, fields map[string]any) {
	if p == nil || p.Logger == nil {
		return
	}
	logger := p.Logger
	if fieldsLogger, ok := logger.(glog.FieldsLogger); ok && len(fields) > 0 {
		logger = fieldsLogger.WithFields(fields)
	}
	if contextual, ok := logger.(interface{ WithContext(context.Context) glog.Logger }); ok && ctx != nil {
		logger = contextual.WithContext(ctx)
	}
	logger.Info(message)
}
