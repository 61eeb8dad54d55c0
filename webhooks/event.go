package webhooks

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/protocolguide/go-billing/core"
)

// DecodeError rejects a payload whose envelope or typed object cannot be
// parsed. Redelivering the same bytes would fail the same way, so the
// transport answers 4xx instead of asking for a retry. Every other process
// failure stays retryable.
type DecodeError struct {
	Reason string
	Err    error
}

func (e DecodeError) Error() string {
	if e.Err != nil {
		return "webhooks: " + e.Reason + ": " + e.Err.Error()
	}
	return "webhooks: " + e.Reason
}

func (e DecodeError) Unwrap() error { return e.Err }

// wireID tolerates the provider's expandable references: the same field
// arrives as either a bare id string or an expanded object carrying "id".
type wireID string

func (w *wireID) UnmarshalJSON(data []byte) error {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 || string(data) == "null" {
		*w = ""
		return nil
	}
	if data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*w = wireID(value)
		return nil
	}
	var expanded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &expanded); err != nil {
		return err
	}
	*w = wireID(expanded.ID)
	return nil
}

type wireEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type wireCheckoutSession struct {
	ID                string            `json:"id"`
	Customer          wireID            `json:"customer"`
	Subscription      wireID            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type wireSubscription struct {
	ID                string `json:"id"`
	Customer          wireID `json:"customer"`
	Status            string `json:"status"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

type wireInvoice struct {
	ID           string `json:"id"`
	Customer     wireID `json:"customer"`
	Subscription wireID `json:"subscription"`
	AmountPaid   int64  `json:"amount_paid"`
	AmountDue    int64  `json:"amount_due"`
	AttemptCount int    `json:"attempt_count"`
}

type wireDispute struct {
	ID     string `json:"id"`
	Charge wireID `json:"charge"`
	Reason string `json:"reason"`
	Status string `json:"status"`
}

type wireCustomer struct {
	ID string `json:"id"`
}

// DecodeEvent parses one verified payload into the domain event union. Only
// envelope-level corruption errors; missing object fields decode to zero
// values, and unrecognized event types keep just the envelope plus Raw so
// the processor can acknowledge them.
func DecodeEvent(body []byte) (core.BillingEvent, error) {
	var envelope wireEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return core.BillingEvent{}, DecodeError{Reason: "invalid event payload", Err: err}
	}

	event := core.BillingEvent{
		ID:   strings.TrimSpace(envelope.ID),
		Type: core.EventType(strings.TrimSpace(envelope.Type)),
	}
	if envelope.Created > 0 {
		event.CreatedAt = time.Unix(envelope.Created, 0).UTC()
	}

	object := envelope.Data.Object
	if len(object) == 0 {
		object = json.RawMessage("{}")
	}

	switch event.Type {
	case core.EventCheckoutCompleted:
		var wire wireCheckoutSession
		if err := json.Unmarshal(object, &wire); err != nil {
			return core.BillingEvent{}, DecodeError{Reason: "invalid checkout payload", Err: err}
		}
		event.Checkout = &core.CheckoutSessionData{
			SessionID:         wire.ID,
			CustomerID:        string(wire.Customer),
			SubscriptionID:    string(wire.Subscription),
			ClientReferenceID: wire.ClientReferenceID,
			Metadata:          wire.Metadata,
		}
	case core.EventSubscriptionCreated, core.EventSubscriptionUpdated, core.EventSubscriptionDeleted:
		var wire wireSubscription
		if err := json.Unmarshal(object, &wire); err != nil {
			return core.BillingEvent{}, DecodeError{Reason: "invalid subscription payload", Err: err}
		}
		data := &core.SubscriptionData{
			SubscriptionID:    wire.ID,
			CustomerID:        string(wire.Customer),
			Status:            core.SubscriptionStatus(strings.TrimSpace(wire.Status)),
			CancelAtPeriodEnd: wire.CancelAtPeriodEnd,
		}
		if wire.CurrentPeriodEnd > 0 {
			periodEnd := time.Unix(wire.CurrentPeriodEnd, 0).UTC()
			data.CurrentPeriodEnd = &periodEnd
		}
		event.Subscription = data
	case core.EventInvoicePaymentSucceeded, core.EventInvoicePaymentFailed:
		var wire wireInvoice
		if err := json.Unmarshal(object, &wire); err != nil {
			return core.BillingEvent{}, DecodeError{Reason: "invalid invoice payload", Err: err}
		}
		event.Invoice = &core.InvoiceData{
			InvoiceID:      wire.ID,
			CustomerID:     string(wire.Customer),
			SubscriptionID: string(wire.Subscription),
			AmountPaid:     wire.AmountPaid,
			AmountDue:      wire.AmountDue,
			AttemptCount:   wire.AttemptCount,
		}
	case core.EventDisputeCreated, core.EventDisputeClosed:
		var wire wireDispute
		if err := json.Unmarshal(object, &wire); err != nil {
			return core.BillingEvent{}, DecodeError{Reason: "invalid dispute payload", Err: err}
		}
		event.Dispute = &core.DisputeData{
			DisputeID: wire.ID,
			ChargeID:  string(wire.Charge),
			Reason:    wire.Reason,
			Status:    wire.Status,
		}
	case core.EventCustomerDeleted:
		var wire wireCustomer
		if err := json.Unmarshal(object, &wire); err != nil {
			return core.BillingEvent{}, DecodeError{Reason: "invalid customer payload", Err: err}
		}
		event.Customer = &core.CustomerData{CustomerID: wire.ID}
	default:
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err == nil {
			event.Raw = raw
		}
	}
	return event, nil
}
