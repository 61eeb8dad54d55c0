package core

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrAccountNotFound = errors.New("core: billing account not found")
	ErrEventNotFound   = errors.New("core: processed event not found")
)

// Tier is the feature-access level derived from subscription status.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// SubscriptionStatus mirrors the billing provider's subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionStatusNone              SubscriptionStatus = "none"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
)

// TierForStatus maps a provider subscription status to a tier. Only active
// and trialing grant pro; every other status, known or not, resolves free.
func TierForStatus(status SubscriptionStatus) Tier {
	switch status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing:
		return TierPro
	default:
		return TierFree
	}
}

// BillingAccount is the stored subscription/tier record for one owning
// account. It is created implicitly at account creation (tier free, status
// none) and mutated only by the billing event synchronizer.
type BillingAccount struct {
	ID                    string
	AccountID             string
	BillingCustomerID     string
	BillingSubscriptionID string
	Status                SubscriptionStatus
	Tier                  Tier
	CurrentPeriodEnd      *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// BillingAccountUpdate is a partial, last-write-wins mutation. Nil pointers
// leave fields untouched; Clear flags null them out.
type BillingAccountUpdate struct {
	BillingCustomerID     *string
	BillingSubscriptionID *string
	Status                *SubscriptionStatus
	Tier                  *Tier
	CurrentPeriodEnd      *time.Time
	ClearBillingCustomer  bool
	ClearSubscription     bool
	ClearCurrentPeriodEnd bool
}

// ProcessedEvent records that one provider-assigned event id reached business
// logic. Rows are append-only: never updated, never deleted.
type ProcessedEvent struct {
	ID          string
	EventID     string
	EventType   string
	ProcessedAt time.Time
}

// ProcessResult is the acknowledgement returned to the billing provider's
// delivery system.
type ProcessResult struct {
	Received bool   `json:"received"`
	Skipped  bool   `json:"skipped,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

const ReasonAlreadyProcessed = "Already processed"

// EventType tags an inbound billing event.
type EventType string

const (
	EventCheckoutCompleted       EventType = "checkout.session.completed"
	EventSubscriptionCreated     EventType = "customer.subscription.created"
	EventSubscriptionUpdated     EventType = "customer.subscription.updated"
	EventSubscriptionDeleted     EventType = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded EventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    EventType = "invoice.payment_failed"
	EventDisputeCreated          EventType = "charge.dispute.created"
	EventDisputeClosed           EventType = "charge.dispute.closed"
	EventCustomerDeleted         EventType = "customer.deleted"
)

func (t EventType) Recognized() bool {
	switch t {
	case EventCheckoutCompleted,
		EventSubscriptionCreated,
		EventSubscriptionUpdated,
		EventSubscriptionDeleted,
		EventInvoicePaymentSucceeded,
		EventInvoicePaymentFailed,
		EventDisputeCreated,
		EventDisputeClosed,
		EventCustomerDeleted:
		return true
	}
	return false
}

// BillingEvent is a verified inbound event decoded into a closed tagged
// union. Exactly one variant pointer is set for recognized types; unknown
// types keep only the envelope fields plus Raw.
type BillingEvent struct {
	ID        string
	Type      EventType
	CreatedAt time.Time

	Checkout     *CheckoutSessionData
	Subscription *SubscriptionData
	Invoice      *InvoiceData
	Dispute      *DisputeData
	Customer     *CustomerData

	Raw map[string]any
}

func (e BillingEvent) Recognized() bool {
	return e.Type.Recognized()
}

// CheckoutSessionData carries the fields the synchronizer reads from a
// completed checkout. All fields are optional on the wire; missing values
// decode to their zero value, never an error.
type CheckoutSessionData struct {
	SessionID         string
	CustomerID        string
	SubscriptionID    string
	ClientReferenceID string
	Metadata          map[string]string
}

// AccountReference resolves the owning account: the client-supplied
// reference wins, then checkout metadata.
func (d CheckoutSessionData) AccountReference() string {
	if ref := strings.TrimSpace(d.ClientReferenceID); ref != "" {
		return ref
	}
	for _, key := range []string{"account_id", "user_id"} {
		if ref := strings.TrimSpace(d.Metadata[key]); ref != "" {
			return ref
		}
	}
	return ""
}

type SubscriptionData struct {
	SubscriptionID    string
	CustomerID        string
	Status            SubscriptionStatus
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
}

type InvoiceData struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	AmountPaid     int64
	AmountDue      int64
	AttemptCount   int
}

type DisputeData struct {
	DisputeID string
	ChargeID  string
	Reason    string
	Status    string
}

type CustomerData struct {
	CustomerID string
}
