package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// ProcessedEventStore is the idempotency ledger. Claim inserts an append-only
// record keyed by the provider-assigned event id, relying on a store-level
// uniqueness constraint to close the concurrent-redelivery race: exactly one
// of two racing claims for the same id reports claimed=true.
type ProcessedEventStore interface {
	Claim(ctx context.Context, eventID string, eventType string) (bool, error)
	Get(ctx context.Context, eventID string) (ProcessedEvent, error)
}

// BillingAccountStore reads and mutates the stored subscription/tier record.
// Lookups that match nothing return ErrAccountNotFound.
type BillingAccountStore interface {
	GetByAccountID(ctx context.Context, accountID string) (BillingAccount, error)
	GetByCustomerID(ctx context.Context, customerID string) (BillingAccount, error)
	Update(ctx context.Context, accountID string, update BillingAccountUpdate) (BillingAccount, error)
}

// SessionLink is an opaque redirect URL minted by the billing provider.
type SessionLink struct {
	URL string
}

type CheckoutSessionInput struct {
	AccountID  string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// BillingGateway is the outbound billing-provider API surface, consumed as
// opaque calls returning a URL or an error.
type BillingGateway interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (SessionLink, error)
	CreatePortalSession(ctx context.Context, customerID string, returnURL string) (SessionLink, error)
}

type CompletionInput struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

type CompletionResult struct {
	Content string
}

// LLMClient is the AI inference collaborator.
type LLMClient interface {
	Complete(ctx context.Context, in CompletionInput) (CompletionResult, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StoreProvider interface {
	ProcessedEventStore() ProcessedEventStore
	BillingAccountStore() BillingAccountStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// JobExecutionMessage is the queue-agnostic contract for host-scheduled
// billing jobs (webhook redelivery scans, subscription reconciles). The
// breaker layer itself never schedules anything.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
