package billing

import "github.com/protocolguide/go-billing/core"

type Config = core.Config

type WebhookConfig = core.WebhookConfig

type BreakersConfig = core.BreakersConfig

type Option = core.Option

type Service = core.Service

type BillingAccount = core.BillingAccount
type BillingAccountUpdate = core.BillingAccountUpdate
type BillingEvent = core.BillingEvent
type EventType = core.EventType
type ProcessedEvent = core.ProcessedEvent
type ProcessResult = core.ProcessResult
type SubscriptionStatus = core.SubscriptionStatus
type Tier = core.Tier

type ProcessedEventStore = core.ProcessedEventStore
type BillingAccountStore = core.BillingAccountStore
type BillingGateway = core.BillingGateway
type LLMClient = core.LLMClient
type MetricsRecorder = core.MetricsRecorder

type CheckoutSessionInput = core.CheckoutSessionInput
type SessionLink = core.SessionLink
type CompletionInput = core.CompletionInput
type CompletionResult = core.CompletionResult

var (
	WithLogger              = core.WithLogger
	WithLoggerProvider      = core.WithLoggerProvider
	WithMetricsRecorder     = core.WithMetricsRecorder
	WithErrorFactory        = core.WithErrorFactory
	WithErrorMapper         = core.WithErrorMapper
	WithPersistenceClient   = core.WithPersistenceClient
	WithRepositoryFactory   = core.WithRepositoryFactory
	WithConfigProvider      = core.WithConfigProvider
	WithOptionsResolver     = core.WithOptionsResolver
	WithProcessedEventStore = core.WithProcessedEventStore
	WithBillingAccountStore = core.WithBillingAccountStore
	WithBillingGateway      = core.WithBillingGateway
	WithLLMClient           = core.WithLLMClient
	WithBreakerRegistry     = core.WithBreakerRegistry
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
