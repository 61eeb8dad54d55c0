package billing

import (
	"fmt"

	billingcommand "github.com/protocolguide/go-billing/command"
	"github.com/protocolguide/go-billing/core"
	"github.com/protocolguide/go-billing/inbound"
	billingquery "github.com/protocolguide/go-billing/query"
	"github.com/protocolguide/go-billing/webhooks"
)

type CommandQueryService interface {
	billingcommand.MutatingService
	billingquery.SubscriptionReader
	billingquery.BreakerStatsReader
}

type Commands struct {
	ProcessEvent          *billingcommand.ProcessBillingEventCommand
	CreateCheckoutSession *billingcommand.CreateCheckoutSessionCommand
	CreatePortalSession   *billingcommand.CreatePortalSessionCommand
	ReconcileSubscription *billingcommand.ReconcileSubscriptionCommand
	ResetBreaker          *billingcommand.ResetBreakerCommand
}

type Queries struct {
	GetSubscription   *billingquery.GetSubscriptionQuery
	GetProcessedEvent *billingquery.GetProcessedEventQuery
	BreakerStats      *billingquery.BreakerStatsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	eventReader billingquery.ProcessedEventReader
}

func WithProcessedEventReader(reader billingquery.ProcessedEventReader) FacadeOption {
	return func(options *facadeOptions) {
		options.eventReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("billing: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.eventReader
	if reader == nil {
		reader = resolveProcessedEventReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		ProcessEvent:          billingcommand.NewProcessBillingEventCommand(service),
		CreateCheckoutSession: billingcommand.NewCreateCheckoutSessionCommand(service),
		CreatePortalSession:   billingcommand.NewCreatePortalSessionCommand(service),
		ReconcileSubscription: billingcommand.NewReconcileSubscriptionCommand(service),
		ResetBreaker:          billingcommand.NewResetBreakerCommand(service),
	}
	facade.queries = Queries{
		GetSubscription:   billingquery.NewGetSubscriptionQuery(service),
		GetProcessedEvent: billingquery.NewGetProcessedEventQuery(reader),
		BreakerStats:      billingquery.NewBreakerStatsQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func resolveProcessedEventReader(service CommandQueryService) billingquery.ProcessedEventReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(billingquery.ProcessedEventReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		ProcessedEventStore() core.ProcessedEventStore
	})
	if !ok {
		return nil
	}
	store := provider.ProcessedEventStore()
	if store == nil {
		return nil
	}
	return store
}

// Runtime bundles the wired billing pipeline: the service, the webhook
// processor in front of it, and the HTTP handler in front of that.
type Runtime struct {
	Service   *core.Service
	Processor *webhooks.Processor
	Webhook   *inbound.WebhookHandler
	Facade    *Facade
}

// New builds the full pipeline from a single config. The signature verifier
// comes from cfg.Webhook; the idempotency ledger is the configured processed
// event store, falling back to the in-memory ledger for hosts without
// persistence.
func New(cfg core.Config, opts ...core.Option) (*Runtime, error) {
	svc, err := core.NewService(cfg, opts...)
	if err != nil {
		return nil, err
	}

	var ledger webhooks.EventLedger
	if store := svc.ProcessedEventStore(); store != nil {
		ledger = store
	} else {
		ledger = webhooks.NewMemoryLedger()
	}

	verifier := webhooks.NewSignatureVerifier(svc.Config().Webhook)
	processor := webhooks.NewProcessor(verifier, ledger, svc)
	processor.Logger = svc.Logger()

	handler := inbound.NewWebhookHandler(processor)
	handler.Logger = svc.Logger()

	facade, err := NewFacade(svc)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Service:   svc,
		Processor: processor,
		Webhook:   handler,
		Facade:    facade,
	}, nil
}
