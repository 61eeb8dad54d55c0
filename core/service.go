package core

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/protocolguide/go-billing/breaker"
)

// Service owns the subscription state machine and every guarded outbound
// surface. Each external dependency (database, llm, billing) is gated by its
// own explicitly constructed failure tracker; there is no shared breaker
// state between dependencies.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	eventStore        ProcessedEventStore
	accountStore      BillingAccountStore
	billingGateway    BillingGateway
	llmClient         LLMClient
	breakers          *breaker.Registry
	databaseBreaker   *breaker.Breaker
	llmBreaker        *breaker.Breaker
	billingBreaker    *breaker.Breaker
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("billing", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("billing"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.eventStore == nil || builder.accountStore == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				if builder.eventStore == nil {
					builder.eventStore = storeProvider.ProcessedEventStore()
				}
				if builder.accountStore == nil {
					builder.accountStore = storeProvider.BillingAccountStore()
				}
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			if builder.eventStore == nil {
				builder.eventStore = storeProvider.ProcessedEventStore()
			}
			if builder.accountStore == nil {
				builder.accountStore = storeProvider.BillingAccountStore()
			}
		}
	}

	registry := builder.breakers
	if registry == nil {
		registry = breaker.NewRegistry()
	}
	databaseBreaker, err := resolveBreaker(registry, finalConfig.Breakers.Database)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	llmBreaker, err := resolveBreaker(registry, finalConfig.Breakers.LLM)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	billingBreaker, err := resolveBreaker(registry, finalConfig.Breakers.Billing)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		eventStore:        builder.eventStore,
		accountStore:      builder.accountStore,
		billingGateway:    builder.billingGateway,
		llmClient:         builder.llmClient,
		breakers:          registry,
		databaseBreaker:   databaseBreaker,
		llmBreaker:        llmBreaker,
		billingBreaker:    billingBreaker,
	}, nil
}

// resolveBreaker reuses a pre-registered tracker so hosts can share the
// registry with their own wiring, and registers one otherwise.
func resolveBreaker(registry *breaker.Registry, cfg breaker.Config) (*breaker.Breaker, error) {
	if existing, ok := registry.Get(cfg.Name); ok {
		return existing, nil
	}
	return registry.Register(cfg)
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return nil
	}
	return s.logger
}

func (s *Service) ProcessedEventStore() ProcessedEventStore {
	if s == nil {
		return nil
	}
	return s.eventStore
}

func (s *Service) BillingAccountStore() BillingAccountStore {
	if s == nil {
		return nil
	}
	return s.accountStore
}

// BreakerStats snapshots every registered failure tracker, ordered by name.
func (s *Service) BreakerStats() []breaker.Stats {
	if s == nil {
		return nil
	}
	return s.breakers.StatsSnapshot()
}

// ResetBreaker is an administrative override; unknown names are a no-op.
func (s *Service) ResetBreaker(name string) {
	if s == nil {
		return
	}
	s.breakers.Reset(name)
}

func (s *Service) MapError(err error) *goerrors.Error {
	if s == nil || s.errorMapper == nil {
		return defaultErrorMapper(err)
	}
	return s.errorMapper(err)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (s *Service) requireAccountStore() error {
	if s == nil || s.accountStore == nil {
		return fmt.Errorf("core: billing account store is required")
	}
	return nil
}
