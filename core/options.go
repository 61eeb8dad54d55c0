package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"github.com/joho/godotenv"

	"github.com/protocolguide/go-billing/breaker"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type serviceBuilder struct {
	runtimeConfig     Config
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
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithProcessedEventStore(store ProcessedEventStore) Option {
	return func(b *serviceBuilder) {
		b.eventStore = store
	}
}

func WithBillingAccountStore(store BillingAccountStore) Option {
	return func(b *serviceBuilder) {
		b.accountStore = store
	}
}

func WithBillingGateway(gateway BillingGateway) Option {
	return func(b *serviceBuilder) {
		b.billingGateway = gateway
	}
}

func WithLLMClient(client LLMClient) Option {
	return func(b *serviceBuilder) {
		b.llmClient = client
	}
}

func WithBreakerRegistry(registry *breaker.Registry) Option {
	return func(b *serviceBuilder) {
		b.breakers = registry
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("billing", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return billingErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// EnvRawConfigLoader sources configuration from the process environment,
// optionally bootstrapped from .env files. The host app loads its env the
// same way (dotenv then os environment).
type EnvRawConfigLoader struct {
	DotenvPaths []string
	Lookup      func(key string) (string, bool)
}

func (l EnvRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	for _, path := range l.DotenvPaths {
		// Missing .env files are fine; the environment may be pre-populated.
		_ = godotenv.Load(strings.TrimSpace(path))
	}
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	raw := map[string]any{}
	if value, ok := lookup("BILLING_SERVICE_NAME"); ok && strings.TrimSpace(value) != "" {
		raw["service_name"] = strings.TrimSpace(value)
	}

	webhook := map[string]any{}
	if value, ok := lookup("BILLING_WEBHOOK_SECRET"); ok && strings.TrimSpace(value) != "" {
		webhook["secret"] = strings.TrimSpace(value)
	}
	if value, ok := lookup("BILLING_WEBHOOK_SIGNATURE_TOLERANCE"); ok && strings.TrimSpace(value) != "" {
		tolerance, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("core: parse BILLING_WEBHOOK_SIGNATURE_TOLERANCE: %w", err)
		}
		webhook["signature_tolerance"] = tolerance
	}
	if len(webhook) > 0 {
		raw["webhook"] = webhook
	}
	return raw, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	webhook := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Webhook.Secret) != "" {
		webhook["secret"] = cfg.Webhook.Secret
	}
	if includeZero || cfg.Webhook.SignatureTolerance > 0 {
		webhook["signature_tolerance"] = cfg.Webhook.SignatureTolerance
	}
	if len(webhook) > 0 {
		layer["webhook"] = webhook
	}

	breakers := map[string]any{}
	for key, value := range map[string]breaker.Config{
		"database": cfg.Breakers.Database,
		"llm":      cfg.Breakers.LLM,
		"billing":  cfg.Breakers.Billing,
	} {
		if !includeZero && value == (breaker.Config{}) {
			continue
		}
		breakers[key] = breakerToLayerMap(value)
	}
	if len(breakers) > 0 {
		layer["breakers"] = breakers
	}
	return layer
}

func breakerToLayerMap(cfg breaker.Config) map[string]any {
	return map[string]any{
		"name":              cfg.Name,
		"failure_threshold": cfg.FailureThreshold,
		"success_threshold": cfg.SuccessThreshold,
		"reset_timeout":     cfg.ResetTimeout,
		"failure_window":    cfg.FailureWindow,
	}
}
