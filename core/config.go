package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/protocolguide/go-billing/breaker"
)

const defaultSignatureTolerance = 5 * time.Minute

type WebhookConfig struct {
	// Secret is the shared signing secret for inbound billing events.
	Secret string `koanf:"secret" mapstructure:"secret"`
	// SignatureTolerance bounds the accepted skew between the signature
	// timestamp and now; zero falls back to five minutes.
	SignatureTolerance time.Duration `koanf:"signature_tolerance" mapstructure:"signature_tolerance"`
}

type BreakersConfig struct {
	Database breaker.Config `koanf:"database" mapstructure:"database"`
	LLM      breaker.Config `koanf:"llm" mapstructure:"llm"`
	Billing  breaker.Config `koanf:"billing" mapstructure:"billing"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig  `koanf:"webhook" mapstructure:"webhook"`
	Breakers    BreakersConfig `koanf:"breakers" mapstructure:"breakers"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "billing",
		Webhook: WebhookConfig{
			SignatureTolerance: defaultSignatureTolerance,
		},
		Breakers: BreakersConfig{
			Database: breaker.Config{
				Name:             "database",
				FailureThreshold: 5,
				SuccessThreshold: 2,
				ResetTimeout:     30 * time.Second,
				FailureWindow:    time.Minute,
			},
			LLM: breaker.Config{
				Name:             "llm",
				FailureThreshold: 3,
				SuccessThreshold: 2,
				ResetTimeout:     time.Minute,
				FailureWindow:    2 * time.Minute,
			},
			Billing: breaker.Config{
				Name:             "billing",
				FailureThreshold: 5,
				SuccessThreshold: 2,
				ResetTimeout:     30 * time.Second,
				FailureWindow:    time.Minute,
			},
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Webhook.SignatureTolerance < 0 {
		return fmt.Errorf("core: webhook signature_tolerance must not be negative")
	}
	for _, cfg := range []breaker.Config{c.Breakers.Database, c.Breakers.LLM, c.Breakers.Billing} {
		if cfg == (breaker.Config{}) {
			continue
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c WebhookConfig) Tolerance() time.Duration {
	if c.SignatureTolerance > 0 {
		return c.SignatureTolerance
	}
	return defaultSignatureTolerance
}
