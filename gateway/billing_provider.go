package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/protocolguide/go-billing/core"
)

const defaultBillingTimeout = 15 * time.Second

type BillingConfig struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

// BillingProviderClient mints hosted checkout and customer-portal sessions
// against the billing provider's form-encoded API. Session URLs are opaque;
// nothing here inspects or stores them.
type BillingProviderClient struct {
	config     BillingConfig
	httpClient *http.Client
}

func NewBillingProviderClient(cfg BillingConfig, httpClient *http.Client) (*BillingProviderClient, error) {
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("gateway: billing secret key is required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.stripe.com/v1"
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultBillingTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &BillingProviderClient{config: cfg, httpClient: httpClient}, nil
}

func (c *BillingProviderClient) CreateCheckoutSession(
	ctx context.Context,
	in core.CheckoutSessionInput,
) (core.SessionLink, error) {
	if strings.TrimSpace(in.AccountID) == "" {
		return core.SessionLink{}, fmt.Errorf("gateway: checkout session requires an account id")
	}
	if strings.TrimSpace(in.PriceID) == "" {
		return core.SessionLink{}, fmt.Errorf("gateway: checkout session requires a price id")
	}

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("client_reference_id", strings.TrimSpace(in.AccountID))
	form.Set("line_items[0][price]", strings.TrimSpace(in.PriceID))
	form.Set("line_items[0][quantity]", "1")
	form.Set("metadata[account_id]", strings.TrimSpace(in.AccountID))
	if successURL := strings.TrimSpace(in.SuccessURL); successURL != "" {
		form.Set("success_url", successURL)
	}
	if cancelURL := strings.TrimSpace(in.CancelURL); cancelURL != "" {
		form.Set("cancel_url", cancelURL)
	}
	return c.createSession(ctx, "/checkout/sessions", form)
}

func (c *BillingProviderClient) CreatePortalSession(
	ctx context.Context,
	customerID string,
	returnURL string,
) (core.SessionLink, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return core.SessionLink{}, fmt.Errorf("gateway: portal session requires a billing customer id")
	}

	form := url.Values{}
	form.Set("customer", customerID)
	if returnURL = strings.TrimSpace(returnURL); returnURL != "" {
		form.Set("return_url", returnURL)
	}
	return c.createSession(ctx, "/billing_portal/sessions", form)
}

func (c *BillingProviderClient) createSession(
	ctx context.Context,
	path string,
	form url.Values,
) (core.SessionLink, error) {
	if c == nil || c.httpClient == nil {
		return core.SessionLink{}, fmt.Errorf("gateway: billing provider client is not configured")
	}

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.config.BaseURL+path,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return core.SessionLink{}, fmt.Errorf("gateway: build session request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.config.SecretKey)
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return core.SessionLink{}, fmt.Errorf("gateway: session request failed: %w", err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return core.SessionLink{}, fmt.Errorf("gateway: read session response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return core.SessionLink{}, fmt.Errorf(
			"gateway: billing provider responded %d: %s",
			response.StatusCode,
			strings.TrimSpace(string(body)),
		)
	}

	var decoded struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return core.SessionLink{}, fmt.Errorf("gateway: decode session response: %w", err)
	}
	if strings.TrimSpace(decoded.URL) == "" {
		return core.SessionLink{}, fmt.Errorf("gateway: billing provider returned no session url")
	}
	return core.SessionLink{URL: decoded.URL}, nil
}

var _ core.BillingGateway = (*BillingProviderClient)(nil)
