package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/protocolguide/go-billing/core"
)

const (
	defaultLLMBaseURL = "https://api.openai.com/v1"
	defaultLLMModel   = "gpt-4o-mini"
	defaultLLMTimeout = 30 * time.Second
)

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// LLMClient speaks the OpenAI-compatible chat-completions protocol. It is a
// plain transport: retries, fallbacks, and failure accounting belong to the
// breaker wrapping it.
type LLMClient struct {
	config     LLMConfig
	httpClient *http.Client
}

func NewLLMClient(cfg LLMConfig, httpClient *http.Client) (*LLMClient, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway: llm api key is required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultLLMBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultLLMModel
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultLLMTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &LLMClient{config: cfg, httpClient: httpClient}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *LLMClient) Complete(ctx context.Context, in core.CompletionInput) (core.CompletionResult, error) {
	if c == nil || c.httpClient == nil {
		return core.CompletionResult{}, fmt.Errorf("gateway: llm client is not configured")
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return core.CompletionResult{}, fmt.Errorf("gateway: completion prompt is required")
	}

	messages := []chatMessage{}
	if system := strings.TrimSpace(in.System); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: in.Prompt})

	payload, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
	})
	if err != nil {
		return core.CompletionResult{}, fmt.Errorf("gateway: encode completion request: %w", err)
	}

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.config.BaseURL+"/chat/completions",
		bytes.NewReader(payload),
	)
	if err != nil {
		return core.CompletionResult{}, fmt.Errorf("gateway: build completion request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return core.CompletionResult{}, fmt.Errorf("gateway: completion request failed: %w", err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return core.CompletionResult{}, fmt.Errorf("gateway: read completion response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return core.CompletionResult{}, fmt.Errorf(
			"gateway: llm responded %d: %s",
			response.StatusCode,
			strings.TrimSpace(string(body)),
		)
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return core.CompletionResult{}, fmt.Errorf("gateway: decode completion response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return core.CompletionResult{}, fmt.Errorf("gateway: llm returned no choices")
	}
	return core.CompletionResult{Content: decoded.Choices[0].Message.Content}, nil
}

var _ core.LLMClient = (*LLMClient)(nil)
