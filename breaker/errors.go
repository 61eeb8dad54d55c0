package breaker

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const TextCodeCircuitOpen = "BILLING_CIRCUIT_OPEN"

// CircuitOpenError reports a rejected attempt against an open circuit. It is
// raised only when no fallback is supplied; in-circuit failures propagate
// unchanged.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e CircuitOpenError) Error() string {
	return fmt.Sprintf(
		"breaker: circuit %q is open, retry after %s",
		strings.TrimSpace(e.Name),
		e.RetryAfter,
	)
}

func (e CircuitOpenError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"breaker": strings.TrimSpace(e.Name),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryOperation).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(TextCodeCircuitOpen).
		WithMetadata(metadata)
}
