package inbound

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/protocolguide/go-billing/breaker"
	"github.com/protocolguide/go-billing/core"
	"github.com/protocolguide/go-billing/webhooks"
)

const (
	// WebhookPath is the delivery endpoint registered with the provider.
	WebhookPath = "/webhooks/billing"

	defaultMaxBodyBytes = 1 << 20
)

// WebhookHandler adapts the delivery pipeline to HTTP. Status codes are the
// contract with the provider: 2xx acknowledges (including duplicates), 4xx
// drops the delivery, 5xx asks for a retry.
type WebhookHandler struct {
	Processor       *webhooks.Processor
	Logger          glog.Logger
	SignatureHeader string
	MaxBodyBytes    int64
}

func NewWebhookHandler(processor *webhooks.Processor) *WebhookHandler {
	return &WebhookHandler{
		Processor:       processor,
		SignatureHeader: webhooks.DefaultSignatureHeader,
		MaxBodyBytes:    defaultMaxBodyBytes,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Processor == nil {
		writeError(w, http.StatusInternalServerError, core.BillingErrorInternal, "webhook handler is not configured")
		return
	}

	maxBytes := h.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, core.BillingErrorBadInput, "unable to read delivery body")
		return
	}

	header := h.SignatureHeader
	if strings.TrimSpace(header) == "" {
		header = webhooks.DefaultSignatureHeader
	}

	result, err := h.Processor.Process(r.Context(), body, r.Header.Get(header))
	if err != nil {
		h.writeProcessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *WebhookHandler) writeProcessError(w http.ResponseWriter, err error) {
	var sigErr webhooks.SignatureError
	if errors.As(err, &sigErr) {
		// 400 tells the provider the delivery is unprocessable; retrying a
		// forged or misconfigured signature would never succeed.
		writeError(w, http.StatusBadRequest, core.BillingErrorSignatureInvalid, sigErr.Error())
		return
	}

	var decodeErr webhooks.DecodeError
	if errors.As(err, &decodeErr) {
		// Same bytes decode the same way on every redelivery.
		writeError(w, http.StatusBadRequest, core.BillingErrorBadInput, decodeErr.Error())
		return
	}

	var openErr breaker.CircuitOpenError
	if errors.As(err, &openErr) {
		writeServiceError(w, openErr.ToServiceError())
		return
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code >= http.StatusBadRequest {
		writeServiceError(w, richErr)
		return
	}

	// Ledger or synchronizer failure: the event was not durably handled, so
	// a 5xx keeps the provider redelivering.
	h.logError(err)
	writeError(w, http.StatusInternalServerError, core.BillingErrorInternal, "delivery processing failed")
}

func (h *WebhookHandler) logError(err error) {
	if h == nil || h.Logger == nil || err == nil {
		return
	}
	logger := h.Logger
	if fieldsLogger, ok := logger.(glog.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(map[string]any{"error": err.Error()})
	}
	logger.Error("webhook delivery failed")
}

// Mount registers the delivery endpoint on an existing router.
func (h *WebhookHandler) Mount(router chi.Router) {
	router.Post(WebhookPath, h.ServeHTTP)
}

// NewRouter builds a standalone router hosting only the webhook endpoint.
func NewRouter(handler *WebhookHandler) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	handler.Mount(router)
	return router
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	TextCode string         `json:"text_code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func writeError(w http.ResponseWriter, status int, textCode string, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{TextCode: textCode, Message: message}})
}

// writeServiceError carries the envelope's metadata onto the wire, most
// importantly retry_after_ms on a 503 from an open circuit.
func writeServiceError(w http.ResponseWriter, err *goerrors.Error) {
	writeJSON(w, err.Code, errorBody{Error: errorDetail{
		TextCode: err.TextCode,
		Message:  err.Message,
		Metadata: err.Metadata,
	}})
}
