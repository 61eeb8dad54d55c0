package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/protocolguide/go-billing/breaker"
)

const (
	BillingErrorBadInput         = "BILLING_BAD_INPUT"
	BillingErrorSignatureInvalid = "BILLING_SIGNATURE_INVALID"
	BillingErrorNotFound         = "BILLING_NOT_FOUND"
	BillingErrorCircuitOpen      = breaker.TextCodeCircuitOpen
	BillingErrorPersistence      = "BILLING_PERSISTENCE"
	BillingErrorDependencyFailed = "BILLING_DEPENDENCY_FAILED"
	BillingErrorInternal         = "BILLING_INTERNAL_ERROR"
)

func billingErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBillingErrorEnvelope(richErr)
	}

	var openErr breaker.CircuitOpenError
	if errors.As(err, &openErr) {
		return ensureBillingErrorEnvelope(openErr.ToServiceError())
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"), strings.Contains(msg, "timestamp outside"):
		return newBillingError(err.Error(), goerrors.CategoryAuth, BillingErrorSignatureInvalid)
	case strings.Contains(msg, "not found"):
		return newBillingError(err.Error(), goerrors.CategoryNotFound, BillingErrorNotFound)
	case strings.Contains(msg, "unique constraint"), strings.Contains(msg, "duplicate key"):
		return newBillingError(err.Error(), goerrors.CategoryConflict, BillingErrorPersistence)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newBillingError(err.Error(), goerrors.CategoryBadInput, BillingErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBillingErrorEnvelope(mapped)
}

func newBillingError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBillingErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureBillingErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = billingHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBillingTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBillingTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BillingErrorBadInput
	case goerrors.CategoryNotFound:
		return BillingErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return BillingErrorSignatureInvalid
	case goerrors.CategoryConflict:
		return BillingErrorPersistence
	case goerrors.CategoryOperation:
		return BillingErrorDependencyFailed
	default:
		return BillingErrorInternal
	}
}

func billingHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
