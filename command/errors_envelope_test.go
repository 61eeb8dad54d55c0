package command

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/protocolguide/go-billing/core"
)

func TestProcessBillingEventCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *ProcessBillingEventCommand
	err := cmd.Execute(context.Background(), ProcessBillingEventMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.BillingErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.BillingErrorInternal, rich.TextCode)
	}
	if rich.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 code, got %d", rich.Code)
	}
}

func TestCommandValidationError_Envelope(t *testing.T) {
	err := commandValidationError("account_id", "account id is required")

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.BillingErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.BillingErrorBadInput, rich.TextCode)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 code, got %d", rich.Code)
	}
}

func TestCommandInvalidInputError_Envelope(t *testing.T) {
	err := commandInvalidInputError("command: malformed event payload")

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input category, got %q", rich.Category)
	}
	if rich.TextCode != core.BillingErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.BillingErrorBadInput, rich.TextCode)
	}
}
