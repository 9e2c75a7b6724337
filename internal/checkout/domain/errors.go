package domain

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/campaignbridge/pkg/money"
)

var (
	ErrInvalidOrder             = errors.New("invalid_order")
	ErrAmountMismatch           = errors.New("amount_mismatch")
	ErrIntentNotFound           = errors.New("payment_intent_not_found")
	ErrIntentNotUpdatable       = errors.New("payment_intent_not_updatable")
	ErrPaymentNotSucceeded      = errors.New("payment_not_succeeded")
	ErrOrderInProgress          = errors.New("order_in_progress")
	ErrRequiresManualProcessing = errors.New("requires_manual_processing")
	ErrIncompleteMetadata       = errors.New("incomplete_metadata")
	ErrInvalidSignature         = errors.New("invalid_signature")
	ErrNotConfigured            = errors.New("payments_not_configured")
)

// ValidationError carries a user-safe message for a rejected order.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrInvalidOrder }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

type AmountMismatchError struct {
	Declared int64
	Computed int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("order total %s does not match expected %s",
		money.FormatCents(e.Declared), money.FormatCents(e.Computed))
}

func (e *AmountMismatchError) Unwrap() error { return ErrAmountMismatch }
