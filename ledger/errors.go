/*
errors.go - Centralized error types for the purchase ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Packages wrap these with context via fmt.Errorf("...: %w", err) and the
  API maps them to HTTP statuses with errors.Is.

ERROR CATEGORIES:
  1. Validation errors - detected before any state mutation
  2. Payment errors - abort before a purchase is recorded
  3. Store errors - persistence failures, some retryable

SEE ALSO:
  - purchase/service.go: Returns these from the purchase flow
  - api/handlers.go: statusFor maps them to HTTP statuses
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAuthenticationRequired is returned when no buyer identity is supplied.
	ErrAuthenticationRequired = errors.New("authentication required")

	ErrGuideNotFound    = errors.New("guide not found")
	ErrCreatorNotFound  = errors.New("creator not found")
	ErrPurchaseNotFound = errors.New("purchase not found")
	ErrPayoutNotFound   = errors.New("payout not found")

	// ErrGuideNotPublished is returned for draft or archived guides.
	ErrGuideNotPublished = errors.New("guide is not available for purchase")

	// ErrDuplicatePurchase is returned when the buyer already holds a completed
	// purchase of the guide. Raised by the guard and by the store's unique index.
	ErrDuplicatePurchase = errors.New("guide already purchased")

	ErrInvalidAmount         = errors.New("invalid amount")
	ErrPaymentMethodRequired = errors.New("payment method required")

	// ErrPaymentUnavailable is returned when no payment processor is configured.
	ErrPaymentUnavailable = errors.New("payment processing unavailable")

	// ErrPaymentFailed is returned when the processor declines the charge.
	ErrPaymentFailed = errors.New("payment failed")

	// ErrPaymentTimeout is returned when the processor does not answer in time.
	// A timeout is never treated as a successful charge.
	ErrPaymentTimeout = errors.New("payment processor timed out")

	ErrPurchaseNotRefundable   = errors.New("purchase cannot be refunded")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInvalidPayoutTransition = errors.New("invalid payout status transition")
	ErrInvalidPeriod           = errors.New("invalid period")
	ErrInvalidGuide            = errors.New("invalid guide")

	// ErrConcurrentModification is returned when the store is busy or a write
	// lost a race. Safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidAmountError explains why an amount was rejected.
type InvalidAmountError struct {
	Amount string
	Reason string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %s: %s", e.Amount, e.Reason)
}

func (e *InvalidAmountError) Unwrap() error {
	return ErrInvalidAmount
}

// InsufficientBalanceError provides details about a payout shortfall.
type InsufficientBalanceError struct {
	CreatorID UserID
	Available Cents
	Requested Cents
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s",
		e.Available.Dollars(), e.Requested.Dollars())
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrPaymentTimeout)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrGuideNotPublished) ||
		errors.Is(err, ErrDuplicatePurchase) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrPaymentMethodRequired) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidGuide)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGuideNotFound) ||
		errors.Is(err, ErrCreatorNotFound) ||
		errors.Is(err, ErrPurchaseNotFound) ||
		errors.Is(err, ErrPayoutNotFound)
}
