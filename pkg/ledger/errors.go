package ledger

import (
	"errors"
	"fmt"
)

// Error classes callers branch on.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrAuthorization       = errors.New("not authorized")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrStockDepleted       = errors.New("stock depleted")
	ErrAlreadySubscribed   = errors.New("already subscribed")
	ErrAlreadyProcessed    = errors.New("already processed")
	ErrConcurrencyExceeded = errors.New("concurrency retries exhausted")
	ErrCompensationFailed  = errors.New("compensation failed")
)

// Store-level error values.
var (
	ErrBalanceConflict      = errors.New("balance conflict")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// Value-object error values; each is classified as ErrValidation.
var (
	ErrInvalidUserID            error = &classifiedError{class: ErrValidation, message: "invalid user id"}
	ErrInvalidWalletID          error = &classifiedError{class: ErrValidation, message: "invalid wallet id"}
	ErrInvalidTransactionID     error = &classifiedError{class: ErrValidation, message: "invalid transaction id"}
	ErrInvalidEventID           error = &classifiedError{class: ErrValidation, message: "invalid event id"}
	ErrInvalidCategoryID        error = &classifiedError{class: ErrValidation, message: "invalid category id"}
	ErrInvalidAmount            error = &classifiedError{class: ErrValidation, message: "invalid amount"}
	ErrInvalidPercent           error = &classifiedError{class: ErrValidation, message: "invalid percent"}
	ErrInvalidQuantity          error = &classifiedError{class: ErrValidation, message: "invalid quantity"}
	ErrInvalidWalletKind        error = &classifiedError{class: ErrValidation, message: "invalid wallet kind"}
	ErrInvalidTransactionType   error = &classifiedError{class: ErrValidation, message: "invalid transaction type"}
	ErrInvalidTransactionStatus error = &classifiedError{class: ErrValidation, message: "invalid transaction status"}
	ErrInvalidTransactionKind   error = &classifiedError{class: ErrValidation, message: "invalid transaction kind"}
	ErrInvalidBoostType         error = &classifiedError{class: ErrValidation, message: "invalid boost type"}
	ErrInvalidPaymentMethod     error = &classifiedError{class: ErrValidation, message: "invalid payment method"}
	ErrInvalidDepositSource     error = &classifiedError{class: ErrValidation, message: "invalid deposit source"}
	ErrInvalidMetadataJSON      error = &classifiedError{class: ErrValidation, message: "invalid metadata json"}
	ErrPaymentNotConfirmed      error = &classifiedError{class: ErrValidation, message: "payment not confirmed"}
	ErrEventNotPurchasable      error = &classifiedError{class: ErrValidation, message: "event not purchasable"}
	ErrPriceMismatch            error = &classifiedError{class: ErrValidation, message: "price mismatch"}
)

// classifiedError is a distinct error value that also matches its class sentinel.
type classifiedError struct {
	class   error
	message string
}

func (classified *classifiedError) Error() string {
	return classified.message
}

func (classified *classifiedError) Is(target error) bool {
	return target == classified.class
}

// InsufficientBalanceError reports the balance shortfall of a debit.
type InsufficientBalanceError struct {
	CurrentCents  AmountCents
	RequiredCents AmountCents
}

func (insufficient *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%v: current %s, required %s", ErrInsufficientBalance, insufficient.CurrentCents, insufficient.RequiredCents)
}

func (insufficient *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// MissingCents returns how much the wallet is short.
func (insufficient *InsufficientBalanceError) MissingCents() AmountCents {
	if insufficient.RequiredCents <= insufficient.CurrentCents {
		return 0
	}
	return insufficient.RequiredCents - insufficient.CurrentCents
}

// CompensationFailedError reports that a flow failed and at least one compensation could not be applied.
type CompensationFailedError struct {
	Flow     string
	Cause    error
	Failures []error
}

func (compensation *CompensationFailedError) Error() string {
	return fmt.Sprintf("%v: %s: %d compensation(s) failed after: %v", ErrCompensationFailed, compensation.Flow, len(compensation.Failures), compensation.Cause)
}

func (compensation *CompensationFailedError) Unwrap() []error {
	unwrapped := make([]error, 0, len(compensation.Failures)+2)
	unwrapped = append(unwrapped, ErrCompensationFailed, compensation.Cause)
	unwrapped = append(unwrapped, compensation.Failures...)
	return unwrapped
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundError(subject string, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, subject, id)
}
