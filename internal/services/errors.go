package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"quota-platform/internal/db"
)

// Sentinel errors. Every error returned by the ledger services wraps exactly
// one of these; callers branch with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrConcurrencyConflict = errors.New("concurrent modification detected")
	ErrForbidden           = errors.New("forbidden")
)

// InsufficientBalanceError describes which balance could not cover a debit.
type InsufficientBalanceError struct {
	Holder    string
	HolderID  int64
	Resource  string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	if e.Holder == "pool" {
		return fmt.Sprintf("insufficient pool quota: available %s, requested %s", e.Available, e.Requested)
	}
	return fmt.Sprintf("insufficient %s: %s %d has %s, requested %s", e.Resource, e.Holder, e.HolderID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

func insufficientQuota(userID, available, requested int64) error {
	return &InsufficientBalanceError{
		Holder:    "user",
		HolderID:  userID,
		Resource:  "quota",
		Available: decimal.NewFromInt(available),
		Requested: decimal.NewFromInt(requested),
	}
}

func insufficientCredit(userID int64, available, requested decimal.Decimal) error {
	return &InsufficientBalanceError{
		Holder:    "user",
		HolderID:  userID,
		Resource:  "credit",
		Available: available,
		Requested: requested,
	}
}

func insufficientPool(available, requested int64) error {
	return &InsufficientBalanceError{
		Holder:    "pool",
		Resource:  "quota",
		Available: decimal.NewFromInt(available),
		Requested: decimal.NewFromInt(requested),
	}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// validateAmount accepts positive amounts with at most two decimal places,
// the precision balances are stored with.
func validateAmount(name string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return validationError("%s must be greater than zero", name)
	}
	if !db.ExactCents(d) {
		return validationError("%s cannot have more than two decimal places", name)
	}
	return nil
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConcurrencyConflict, fmt.Sprintf(format, args...))
}

func notFound(entity string, id int64) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, entity, id)
}

// lookupError turns a missing row into ErrNotFound and wraps anything else.
func lookupError(err error, entity string, id int64) error {
	if errors.Is(err, db.ErrNotFound) {
		return notFound(entity, id)
	}
	return fmt.Errorf("failed to load %s %d: %w", entity, id, err)
}

// ErrorKind maps an error to a stable code.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	}
	return "internal_error"
}
