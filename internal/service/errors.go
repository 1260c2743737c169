package service

import (
	"context"
	"errors"
	"fmt"

	"tajautos/backend/internal/logger"
	"tajautos/backend/internal/store"
)

// ValidationError reports input the operation refused. Err carries the store
// sentinel behind the rejection when there is one.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StorageError wraps a persistence failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func invalidWrap(field string, reason string, err error) error {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// classify turns a repository error from a composite write into the service
// taxonomy. Sentinels that describe the request become validation errors;
// anything else is logged and wrapped as a StorageError.
func classify(ctx context.Context, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrInsufficientStock):
		return invalidWrap("items", err.Error(), store.ErrInsufficientStock)
	case errors.Is(err, store.ErrOverpayment):
		return invalidWrap("amount_cents", "payment exceeds outstanding debt", store.ErrOverpayment)
	case errors.Is(err, store.ErrDuplicateCustomer):
		return invalidWrap("customer", err.Error(), store.ErrDuplicateCustomer)
	case errors.Is(err, store.ErrNotFound):
		return invalidWrap("", err.Error(), store.ErrNotFound)
	case errors.Is(err, store.ErrInvalidTransaction):
		return invalidWrap("", err.Error(), store.ErrInvalidTransaction)
	}
	return storageFailure(ctx, op, err)
}

// lookup keeps ErrNotFound as-is for direct reads so callers can answer 404.
func lookup(ctx context.Context, op string, what string, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, store.ErrNotFound)
	}
	return storageFailure(ctx, op, err)
}

func storageFailure(ctx context.Context, op string, err error) error {
	logger.Error(ctx).Err(err).Str("op", op).Msg("storage operation failed")
	return &StorageError{Op: op, Err: err}
}
