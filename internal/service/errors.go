package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stickerboard/internal/store"
	"stickerboard/internal/validation"
)

var (
	// ErrValidation matches every validation.ValidationError.
	ErrValidation = validation.ErrInvalid

	ErrRange               = errors.New("count out of range")
	ErrPrecondition        = errors.New("precondition failed")
	ErrConflict            = errors.New("email already bound to another account")
	ErrWeakCredential      = errors.New("password does not meet the minimum strength policy")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrTooManyAttempts     = errors.New("too many attempts")
	ErrVerificationPending = errors.New("verification already in progress")
	ErrUnauthenticated     = errors.New("not signed in")
	ErrInvalidCredentials  = errors.New("invalid email or password")
)

// RangeError reports an adjustment that would leave [0, TotalSlots]. No
// write was issued.
type RangeError struct {
	Count      int
	Delta      int
	TotalSlots int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("count %d%+d outside [0, %d]", e.Count, e.Delta, e.TotalSlots)
}

func (e *RangeError) Is(target error) bool {
	return target == ErrRange
}

func precondition(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// storeError maps a store failure onto the service taxonomy. Anything the
// store does not classify is reported as unavailable.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case errors.Is(err, validation.ErrInvalid):
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// withTimeout bounds a store call. A non-positive d leaves ctx unchanged.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
