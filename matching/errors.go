package matching

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrDuplicateMatch is returned by MatchStore.InsertMatch when the pair
	// already has a match. The engine absorbs it.
	ErrDuplicateMatch = errors.New("match already exists for pair")

	// ErrStoreUnavailable marks transient storage failures the caller may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type QuotaExceededError struct {
	Action ActionKind
	Limit  int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily %s limit of %d reached", e.Action, e.Limit)
}

func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}
