package recurrence

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation reports missing or malformed input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound reports that an event, series or occurrence does not exist for the owner.
	ErrNotFound = errors.New("event not found")
	// ErrPersistence wraps failures of the record store.
	ErrPersistence = errors.New("persistence failure")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// persistenceError wraps a store failure unless it already carries one of the
// engine's sentinel errors.
func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
