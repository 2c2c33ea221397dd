package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across services. Callers classify with errors.Is
// and wrap with fmt.Errorf("...: %w", err) to add context.
var (
	// ErrValidation marks bad input the caller can correct.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing referenced entity.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a duplicate active subscription.
	ErrConflict = errors.New("conflict")

	// ErrInsufficientBalance marks a charge the user cannot afford.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrProbeTimeout marks a stock check that timed out against the
	// target site.
	ErrProbeTimeout = errors.New("probe timeout")

	// ErrProbe marks an HTTP error status from the target site.
	ErrProbe = errors.New("probe failed")

	// ErrParse marks product page markup the probe could not understand.
	ErrParse = errors.New("parse failed")

	// ErrPersistence marks an unavailable store. Fatal to the current
	// operation; retried by the caller, never internally.
	ErrPersistence = errors.New("persistence failed")
)

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}
