package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// ErrInsufficientData marks a sample too small or empty for the requested
	// statistic. Engines recover it locally into an undefined result.
	ErrInsufficientData = errors.New("insufficient data for analysis")

	// ErrConfiguration marks an invalid parameter supplied by the caller
	// (fold count above sample size, confidence level outside (0,1), ...).
	ErrConfiguration = errors.New("invalid configuration")

	// ErrNumericDegenerate marks zero-variance input to an effect-size or
	// ranking computation.
	ErrNumericDegenerate = errors.New("numerically degenerate input")

	ErrNotFound    = errors.New("resource not found")
	ErrRunNotFound = fmt.Errorf("%w: run", ErrNotFound)
)

// Error constructors with context
func NewConfigurationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrConfiguration, field, reason)
}

func NewInsufficientDataError(what string, have, need int) error {
	return fmt.Errorf("%w: %s has %d valid observations, need at least %d", ErrInsufficientData, what, have, need)
}

func NewDegenerateError(what string) error {
	return fmt.Errorf("%w: %s has zero variance", ErrNumericDegenerate, what)
}

func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// Error checking helpers
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsInsufficientData(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

func IsDegenerate(err error) bool {
	return errors.Is(err, ErrNumericDegenerate)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
