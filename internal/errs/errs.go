// Package errs defines the error taxonomy shared by the parsing kernel.
//
// Size and security errors are fatal: they abort the call that produced
// them. Everything else is reported as a structured field on the result.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrSizeExceeded      = errors.New("size limit exceeded")
	ErrMaliciousContent  = errors.New("malicious content detected")
	ErrUnknownProfile    = errors.New("unknown security profile")
	ErrValidatorInternal = errors.New("validator internal error")
)

// SizeError reports a budget or ceiling overflow.
type SizeError struct {
	Dimension string // bytes, lines, nodes, table_cells, data_uri_bytes, ...
	Limit     int
	Actual    int
	Profile   string
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s: %s %d exceeds limit %d (profile %s)",
		ErrSizeExceeded, e.Dimension, e.Actual, e.Limit, e.Profile)
}

func (e *SizeError) Unwrap() error { return ErrSizeExceeded }

// SecurityError is raised when strict processing refuses a document.
type SecurityError struct {
	Pattern string
	Profile string
	Detail  string
}

func (e *SecurityError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s (profile %s)", ErrMaliciousContent, e.Pattern, e.Profile)
	}
	return fmt.Sprintf("%s: %s (profile %s): %s", ErrMaliciousContent, e.Pattern, e.Profile, e.Detail)
}

func (e *SecurityError) Unwrap() error { return ErrMaliciousContent }

// ValidationError reports bad caller input such as an unknown profile name.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UnknownProfile builds the ValidationError returned for unrecognized profile names.
func UnknownProfile(name string) *ValidationError {
	return &ValidationError{Field: "profile", Value: name, Err: ErrUnknownProfile}
}

// ValidatorError wraps a failure inside a security validator. It is never
// returned to callers as a hard error; validators fold it into a
// fail-closed verdict.
type ValidatorError struct {
	Validator string
	Err       error
}

func (e *ValidatorError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrValidatorInternal, e.Validator, e.Err)
}

func (e *ValidatorError) Unwrap() []error { return []error{ErrValidatorInternal, e.Err} }

// IsFatal reports whether err must abort processing of the document.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSizeExceeded) || errors.Is(err, ErrMaliciousContent)
}
