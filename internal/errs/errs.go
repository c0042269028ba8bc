// Package errs defines the domain error taxonomy. Validation, state
// conflict and not-found errors describe caller mistakes and must never be
// retried; anything else that escapes a service call is an infrastructure
// failure whose retry policy belongs to the invoker.
package errs

import "errors"

// ValidationError signals malformed input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// StateConflictError signals an operation attempted against the wrong
// campaign status, a held send lock, or a duplicate draft.
type StateConflictError struct {
	Reason string
}

func (e *StateConflictError) Error() string { return e.Reason }

// NotFoundError signals a missing campaign, draft, contact or template.
type NotFoundError struct {
	Reason string
}

func (e *NotFoundError) Error() string { return e.Reason }

func Validation(reason string) error    { return &ValidationError{Reason: reason} }
func StateConflict(reason string) error { return &StateConflictError{Reason: reason} }
func NotFound(reason string) error      { return &NotFoundError{Reason: reason} }

// IsDomain reports whether err belongs to the taxonomy of caller-level
// errors. Domain errors are absorbed into responses; everything else is
// surfaced as a retryable failure.
func IsDomain(err error) bool {
	return IsValidation(err) || IsStateConflict(err) || IsNotFound(err)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsStateConflict(err error) bool {
	var c *StateConflictError
	return errors.As(err, &c)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}
