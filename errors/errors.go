// Package errors defines the error kinds returned by every other package in
// this module. It follows the same shape as a Go stdlib errno: a handful of
// named sentinel values that can be compared with errors.Is, each of which
// can be decorated with a message or a wrapped cause without losing its
// identity.
package errors

import "fmt"

// DriverError is the interface satisfied by every error this module returns.
// Unlike a plain error, it can be decorated with additional context without
// losing the ability to compare against the original sentinel via errors.Is.
type DriverError interface {
	error
	WithMessage(message string) DriverError
	WrapError(err error) DriverError
}

// -----------------------------------------------------------------------------

// customDriverError is a DriverError that remembers the sentinel it was
// derived from so that errors.Is still works after WithMessage/WrapError.
type customDriverError struct {
	message string
	cause   error
	kind    FatxError
}

func (e customDriverError) Error() string {
	return e.message
}

func (e customDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message: fmt.Sprintf("%s: %s", e.message, message),
		cause:   e,
		kind:    e.kind,
	}
}

func (e customDriverError) WrapError(err error) DriverError {
	return customDriverError{
		message: fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		cause:   err,
		kind:    e.kind,
	}
}

func (e customDriverError) Unwrap() error {
	return e.cause
}

// Is reports whether target is the same FatxError kind this error was
// derived from, so that code can do errors.Is(err, errors.ErrNotFound) no
// matter how many times WithMessage/WrapError decorated it.
func (e customDriverError) Is(target error) bool {
	kind, ok := target.(FatxError)
	return ok && kind == e.kind
}
