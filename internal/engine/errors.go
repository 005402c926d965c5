package engine

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a Session after Close.
var ErrClosed = errors.New("session closed")

// ErrAdminRejected is returned by Join when the store does not accept the
// supplied admin token.
var ErrAdminRejected = errors.New("admin token rejected")

// ValidationError reports input rejected before any network call.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func invalid(op, format string, args ...any) error {
	return &ValidationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
