// Package orterr defines the error taxonomy shared by every manager in the
// runtime core. Each error carries a Code plus a cause with a stack trace
// (see github.com/pkg/errors); callers branch on the code with CodeOf.
package orterr

import (
	"github.com/pkg/errors"
)

// Code classifies a runtime error. The zero value OK is never attached to a
// non-nil error.
type Code int

//go:generate stringer -type=Code orterr.go

const (
	OK Code = iota
	InvalidArgument
	InvalidState
	OutOfCapacity
	OutOfMemory
	HandleExpired
	NotConfigured
	BackendFailure
)

// codedError couples a Code with the wrapped cause.
type codedError struct {
	code Code
	err  error
}

func (e *codedError) Error() string { return e.code.String() + ": " + e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

// New returns an error with the given code and message, annotated with a
// stack trace at the point New was called.
func New(code Code, msg string) error {
	return &codedError{code: code, err: errors.New(msg)}
}

// Errorf formats an error with the given code, annotated with a stack trace.
func Errorf(code Code, format string, args ...any) error {
	return &codedError{code: code, err: errors.Errorf(format, args...)}
}

// Wrap annotates err with a code and message. Returns nil if err is nil.
// If err already carries a code it is preserved in the chain but the
// outermost code wins for CodeOf.
func Wrap(code Code, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: errors.Wrap(err, msg)}
}

// CodeOf extracts the outermost Code attached to err. A nil error reports
// OK. Errors that never passed through this package (e.g. raw backend
// failures) report BackendFailure, since that is the only way they can
// reach a caller of the core.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	return BackendFailure
}

// IsCode reports whether the outermost code attached to err equals code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
