// Package apperr defines the error kinds shared across minto packages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind sentinels. Match with errors.Is against any *Error.
var (
	ErrNotFound              = errors.New("not found")
	ErrValidation            = errors.New("validation error")
	ErrReferentialIntegrity  = errors.New("referential integrity error")
	ErrDuplicateID           = errors.New("duplicate id")
	ErrCyclicGraph           = errors.New("cyclic graph")
	ErrUnknownAnchor         = errors.New("unknown anchor")
	ErrMissingInput          = errors.New("missing input")
	ErrGeneration            = errors.New("generation failure")
	ErrGenerationTimeout     = errors.New("generation timeout")
	ErrGenerationUnavailable = errors.New("generation unavailable")
	ErrExpansionInProgress   = errors.New("expansion in progress")
)

// Error is a domain error carrying a machine-checkable kind, a message,
// and the offending id or field when there is one.
type Error struct {
	Kind    error
	Message string
	ID      string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the error kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an *Error of the given kind.
func New(kind error, id, format string, args ...any) *Error {
	return &Error{Kind: kind, ID: id, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind wrapping err.
func Wrap(kind error, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: err, Message: fmt.Sprintf(format, args...)}
}

// Validation reports a malformed payload field.
func Validation(id, format string, args ...any) *Error {
	return New(ErrValidation, id, format, args...)
}

// DuplicateID reports an id collision.
func DuplicateID(id, format string, args ...any) *Error {
	return New(ErrDuplicateID, id, format, args...)
}

// OffendingID returns the id carried by err, if any.
func OffendingID(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.ID
	}
	return ""
}
