// Package errors provides the error taxonomy shared by the order book packages.
package errors

import (
	"errors"
	"fmt"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// Kind classifies an error.
type Kind string

const (
	KindInvalidArgument  Kind = "InvalidArgument"
	KindIncompatibleUnit Kind = "IncompatibleUnit"
	KindUnderflow        Kind = "Underflow"
	KindOverflow         Kind = "Overflow"
	KindDuplicateOrder   Kind = "DuplicateOrder"
	KindNotFound         Kind = "NotFound"
	KindInvalidTick      Kind = "InvalidTick"
)

// Sentinels. Compare with errors.Is; derive concrete errors with Explain.
var (
	ErrInvalidArgument  = NewWithKind(KindInvalidArgument)
	ErrIncompatibleUnit = NewWithKind(KindIncompatibleUnit)
	ErrUnderflow        = NewWithKind(KindUnderflow)
	ErrOverflow         = NewWithKind(KindOverflow)
	ErrDuplicateOrder   = NewWithKind(KindDuplicateOrder)
	ErrNotFound         = NewWithKind(KindNotFound)
	ErrInvalidTick      = NewWithKind(KindInvalidTick)
)

// Error is a custom error type for passing more information
type Error struct {
	// Kind is the returned error type
	Kind Kind `json:"kind"`
	// Message is the human readable string that indicate the error
	Message string `json:"message"`

	cause error
}

var _ error = (*Error)(nil)

func NewWithKind(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s]", e.Kind)
	if e.Message != "" {
		str += " " + e.Message
	}
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	return str
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Wrap returns a copy of the error with the given cause
func (e *Error) Wrap(cause error) *Error {
	err := *e
	err.cause = cause
	return &err
}

// Explain makes a copy of the error with given message
func (e *Error) Explain(message string, args ...any) *Error {
	err := *e
	err.Message = fmt.Sprintf(message, args...)
	return &err
}

// Is implements the needed interface for errors.Is.
// Two *Error values match when their kinds are equal.
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if other, ok := target.(*Error); ok {
		return other.Kind == e.Kind
	}
	return false
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsBenign reports whether err only says that the addressed tick or price
// was absent. Book level bulk operations proceed on such errors.
func IsBenign(err error) bool {
	return errors.Is(err, ErrNotFound)
}
