// Package status defines the error vocabulary shared by every layer of the
// metadata store. Errors carry a canonical code so the facade, the storage
// layer, and the RPC shell agree on semantics without string matching.
package status

import (
	"errors"
	"fmt"
)

// Code identifies the canonical outcome class of an operation.
// Values follow the gRPC numbering so they survive transport boundaries.
type Code int

const (
	OK                 Code = 0
	Cancelled          Code = 1
	InvalidArgument    Code = 3
	NotFound           Code = 5
	AlreadyExists      Code = 6
	FailedPrecondition Code = 9
	Aborted            Code = 10
	Unimplemented      Code = 12
	Internal           Code = 13
)

var codeNames = map[Code]string{
	OK:                 "OK",
	Cancelled:          "CANCELLED",
	InvalidArgument:    "INVALID_ARGUMENT",
	NotFound:           "NOT_FOUND",
	AlreadyExists:      "ALREADY_EXISTS",
	FailedPrecondition: "FAILED_PRECONDITION",
	Aborted:            "ABORTED",
	Unimplemented:      "UNIMPLEMENTED",
	Internal:           "INTERNAL",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// ParseCode maps a canonical code name back to its Code. Unknown names map
// to Internal so a malformed wire response never reads as success.
func ParseCode(name string) Code {
	for c, n := range codeNames {
		if n == name {
			return c
		}
	}
	return Internal
}

// Error is an error with a canonical code. The message chain behaves like a
// plain fmt.Errorf error, including %w wrapping.
type Error struct {
	code Code
	err  error
}

func (e *Error) Error() string { return e.err.Error() }

func (e *Error) Unwrap() error { return errors.Unwrap(e.err) }

// Code returns the canonical code carried by the error.
func (e *Error) Code() Code { return e.code }

// Errorf builds a coded error. The format string supports %w.
func Errorf(c Code, format string, args ...interface{}) error {
	return &Error{code: c, err: fmt.Errorf(format, args...)}
}

// Per-code constructors. These keep call sites short and grep-friendly.

func Cancelledf(format string, args ...interface{}) error {
	return Errorf(Cancelled, format, args...)
}

func InvalidArgumentf(format string, args ...interface{}) error {
	return Errorf(InvalidArgument, format, args...)
}

func NotFoundf(format string, args ...interface{}) error {
	return Errorf(NotFound, format, args...)
}

func AlreadyExistsf(format string, args ...interface{}) error {
	return Errorf(AlreadyExists, format, args...)
}

func FailedPreconditionf(format string, args ...interface{}) error {
	return Errorf(FailedPrecondition, format, args...)
}

func Abortedf(format string, args ...interface{}) error {
	return Errorf(Aborted, format, args...)
}

func Unimplementedf(format string, args ...interface{}) error {
	return Errorf(Unimplemented, format, args...)
}

func Internalf(format string, args ...interface{}) error {
	return Errorf(Internal, format, args...)
}

// CodeOf extracts the canonical code from an error chain. nil maps to OK and
// errors without a code map to Internal.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.code
	}
	return Internal
}

// Convert wraps a foreign error as Internal, preserving its chain. Coded
// errors pass through unchanged.
func Convert(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{code: Internal, err: err}
}

func isCode(err error, c Code) bool { return CodeOf(err) == c }

func IsCancelled(err error) bool          { return isCode(err, Cancelled) }
func IsInvalidArgument(err error) bool    { return isCode(err, InvalidArgument) }
func IsNotFound(err error) bool           { return isCode(err, NotFound) }
func IsAlreadyExists(err error) bool      { return isCode(err, AlreadyExists) }
func IsFailedPrecondition(err error) bool { return isCode(err, FailedPrecondition) }
func IsAborted(err error) bool            { return isCode(err, Aborted) }
func IsUnimplemented(err error) bool      { return isCode(err, Unimplemented) }
func IsInternal(err error) bool           { return isCode(err, Internal) }
