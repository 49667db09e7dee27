// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-ipc.
// Every failure returned by the library carries a ResultCode so callers can
// branch on the kind of failure with errors.Is against the sentinels below.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library. Matching is by code, so an error
// built with NewError(ResultNotFound, "...") satisfies errors.Is(err, ErrNotFound).
var (
	ErrCancelled          = NewError(ResultCancelled, "cancelled")
	ErrUnknown            = NewError(ResultUnknown, "unknown error")
	ErrInvalidArgument    = NewError(ResultInvalidArgument, "invalid argument")
	ErrDeadlineExceeded   = NewError(ResultDeadlineExceeded, "deadline exceeded")
	ErrNotFound           = NewError(ResultNotFound, "not found")
	ErrAlreadyExists      = NewError(ResultAlreadyExists, "already exists")
	ErrPermissionDenied   = NewError(ResultPermissionDenied, "permission denied")
	ErrResourceExhausted  = NewError(ResultResourceExhausted, "resource exhausted")
	ErrFailedPrecondition = NewError(ResultFailedPrecondition, "failed precondition")
	ErrAborted            = NewError(ResultAborted, "aborted")
	ErrOutOfRange         = NewError(ResultOutOfRange, "out of range")
	ErrUnimplemented      = NewError(ResultUnimplemented, "unimplemented")
	ErrInternal           = NewError(ResultInternal, "internal error")
	ErrUnavailable        = NewError(ResultUnavailable, "unavailable")
	ErrDataLoss           = NewError(ResultDataLoss, "data loss")
	ErrBusy               = NewError(ResultBusy, "busy")
	ErrShouldWait         = NewError(ResultShouldWait, "should wait")
)

// ResultCode represents specific result conditions. Values follow the Mojo
// MojoResult numbering so codes can cross an ABI boundary unchanged.
type ResultCode uint32

const (
	ResultOK                 ResultCode = 0x00
	ResultCancelled          ResultCode = 0x01
	ResultUnknown            ResultCode = 0x02
	ResultInvalidArgument    ResultCode = 0x03
	ResultDeadlineExceeded   ResultCode = 0x04
	ResultNotFound           ResultCode = 0x05
	ResultAlreadyExists      ResultCode = 0x06
	ResultPermissionDenied   ResultCode = 0x07
	ResultResourceExhausted  ResultCode = 0x08
	ResultFailedPrecondition ResultCode = 0x09
	ResultAborted            ResultCode = 0x0a
	ResultOutOfRange         ResultCode = 0x0b
	ResultUnimplemented      ResultCode = 0x0c
	ResultInternal           ResultCode = 0x0d
	ResultUnavailable        ResultCode = 0x0e
	ResultDataLoss           ResultCode = 0x0f
	ResultBusy               ResultCode = 0x10
	ResultShouldWait         ResultCode = 0x11
)

var resultNames = map[ResultCode]string{
	ResultOK:                 "ok",
	ResultCancelled:          "cancelled",
	ResultUnknown:            "unknown",
	ResultInvalidArgument:    "invalid_argument",
	ResultDeadlineExceeded:   "deadline_exceeded",
	ResultNotFound:           "not_found",
	ResultAlreadyExists:      "already_exists",
	ResultPermissionDenied:   "permission_denied",
	ResultResourceExhausted:  "resource_exhausted",
	ResultFailedPrecondition: "failed_precondition",
	ResultAborted:            "aborted",
	ResultOutOfRange:         "out_of_range",
	ResultUnimplemented:      "unimplemented",
	ResultInternal:           "internal",
	ResultUnavailable:        "unavailable",
	ResultDataLoss:           "data_loss",
	ResultBusy:               "busy",
	ResultShouldWait:         "should_wait",
}

// String returns the snake_case name of the code, used as a metrics label.
func (c ResultCode) String() string {
	if name, ok := resultNames[c]; ok {
		return name
	}
	return fmt.Sprintf("result(%d)", uint32(c))
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ResultCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ResultCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithContext returns a copy of the error with an extra context entry.
// The receiver is left untouched so sentinels can be decorated safely.
func (e *Error) WithContext(key string, value any) *Error {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	return &Error{Code: e.Code, Message: e.Message, Context: ctx}
}

// CodeOf maps any error to a ResultCode. nil is ResultOK and errors that do
// not wrap an *Error are ResultUnknown.
func CodeOf(err error) ResultCode {
	if err == nil {
		return ResultOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ResultUnknown
}

// ErrorFor returns the sentinel for a code, or nil for ResultOK.
func ErrorFor(code ResultCode) error {
	if code == ResultOK {
		return nil
	}
	for _, sentinel := range []*Error{
		ErrCancelled, ErrUnknown, ErrInvalidArgument, ErrDeadlineExceeded,
		ErrNotFound, ErrAlreadyExists, ErrPermissionDenied, ErrResourceExhausted,
		ErrFailedPrecondition, ErrAborted, ErrOutOfRange, ErrUnimplemented,
		ErrInternal, ErrUnavailable, ErrDataLoss, ErrBusy, ErrShouldWait,
	} {
		if sentinel.Code == code {
			return sentinel
		}
	}
	return NewError(code, code.String())
}
