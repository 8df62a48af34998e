package rpc

import (
	"errors"
	"fmt"
)

// Dispatcher-level error codes. Domain codes produced by handlers pass through
// unchanged.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Error is the structured error carried in a response envelope.
//
// It also implements error, which makes it the typed error family: a handler that
// returns (or wraps, or panics with) an *Error has that Error surfaced to the
// caller verbatim instead of a generic internal error. Only put public-safe text
// in Message and Data.
type Error struct {
	Code    int    `json:"code" cbor:"code"`
	Message string `json:"message" cbor:"message"`
	Data    any    `json:"data,omitempty" cbor:"data,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return "rpc: error: <nil>"
	}
	return fmt.Sprintf("rpc: error %d: %s", e.Code, e.Message)
}

// NewError creates an Error with the given code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithData returns a copy of e carrying data.
func (e *Error) WithData(data any) *Error {
	c := *e
	c.Data = data
	return &c
}

// TypedError is implemented by domain error types that carry their own
// public-safe Error. It is found anywhere in an error chain.
type TypedError interface {
	error
	RPCError() *Error
}

func parseError() *Error {
	return NewError(CodeParseError, "parse error")
}

func internalError() *Error {
	return NewError(CodeInternalError, "internal error")
}

func invalidRequest(msg string) *Error {
	return NewError(CodeInvalidRequest, msg)
}

// classify returns the typed Error in err's chain, if any.
func classify(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	var te TypedError
	if errors.As(err, &te) {
		if e := te.RPCError(); e != nil {
			return e, true
		}
	}
	return nil, false
}

// panicError carries a recovered panic value through the error path.
type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("rpc: panic: %v", p.value)
}

// Unwrap exposes a panicked error value so typed errors raised via panic are
// still classified.
func (p *panicError) Unwrap() error {
	if err, ok := p.value.(error); ok {
		return err
	}
	return nil
}
