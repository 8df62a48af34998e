package rpc

import "reflect"

// wrapper is implemented by Result.
type wrapper interface {
	unwrap() (any, *Error)
	dataType() reflect.Type
}

// Result lets a method report a domain error as data instead of returning an
// error. When Error is set the response carries only that error; otherwise
// Data becomes the result. Return it by value, directly or from a Future.
type Result[T any] struct {
	Data  T
	Error *Error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Data: v}
}

// Fail wraps a domain error.
func Fail[T any](err *Error) Result[T] {
	return Result[T]{Error: err}
}

func (r Result[T]) unwrap() (any, *Error) {
	if r.Error != nil {
		return nil, r.Error
	}
	return r.Data, nil
}

func (Result[T]) dataType() reflect.Type {
	return reflect.TypeFor[T]()
}
