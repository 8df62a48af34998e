package rpc

import (
	"errors"
	"reflect"
)

var errNilFuture = errors.New("rpc: method returned a nil or unstarted future")

// awaitable is implemented by *Future. The dispatcher suspends on it.
type awaitable interface {
	await() (any, error)
	valueType() reflect.Type
	wrapsResult() bool
}

// Future is the result of an asynchronous method. Methods return a *Future;
// the dispatcher waits for it to complete before encoding the response.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Task is a future with no value. A completed Task yields no result.
type Task = Future[struct{}]

// Go runs fn on a new goroutine and returns its future. A panic in fn completes
// the future with an error.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = &panicError{value: r}
			}
		}()
		f.value, f.err = fn()
	}()
	return f
}

// Async runs fn on a new goroutine and returns a Task for it.
func Async(fn func() error) *Task {
	return Go(func() (struct{}, error) {
		return struct{}{}, fn()
	})
}

// Resolved returns a future already completed with v.
func Resolved[T any](v T) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), value: v}
	close(f.done)
	return f
}

// Rejected returns a future already completed with err.
func Rejected[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// Done is closed when the future completes.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the future completes.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

func (f *Future[T]) await() (any, error) {
	if f == nil || f.done == nil {
		return nil, errNilFuture
	}
	v, err := f.Wait()
	if err != nil {
		return nil, err
	}
	if f.valueType() == nil {
		return nil, nil
	}
	return v, nil
}

func (f *Future[T]) valueType() reflect.Type {
	var zero T
	if _, ok := any(zero).(struct{}); ok {
		return nil
	}
	if w, ok := any(zero).(wrapper); ok && reflect.TypeFor[T]().Kind() != reflect.Pointer {
		return w.dataType()
	}
	return reflect.TypeFor[T]()
}

func (f *Future[T]) wrapsResult() bool {
	var zero T
	_, ok := any(zero).(wrapper)
	return ok && reflect.TypeFor[T]().Kind() != reflect.Pointer
}
