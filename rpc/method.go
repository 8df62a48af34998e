package rpc

import (
	"context"
	"reflect"
)

// ReturnKind describes the shape of a method's result.
type ReturnKind int

const (
	Void ReturnKind = iota
	Value
	AsyncVoid
	AsyncValue
	WrappedValue
)

func (k ReturnKind) String() string {
	switch k {
	case Void:
		return "void"
	case Value:
		return "value"
	case AsyncVoid:
		return "async-void"
	case AsyncValue:
		return "async-value"
	case WrappedValue:
		return "wrapped-value"
	}
	return "unknown"
}

// ParamSpec is the static description of one declared parameter.
type ParamSpec struct {
	Name string
	// Type is the declared Go type. It is only used to describe the method
	// (see Schema); binding goes through the decoder captured at registration.
	Type     reflect.Type
	Injected bool
	Optional bool
	Default  any

	decode func(c Codec, raw RawValue) (any, error)
}

// Param is a typed parameter declaration, used with the Func and Proc
// constructors.
type Param[T any] struct {
	spec ParamSpec
}

// Spec returns the parameter's static description.
func (p Param[T]) Spec() ParamSpec { return p.spec }

// Arg declares a required positional parameter of type T.
func Arg[T any](name string) Param[T] {
	return Param[T]{spec: ParamSpec{
		Name:   name,
		Type:   reflect.TypeFor[T](),
		decode: decodeAs[T],
	}}
}

// Optional declares a positional parameter of type T that binds to def when the
// caller omits it.
func Optional[T any](name string, def T) Param[T] {
	return Param[T]{spec: ParamSpec{
		Name:     name,
		Type:     reflect.TypeFor[T](),
		Optional: true,
		Default:  def,
		decode:   decodeAs[T],
	}}
}

// Context declares a parameter bound to the invocation context. It never
// consumes a positional argument, wherever it appears in the parameter list.
// The context carries the Call (see CallFromContext) and the host's deadline.
func Context(name string) Param[context.Context] {
	return Param[context.Context]{spec: ParamSpec{
		Name:     name,
		Type:     reflect.TypeFor[context.Context](),
		Injected: true,
	}}
}

func decodeAs[T any](c Codec, raw RawValue) (any, error) {
	var v T
	if err := c.Decode(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Method is a method descriptor: the static metadata plus a typed invocation
// closure. Build one with the Func and Proc constructors.
type Method struct {
	Name   string
	Params []ParamSpec
	Return ReturnKind
	// Result is the type clients receive: the inner type for futures and
	// wrapped results, nil when there is no value.
	Result reflect.Type

	wrapped bool
	invoke  func(args []any) (any, error)
}

// arg returns args[i] as T. Optional parameters of interface type may carry a
// nil default, which is returned as the zero T.
func arg[T any](args []any, i int) T {
	v, _ := args[i].(T)
	return v
}

func newMethod[R any](name string, params []ParamSpec, invoke func(args []any) (any, error)) Method {
	rt := reflect.TypeFor[R]()
	m := Method{Name: name, Params: params, invoke: invoke, Return: Value, Result: rt}
	var zero R
	if a, ok := any(zero).(awaitable); ok {
		m.Return = AsyncValue
		m.Result = a.valueType()
		m.wrapped = a.wrapsResult()
		if m.Result == nil {
			m.Return = AsyncVoid
		}
	} else if w, ok := any(zero).(wrapper); ok && rt.Kind() != reflect.Pointer {
		// Result[T] is only recognised by value; a *Result[T] is an ordinary value.
		m.Return = WrappedValue
		m.Result = w.dataType()
		m.wrapped = true
	}
	return m
}

func newProc(name string, params []ParamSpec, invoke func(args []any) error) Method {
	return Method{Name: name, Params: params, Return: Void, invoke: func(args []any) (any, error) {
		return nil, invoke(args)
	}}
}

func specs(params ...ParamSpec) []ParamSpec { return params }

// Func0 describes a method with no parameters returning a value.
func Func0[R any](name string, fn func() (R, error)) Method {
	return newMethod[R](name, nil, func(args []any) (any, error) {
		r, err := fn()
		return r, err
	})
}

// Func1 describes a one-parameter method returning a value.
func Func1[A, R any](name string, a Param[A], fn func(A) (R, error)) Method {
	return newMethod[R](name, specs(a.spec), func(args []any) (any, error) {
		r, err := fn(arg[A](args, 0))
		return r, err
	})
}

// Func2 describes a two-parameter method returning a value.
func Func2[A, B, R any](name string, a Param[A], b Param[B], fn func(A, B) (R, error)) Method {
	return newMethod[R](name, specs(a.spec, b.spec), func(args []any) (any, error) {
		r, err := fn(arg[A](args, 0), arg[B](args, 1))
		return r, err
	})
}

// Func3 describes a three-parameter method returning a value.
func Func3[A, B, C, R any](name string, a Param[A], b Param[B], c Param[C], fn func(A, B, C) (R, error)) Method {
	return newMethod[R](name, specs(a.spec, b.spec, c.spec), func(args []any) (any, error) {
		r, err := fn(arg[A](args, 0), arg[B](args, 1), arg[C](args, 2))
		return r, err
	})
}

// Func4 describes a four-parameter method returning a value.
func Func4[A, B, C, D, R any](name string, a Param[A], b Param[B], c Param[C], d Param[D], fn func(A, B, C, D) (R, error)) Method {
	return newMethod[R](name, specs(a.spec, b.spec, c.spec, d.spec), func(args []any) (any, error) {
		r, err := fn(arg[A](args, 0), arg[B](args, 1), arg[C](args, 2), arg[D](args, 3))
		return r, err
	})
}

// Proc0 describes a method with no parameters and no result.
func Proc0(name string, fn func() error) Method {
	return newProc(name, nil, func(args []any) error {
		return fn()
	})
}

// Proc1 describes a one-parameter method with no result.
func Proc1[A any](name string, a Param[A], fn func(A) error) Method {
	return newProc(name, specs(a.spec), func(args []any) error {
		return fn(arg[A](args, 0))
	})
}

// Proc2 describes a two-parameter method with no result.
func Proc2[A, B any](name string, a Param[A], b Param[B], fn func(A, B) error) Method {
	return newProc(name, specs(a.spec, b.spec), func(args []any) error {
		return fn(arg[A](args, 0), arg[B](args, 1))
	})
}

// Proc3 describes a three-parameter method with no result.
func Proc3[A, B, C any](name string, a Param[A], b Param[B], c Param[C], fn func(A, B, C) error) Method {
	return newProc(name, specs(a.spec, b.spec, c.spec), func(args []any) error {
		return fn(arg[A](args, 0), arg[B](args, 1), arg[C](args, 2))
	})
}

// Proc4 describes a four-parameter method with no result.
func Proc4[A, B, C, D any](name string, a Param[A], b Param[B], c Param[C], d Param[D], fn func(A, B, C, D) error) Method {
	return newProc(name, specs(a.spec, b.spec, c.spec, d.spec), func(args []any) error {
		return fn(arg[A](args, 0), arg[B](args, 1), arg[C](args, 2), arg[D](args, 3))
	})
}
