package rpc

// Invoker runs a bound method and returns its settled value: futures have
// completed, and Result values are still wrapped. Interceptors installed with
// WithInvokeInterceptor receive the call and the next Invoker in the chain.
type Invoker func(call *Call, args []any) (any, error)

// Interceptor wraps method invocation. For asynchronous methods next returns
// once the future has completed, so an interceptor observes the whole call.
type Interceptor func(call *Call, args []any, next Invoker) (any, error)

// invoke runs next and applies the wrapped result convention. Panics are
// recovered into errors. The returned *Error is a domain error carried by a
// Result; err is any other failure, still to be classified.
func invoke(m *Method, call *Call, args []any, next Invoker) (result any, domain *Error, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, domain, err = nil, nil, &panicError{value: r}
		}
	}()

	v, err := next(call, args)
	if err != nil {
		return nil, nil, err
	}
	if m.wrapped {
		if w, ok := v.(wrapper); ok {
			data, e := w.unwrap()
			return data, e, nil
		}
	}
	return v, nil, nil
}

// methodInvoker calls m and waits for an asynchronous result. It is the
// innermost Invoker of every chain.
func methodInvoker(m *Method) Invoker {
	return func(_ *Call, args []any) (any, error) {
		v, err := m.invoke(args)
		if err != nil {
			return nil, err
		}
		switch m.Return {
		case Void:
			return nil, nil
		case AsyncVoid, AsyncValue:
			a, ok := v.(awaitable)
			if !ok {
				return nil, errNilFuture
			}
			if v, err = a.await(); err != nil {
				return nil, err
			}
			if m.Return == AsyncVoid {
				return nil, nil
			}
		}
		return v, nil
	}
}
