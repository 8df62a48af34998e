package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DiagnosticHook is called when a call fails with an error that is not typed,
// before the caller gets a generic internal error. req is nil when the payload
// never decoded. The hook must not block; a panic in it is logged and dropped.
type DiagnosticHook func(ctx context.Context, payload []byte, req *Request, err error)

// Observer receives one event per dispatched payload. code is 0 on success and
// the response error code otherwise. method is empty when the payload did not
// name one.
type Observer interface {
	ObserveCall(method string, code int, elapsed time.Duration)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDiagnosticHook installs a hook for internal failures.
func WithDiagnosticHook(h DiagnosticHook) Option {
	return func(d *Dispatcher) { d.hook = h }
}

// WithObserver installs an observer, e.g. a metrics collector.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithCodec sets the codec used by Handle and Serve. The default is JSON.
func WithCodec(c Codec) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.codec = c
		}
	}
}

// WithInvokeInterceptor wraps every method invocation. Interceptors run in the
// order given, the first being outermost. Errors and panics raised by an
// interceptor are classified like method errors.
func WithInvokeInterceptor(i ...Interceptor) Option {
	return func(d *Dispatcher) { d.interceptors = append(d.interceptors, i...) }
}

// Dispatcher decodes requests, invokes the resolved method and encodes the
// response. It is safe for concurrent use.
type Dispatcher struct {
	registry     *Registry
	codec        Codec
	logger       *slog.Logger
	hook         DiagnosticHook
	observer     Observer
	interceptors []Interceptor
}

// NewDispatcher creates a dispatcher over r.
func NewDispatcher(r *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: r,
		codec:    JSON,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher serves.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Codec returns the default codec.
func (d *Dispatcher) Codec() Codec { return d.codec }

// Handle dispatches one payload encoded with the default codec.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) *Response {
	return d.HandleCodec(ctx, d.codec, payload)
}

// HandleCodec dispatches one payload encoded with c. It always returns a
// response; only its ID may be nil.
func (d *Dispatcher) HandleCodec(ctx context.Context, c Codec, payload []byte) *Response {
	start := time.Now()
	resp, req := d.handle(ctx, c, payload)
	d.observe(req, resp, start)
	return resp
}

// Serve dispatches one payload with the default codec and returns the encoded
// response.
func (d *Dispatcher) Serve(ctx context.Context, payload []byte) []byte {
	return d.ServeCodec(ctx, d.codec, payload)
}

// ServeCodec dispatches one payload encoded with c and returns the response
// encoded with c. A result that cannot be encoded is replaced by an internal
// error carrying the same ID, and the observer sees that error.
func (d *Dispatcher) ServeCodec(ctx context.Context, c Codec, payload []byte) []byte {
	start := time.Now()
	resp, req := d.handle(ctx, c, payload)
	out, err := c.EncodeResponse(resp)
	if err != nil {
		d.logger.WarnContext(ctx, "rpc: encode response", "codec", c.Name(), "error", err)
		d.report(ctx, payload, req, err)
		resp = errorResponse(resp.ID, internalError())
		if out, err = c.EncodeResponse(resp); err != nil {
			// The ID came from this codec, so this only fails on a broken codec.
			resp = errorResponse(nil, internalError())
			out, _ = c.EncodeResponse(resp)
		}
	}
	d.observe(req, resp, start)
	return out
}

// handle decodes and dispatches payload. The request is nil when the payload
// did not decode.
func (d *Dispatcher) handle(ctx context.Context, c Codec, payload []byte) (*Response, *Request) {
	req, rerr := c.DecodeRequest(payload)
	if rerr != nil {
		return errorResponse(requestID(req), rerr), req
	}
	return d.dispatch(ctx, c, payload, req), req
}

func (d *Dispatcher) dispatch(ctx context.Context, c Codec, payload []byte, req *Request) *Response {
	h, m, ok := d.registry.Resolve(req.Method)
	if !ok {
		return errorResponse(req.ID, NewError(CodeMethodNotFound, "method not found"))
	}
	if req.paramsMalformed {
		return errorResponse(req.ID, NewError(CodeInvalidParams, "params must be an array"))
	}

	call := newCall(ctx, h.Name, m.Name)
	ctx = withCall(ctx, call)

	args, berr := bindParams(ctx, c, m.Params, req.Params)
	if berr != nil {
		return errorResponse(req.ID, berr)
	}

	result, domain, err := invoke(m, call, args, d.invoker(m))
	switch {
	case err != nil:
		return errorResponse(req.ID, d.failure(ctx, payload, req, call, err))
	case domain != nil:
		return errorResponse(req.ID, domain)
	}
	return resultResponse(req.ID, result)
}

func (d *Dispatcher) invoker(m *Method) Invoker {
	next := methodInvoker(m)
	for i := len(d.interceptors) - 1; i >= 0; i-- {
		ic, inner := d.interceptors[i], next
		next = func(call *Call, args []any) (any, error) {
			return ic(call, args, inner)
		}
	}
	return next
}

// failure converts a method error into the response error. Typed errors are
// surfaced as they are; anything else is logged, reported and hidden behind a
// generic internal error.
func (d *Dispatcher) failure(ctx context.Context, payload []byte, req *Request, call *Call, err error) *Error {
	if e, ok := classify(err); ok {
		return e
	}
	attrs := []any{"method", call.Method, "call_id", call.ID, "error", err}
	var p *panicError
	if errors.As(err, &p) {
		attrs = append(attrs, "panic", true)
	}
	d.logger.ErrorContext(ctx, "rpc: internal error", attrs...)
	d.report(ctx, payload, req, err)
	return internalError()
}

func (d *Dispatcher) report(ctx context.Context, payload []byte, req *Request, err error) {
	if d.hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.WarnContext(ctx, "rpc: diagnostic hook panic", "panic", r)
		}
	}()
	d.hook(ctx, payload, req, err)
}

func (d *Dispatcher) observe(req *Request, resp *Response, start time.Time) {
	if d.observer == nil {
		return
	}
	method, code := "", 0
	if req != nil {
		method = req.Method
	}
	if resp.Error != nil {
		code = resp.Error.Code
	}
	d.observer.ObserveCall(method, code, time.Since(start))
}
