// Package endpoint provides the typed HTTP handler pipeline used to host the
// RPC dispatcher.
//
// A request passes through three phases:
//
//  1. Unmarshal: the handler decodes the request (body, headers, query, path)
//     into a typed params struct using struct tags.
//  2. Endpoint: the EndpointFunc receives the params and returns a Renderer.
//     It does not write to the response.
//  3. Render: the Renderer writes the status, headers and body.
//
// Processors run before the EndpointFunc and may short-circuit the request.
// Errors returned at any phase are written as plain-text HTTP errors. An
// *EndpointError selects the status and its Message becomes the body; any
// other error is a 500 whose text is not sent to the client.
package endpoint

import (
	"errors"
	"io"
	"net/http"
)

// EndpointError is an error that maps to an HTTP status code.
type EndpointError struct {
	Status int
	// Message is a short description suitable for an HTTP error body.
	Message string
	Cause   error
}

func (e *EndpointError) Error() string {
	if e == nil {
		return "endpoint: error: <nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
		if msg == "" {
			msg = "unknown error"
		}
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *EndpointError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Error creates an EndpointError. A cause that already is an EndpointError is
// returned unchanged.
func Error(status int, message string, cause error) error {
	var ee *EndpointError
	if errors.As(cause, &ee) {
		return cause
	}
	return &EndpointError{Status: status, Message: message, Cause: cause}
}

// Renderer writes a response.
//
// Renderers MUST call w.WriteHeader. They may set headers, typically
// Content-Type, before doing so. A returned error means the response could not
// be written.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// RendererFunc adapts a function to a Renderer.
type RendererFunc func(w http.ResponseWriter, r *http.Request) error

func (f RendererFunc) Render(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// Processor is middleware that runs before the endpoint.
//
// Processors MUST call next unless they short-circuit the request, and MUST
// NOT write the response status or body. A non-nil error stops the chain.
type Processor interface {
	Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error
}

// ProcessorFunc adapts a function to a Processor.
type ProcessorFunc func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error

func (f ProcessorFunc) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	return f(w, r, next)
}

// EndpointFunc handles a request with decoded params P and returns the Renderer
// for the response.
type EndpointFunc[P any] func(w http.ResponseWriter, r *http.Request, params P) (Renderer, error)

// EndpointHandler is an http.Handler running Processors and then Endpoint.
type EndpointHandler[P any] struct {
	Endpoint   EndpointFunc[P]
	Processors []Processor
}

// Handler constructs an EndpointHandler, inferring P from fn.
func Handler[P any](fn EndpointFunc[P], processors ...Processor) *EndpointHandler[P] {
	return &EndpointHandler[P]{Endpoint: fn, Processors: processors}
}

// HandleFunc adapts an EndpointFunc into an http.HandlerFunc.
func HandleFunc[P any](fn EndpointFunc[P], processors ...Processor) http.HandlerFunc {
	return Handler(fn, processors...).ServeHTTP
}

// ServeHTTP implements http.Handler.
func (h *EndpointHandler[P]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Endpoint == nil {
		http.Error(w, "endpoint: nil EndpointFunc", http.StatusInternalServerError)
		return
	}
	if err := h.run(0, w, r); err != nil {
		writeError(w, err)
	}
}

func (h *EndpointHandler[P]) run(i int, w http.ResponseWriter, r *http.Request) error {
	if i < len(h.Processors) {
		p := h.Processors[i]
		if p == nil {
			return errors.New("endpoint: nil processor")
		}
		return p.Process(w, r, func(w2 http.ResponseWriter, r2 *http.Request) error {
			return h.run(i+1, w2, r2)
		})
	}

	var params P
	if err := Unmarshal(r, &params); err != nil {
		return err
	}
	renderer, err := h.Endpoint(w, r, params)
	if err != nil {
		return err
	}
	if renderer == nil {
		return errors.New("endpoint: nil renderer")
	}
	if c, ok := renderer.(io.Closer); ok {
		defer c.Close()
	}
	return renderer.Render(w, r)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	// Only EndpointError messages are meant for clients.
	message := ""
	var ee *EndpointError
	if errors.As(err, &ee) && ee != nil {
		if ee.Status >= 100 {
			status = ee.Status
		}
		message = ee.Message
	}
	if message == "" {
		message = http.StatusText(status)
	}
	if status < 400 {
		// Short-circuit responses such as a CORS preflight carry no body.
		w.WriteHeader(status)
		return
	}
	http.Error(w, message, status)
}

// StatusOf returns the HTTP status an error maps to.
func StatusOf(err error) int {
	var ee *EndpointError
	if errors.As(err, &ee) && ee != nil && ee.Status >= 100 {
		return ee.Status
	}
	return http.StatusInternalServerError
}
