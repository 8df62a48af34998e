package rpc

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Handler is a handler object. Methods returns its static method table and is
// called once, when the registry is built.
type Handler interface {
	Methods() []Method
}

// Initializer is implemented by handlers that need setup after zero-value
// construction. See Zero.
type Initializer interface {
	Init() error
}

// Factory constructs the singleton instance of one handler.
type Factory struct {
	Name string
	New  func() (Handler, error)
}

// Zero returns a factory that constructs a handler from the zero value of T
// and runs its Init method when *T implements Initializer. An empty name
// registers the handler under the name of T.
func Zero[T any, PT interface {
	*T
	Handler
}](name string) Factory {
	if name == "" {
		name = reflect.TypeFor[T]().Name()
	}
	return Factory{Name: name, New: func() (Handler, error) {
		h := PT(new(T))
		if i, ok := any(h).(Initializer); ok {
			if err := i.Init(); err != nil {
				return nil, err
			}
		}
		return h, nil
	}}
}

// HandlerDescriptor is a registered handler: its singleton instance and its
// method table.
type HandlerDescriptor struct {
	Name     string
	Instance Handler

	methods map[string]*Method
	order   []string
}

// Method looks up a method by its exact name.
func (h *HandlerDescriptor) Method(name string) (*Method, bool) {
	m, ok := h.methods[name]
	return m, ok
}

// Methods returns the methods in registration order.
func (h *HandlerDescriptor) Methods() []*Method {
	out := make([]*Method, len(h.order))
	for i, name := range h.order {
		out[i] = h.methods[name]
	}
	return out
}

// Registry maps handler names to handlers. It is immutable once built and safe
// for concurrent use.
type Registry struct {
	handlers map[string]*HandlerDescriptor
	order    []*HandlerDescriptor
}

// NewRegistry constructs every handler and validates its method table. Any
// failure is returned; a registry is never built from a partial handler list.
func NewRegistry(factories ...Factory) (*Registry, error) {
	r := &Registry{handlers: make(map[string]*HandlerDescriptor, len(factories))}
	for _, f := range factories {
		h, err := newDescriptor(f)
		if err != nil {
			return nil, err
		}
		if _, dup := r.handlers[h.Name]; dup {
			return nil, fmt.Errorf("rpc: duplicate handler %q", h.Name)
		}
		r.handlers[h.Name] = h
		r.order = append(r.order, h)
	}
	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on error.
func MustNewRegistry(factories ...Factory) *Registry {
	r, err := NewRegistry(factories...)
	if err != nil {
		panic(err)
	}
	return r
}

func newDescriptor(f Factory) (*HandlerDescriptor, error) {
	switch {
	case f.Name == "":
		return nil, errors.New("rpc: handler name is empty")
	case strings.Contains(f.Name, "."):
		return nil, fmt.Errorf("rpc: handler name %q contains a dot", f.Name)
	case f.New == nil:
		return nil, fmt.Errorf("rpc: handler %q has no constructor", f.Name)
	}

	inst, err := f.New()
	if err != nil {
		return nil, fmt.Errorf("rpc: construct handler %q: %w", f.Name, err)
	}
	if inst == nil || reflect.ValueOf(inst).Kind() == reflect.Pointer && reflect.ValueOf(inst).IsNil() {
		return nil, fmt.Errorf("rpc: handler %q constructed nil", f.Name)
	}

	h := &HandlerDescriptor{Name: f.Name, Instance: inst, methods: make(map[string]*Method)}
	for _, m := range inst.Methods() {
		switch {
		case m.Name == "":
			return nil, fmt.Errorf("rpc: handler %q has a method with no name", f.Name)
		case m.invoke == nil:
			return nil, fmt.Errorf("rpc: method %s.%s has no implementation", f.Name, m.Name)
		}
		if _, dup := h.methods[m.Name]; dup {
			return nil, fmt.Errorf("rpc: duplicate method %s.%s", f.Name, m.Name)
		}
		h.methods[m.Name] = &m
		h.order = append(h.order, m.Name)
	}
	return h, nil
}

// Lookup returns the handler registered under exactly name.
func (r *Registry) Lookup(name string) (*HandlerDescriptor, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Handlers returns the handlers in registration order.
func (r *Registry) Handlers() []*HandlerDescriptor {
	return append([]*HandlerDescriptor(nil), r.order...)
}

// Resolve finds the method named by a fully qualified "Handler.Method" name.
// The name is split on the first dot and both segments must match exactly.
func (r *Registry) Resolve(fullName string) (*HandlerDescriptor, *Method, bool) {
	handler, method, ok := strings.Cut(fullName, ".")
	if !ok {
		return nil, nil, false
	}
	h, ok := r.handlers[handler]
	if !ok {
		return nil, nil, false
	}
	m, ok := h.methods[method]
	if !ok {
		return nil, nil, false
	}
	return h, m, true
}
