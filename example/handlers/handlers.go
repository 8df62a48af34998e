// Package handlers contains the demo handlers served by cmd/typedrpc.
//
// Each handler is a singleton shared by every concurrent call, so handlers
// with state guard it themselves: Users with a mutex, Counter with atomics.
package handlers

import (
	"context"

	"github.com/mnehpets/typedrpc/rpc"
)

// Domain error codes.
const (
	CodeNotFound     = 404
	CodeConflict     = 409
	CodeInvalidInput = 422
)

// Factories returns the demo handler list in schema order.
func Factories() []rpc.Factory {
	return []rpc.Factory{
		rpc.Zero[Math](""),
		rpc.Zero[Users](""),
		rpc.Zero[Jobs](""),
		rpc.Zero[Counter](""),
		rpc.Zero[Greeter](""),
	}
}

// Math is stateless arithmetic.
type Math struct{}

func (m *Math) Methods() []rpc.Method {
	return []rpc.Method{
		rpc.Func2("Add", rpc.Arg[float64]("a"), rpc.Arg[float64]("b"), m.Add),
		rpc.Func2("Sub", rpc.Arg[float64]("a"), rpc.Arg[float64]("b"), m.Sub),
		rpc.Func2("Div", rpc.Arg[float64]("a"), rpc.Arg[float64]("b"), m.Div),
		rpc.Func1("Sum", rpc.Arg[[]float64]("values"), m.Sum),
	}
}

func (m *Math) Add(a, b float64) (float64, error) { return a + b, nil }

func (m *Math) Sub(a, b float64) (float64, error) { return a - b, nil }

// Div reports division by zero as a domain error.
func (m *Math) Div(a, b float64) (rpc.Result[float64], error) {
	if b == 0 {
		return rpc.Fail[float64](rpc.NewError(CodeInvalidInput, "division by zero")), nil
	}
	return rpc.Ok(a / b), nil
}

func (m *Math) Sum(values []float64) (float64, error) {
	var total float64
	for _, v := range values {
		total += v
	}
	return total, nil
}

// Greeter demonstrates optional parameters and call metadata.
type Greeter struct{}

// Identity describes the caller of Whoami.
type Identity struct {
	CallID     string `json:"callId"`
	Method     string `json:"method"`
	Transport  string `json:"transport"`
	RemoteAddr string `json:"remoteAddr,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
}

func (g *Greeter) Methods() []rpc.Method {
	return []rpc.Method{
		rpc.Func2("Greet", rpc.Arg[string]("name"), rpc.Optional("greeting", "Hello"), g.Greet),
		rpc.Func1("Whoami", rpc.Context("ctx"), g.Whoami),
	}
}

func (g *Greeter) Greet(name, greeting string) (string, error) {
	return greeting + ", " + name + "!", nil
}

func (g *Greeter) Whoami(ctx context.Context) (Identity, error) {
	var id Identity
	if c, ok := rpc.CallFromContext(ctx); ok {
		id.CallID = c.ID
		id.Method = c.Method
	}
	if p, ok := rpc.PeerFromContext(ctx); ok {
		id.Transport = p.Transport
		id.RemoteAddr = p.RemoteAddr
		if p.Header != nil {
			id.UserAgent = p.Header.Get("User-Agent")
		}
	}
	return id, nil
}
