// Package rpc dispatches remote procedure calls to statically registered
// handlers.
//
// A request names a method as "<Handler>.<Method>" and carries positional
// params:
//
//	{"id": 1, "method": "Math.Add", "params": [2, 3]}
//
// and every request gets exactly one response:
//
//	{"id": 1, "result": 5}
//	{"id": 1, "error": {"code": -32601, "message": "method not found"}}
//
// Requests without an id still receive a response, with a null id. Batches are
// not supported.
//
// # Handlers
//
// A handler is any type whose Methods returns its method table. Methods are
// declared with the generic Func and Proc constructors, which capture a typed
// closure and a decoder for each parameter, so dispatch never goes through
// reflection:
//
//	func (m *Math) Methods() []rpc.Method {
//		return []rpc.Method{
//			rpc.Func2("Add", rpc.Arg[float64]("a"), rpc.Arg[float64]("b"), m.Add),
//			rpc.Func2("Greet", rpc.Context("ctx"), rpc.Optional("name", "world"), m.Greet),
//		}
//	}
//
// Context parameters receive the invocation context and never consume an
// argument. Optional parameters bind their default when the caller sends
// fewer arguments. Extra arguments are ignored.
//
// Handlers are registered once, through a list of factories:
//
//	reg, err := rpc.NewRegistry(rpc.Zero[Math](""), rpc.Zero[Users]("users"))
//
// # Results
//
// A method may return a plain value, nothing (Proc), a *Future for
// asynchronous work, or a Result to report a domain error as data. Futures are
// awaited before the response is written; a Task yields no result.
//
// # Errors
//
// Errors whose chain contains an *Error or a TypedError are returned to the
// caller as they are. Any other error or panic is logged, passed to the
// diagnostic hook and replaced by {"code": -32603, "message": "internal error"}.
//
// # Concurrency
//
// A Dispatcher is safe for concurrent use and runs calls in parallel. Each
// handler instance is a singleton shared by every call; the dispatcher does no
// locking, so handlers that hold mutable state must synchronise it themselves.
package rpc
