package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

type testMath struct{}

func (m *testMath) Methods() []Method {
	return []Method{
		Func2("Add", Arg[float64]("a"), Arg[float64]("b"), func(a, b float64) (float64, error) {
			return a + b, nil
		}),
		Func1("Neg", Arg[int]("n"), func(n int) (int, error) { return -n, nil }),
	}
}

type testUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type testUsers struct {
	mu    sync.Mutex
	users map[string]testUser
}

func (u *testUsers) Init() error {
	u.users = map[string]testUser{"abc": {ID: "abc", Name: "Ada"}}
	return nil
}

func (u *testUsers) Methods() []Method {
	return []Method{
		Func2("Get", Context("ctx"), Arg[string]("id"), u.Get),
		// The context sits between the two positional parameters.
		Func3("Rename", Arg[string]("id"), Context("ctx"), Arg[string]("name"), u.Rename),
	}
}

func (u *testUsers) Get(ctx context.Context, id string) (Result[testUser], error) {
	if ctx == nil {
		return Result[testUser]{}, errors.New("no context")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	usr, ok := u.users[id]
	if !ok {
		return Fail[testUser](NewError(404, "not found")), nil
	}
	return Ok(usr), nil
}

func (u *testUsers) Rename(id string, ctx context.Context, name string) (string, error) {
	if _, ok := CallFromContext(ctx); !ok {
		return "", errors.New("no call in context")
	}
	return id + ":" + name, nil
}

type testAsync struct {
	mu   sync.Mutex
	runs int
}

func (a *testAsync) Methods() []Method {
	return []Method{
		Func1("Double", Arg[int]("n"), func(n int) (*Future[int], error) {
			return Go(func() (int, error) { return n * 2, nil }), nil
		}),
		Func0("Touch", func() (*Task, error) {
			return Async(func() error {
				a.mu.Lock()
				a.runs++
				a.mu.Unlock()
				return nil
			}), nil
		}),
		Func1("Lookup", Arg[string]("key"), func(key string) (*Future[Result[string]], error) {
			return Go(func() (Result[string], error) {
				if key == "" {
					return Fail[string](NewError(404, "not found")), nil
				}
				return Ok(strings.ToUpper(key)), nil
			}), nil
		}),
		Func0("Nil", func() (*Future[int], error) { return nil, nil }),
		Func0("Explode", func() (*Future[int], error) {
			return Go(func() (int, error) { panic("boom") }), nil
		}),
		Func0("Reject", func() (*Future[int], error) {
			return Rejected[int](NewError(409, "conflict")), nil
		}),
	}
}

type domainErr struct{ id string }

func (e domainErr) Error() string { return "domain: " + e.id }
func (e domainErr) RPCError() *Error {
	return NewError(1001, "domain failure").WithData(map[string]string{"id": e.id})
}

type testFaults struct{}

func (testFaults) Methods() []Method {
	return []Method{
		Proc0("Panic", func() error { panic("secret detail") }),
		Proc0("Fail", func() error { return errors.New("secret detail") }),
		Proc0("Typed", func() error { return fmt.Errorf("wrapped: %w", NewError(1000, "typed")) }),
		Proc0("Domain", func() error { return fmt.Errorf("wrapped: %w", domainErr{id: "x"}) }),
		Proc0("PanicTyped", func() error { panic(NewError(1002, "panicked typed")) }),
		Func0("Chan", func() (chan int, error) { return make(chan int), nil }),
		Proc0("Nothing", func() error { return nil }),
	}
}

type testGreeter struct{}

func (testGreeter) Methods() []Method {
	return []Method{
		Func2("Greet", Arg[string]("name"), Optional("greeting", "Hello"), func(name, greeting string) (string, error) {
			return greeting + ", " + name, nil
		}),
	}
}

func factory(name string, h Handler) Factory {
	return Factory{Name: name, New: func() (Handler, error) { return h, nil }}
}

func testRegistry() *Registry {
	return MustNewRegistry(
		factory("Math", &testMath{}),
		Zero[testUsers]("Users"),
		factory("Async", &testAsync{}),
		factory("Faults", testFaults{}),
		factory("Greeter", testGreeter{}),
	)
}
