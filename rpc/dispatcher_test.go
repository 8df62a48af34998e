package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type wireError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type wireResponse struct {
	raw    map[string]json.RawMessage
	ID     string
	Result json.RawMessage
	Error  *wireError
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(opts ...Option) *Dispatcher {
	return NewDispatcher(testRegistry(), append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func serve(t *testing.T, d *Dispatcher, payload string) wireResponse {
	t.Helper()
	out := d.Serve(context.Background(), []byte(payload))
	var resp wireResponse
	if err := json.Unmarshal(out, &resp.raw); err != nil {
		t.Fatalf("failed to parse response %q: %v", out, err)
	}
	id, ok := resp.raw["id"]
	if !ok {
		t.Fatalf("response %s has no id member", out)
	}
	resp.ID = string(id)
	resp.Result = resp.raw["result"]
	if e, ok := resp.raw["error"]; ok {
		resp.Error = &wireError{}
		if err := json.Unmarshal(e, resp.Error); err != nil {
			t.Fatalf("failed to parse error %s: %v", e, err)
		}
	}
	if resp.Result != nil && resp.Error != nil {
		t.Fatalf("response %s has both result and error", out)
	}
	return resp
}

func wantResult(t *testing.T, r wireResponse, want string) {
	t.Helper()
	if r.Error != nil {
		t.Fatalf("got error %+v, want result %s", *r.Error, want)
	}
	if string(r.Result) != want {
		t.Errorf("got result %s, want %s", r.Result, want)
	}
}

func wantCode(t *testing.T, r wireResponse, code int) {
	t.Helper()
	if r.Error == nil {
		t.Fatalf("got result %s, want error %d", r.Result, code)
	}
	if r.Error.Code != code {
		t.Errorf("got code %d, want %d (%s)", r.Error.Code, code, r.Error.Message)
	}
}

func TestScenarios(t *testing.T) {
	d := newTestDispatcher()

	t.Run("add", func(t *testing.T) {
		r := serve(t, d, `{"id":1,"method":"Math.Add","params":[2,3]}`)
		if r.ID != "1" {
			t.Errorf("got id %s, want 1", r.ID)
		}
		wantResult(t, r, "5")
	})

	t.Run("unknown handler", func(t *testing.T) {
		r := serve(t, d, `{"id":2,"method":"Unknown.Foo","params":[]}`)
		if r.ID != "2" {
			t.Errorf("got id %s, want 2", r.ID)
		}
		wantCode(t, r, CodeMethodNotFound)
	})

	t.Run("context injection", func(t *testing.T) {
		r := serve(t, d, `{"id":3,"method":"Users.Get","params":["abc"]}`)
		wantResult(t, r, `{"id":"abc","name":"Ada"}`)
	})

	t.Run("wrapped error", func(t *testing.T) {
		r := serve(t, d, `{"id":4,"method":"Users.Get","params":["nobody"]}`)
		if r.ID != "4" {
			t.Errorf("got id %s, want 4", r.ID)
		}
		wantCode(t, r, 404)
		if r.Error.Message != "not found" {
			t.Errorf("got message %q, want %q", r.Error.Message, "not found")
		}
		if _, ok := r.raw["result"]; ok {
			t.Error("wrapped error response has a result member")
		}
	})

	t.Run("parse error", func(t *testing.T) {
		r := serve(t, d, `{not json`)
		if r.ID != "null" {
			t.Errorf("got id %s, want null", r.ID)
		}
		wantCode(t, r, CodeParseError)
	})
}

func TestIDEcho(t *testing.T) {
	d := newTestDispatcher()
	ids := []string{`1`, `"abc"`, `-7`, `1e400`, `123456789012345678901234567890`, `"ünïcødé"`, `0.5`}
	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			r := serve(t, d, `{"id":`+id+`,"method":"Math.Add","params":[1,1]}`)
			if r.ID != id {
				t.Errorf("got id %s, want %s", r.ID, id)
			}
		})
	}

	t.Run("absent", func(t *testing.T) {
		r := serve(t, d, `{"method":"Math.Add","params":[1,1]}`)
		if r.ID != "null" {
			t.Errorf("got id %s, want null", r.ID)
		}
		wantResult(t, r, "2")
	})
}

func TestDecodeErrors(t *testing.T) {
	d := newTestDispatcher()
	tests := []struct {
		name    string
		payload string
		code    int
		id      string
	}{
		{"empty", ``, CodeParseError, "null"},
		{"whitespace", "  \n", CodeParseError, "null"},
		{"truncated", `{"id":1,"method":"Math.Add"`, CodeParseError, "null"},
		{"null", `null`, CodeParseError, "null"},
		{"array", `[{"id":1,"method":"Math.Add"}]`, CodeInvalidRequest, "null"},
		{"number", `42`, CodeInvalidRequest, "null"},
		{"missing method", `{"id":7,"params":[]}`, CodeInvalidRequest, "7"},
		{"null method", `{"id":"x","method":null}`, CodeInvalidRequest, `"x"`},
		{"numeric method", `{"id":8,"method":5}`, CodeInvalidRequest, "8"},
		{"blank method", `{"id":9,"method":"  "}`, CodeInvalidRequest, "9"},
		{"no dot", `{"id":10,"method":"MathAdd"}`, CodeMethodNotFound, "10"},
		{"unknown method", `{"id":11,"method":"Math.Mul","params":[1,2]}`, CodeMethodNotFound, "11"},
		{"prefix handler", `{"id":12,"method":"Mat.Add","params":[1,2]}`, CodeMethodNotFound, "12"},
		{"case mismatch", `{"id":13,"method":"math.add","params":[1,2]}`, CodeMethodNotFound, "13"},
		{"object params", `{"id":14,"method":"Math.Add","params":{"a":1,"b":2}}`, CodeInvalidParams, "14"},
		{"object params unknown method", `{"id":15,"method":"Math.Nope","params":{"a":1}}`, CodeMethodNotFound, "15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := serve(t, d, tt.payload)
			wantCode(t, r, tt.code)
			if r.ID != tt.id {
				t.Errorf("got id %s, want %s", r.ID, tt.id)
			}
		})
	}
}

func TestCaseInsensitiveKeys(t *testing.T) {
	d := newTestDispatcher()
	r := serve(t, d, `{"Id":5,"Method":"Math.Add","Params":[2,2],"jsonrpc":"2.0"}`)
	if r.ID != "5" {
		t.Errorf("got id %s, want 5", r.ID)
	}
	wantResult(t, r, "4")
}

func TestExactSegmentResolution(t *testing.T) {
	reg := MustNewRegistry(
		factory("Foo", &testMath{}),
		factory("FooBar", testGreeter{}),
	)
	d := NewDispatcher(reg, WithLogger(quietLogger()))

	wantResult(t, serve(t, d, `{"id":1,"method":"Foo.Add","params":[1,2]}`), "3")
	wantResult(t, serve(t, d, `{"id":1,"method":"FooBar.Greet","params":["x"]}`), `"Hello, x"`)
	wantCode(t, serve(t, d, `{"id":1,"method":"Foo.Greet","params":["x"]}`), CodeMethodNotFound)
	wantCode(t, serve(t, d, `{"id":1,"method":"FooBar.Add","params":[1,2]}`), CodeMethodNotFound)
	// Only the first dot separates handler from method.
	wantCode(t, serve(t, d, `{"id":1,"method":"Foo.Add.Extra","params":[1,2]}`), CodeMethodNotFound)
}

func TestParamBinding(t *testing.T) {
	d := newTestDispatcher()
	tests := []struct {
		name    string
		payload string
		result  string
		code    int
		message string
	}{
		{"too few", `{"id":1,"method":"Math.Add","params":[1]}`, "", CodeInvalidParams, "missing param: b"},
		{"none", `{"id":1,"method":"Math.Add"}`, "", CodeInvalidParams, "missing param: a"},
		{"null params", `{"id":1,"method":"Math.Add","params":null}`, "", CodeInvalidParams, "missing param: a"},
		{"extra ignored", `{"id":1,"method":"Math.Add","params":[1,2,3,"x"]}`, "3", 0, ""},
		{"wrong type", `{"id":1,"method":"Math.Add","params":["1",2]}`, "", CodeInvalidParams, "invalid param: a"},
		{"fraction for int", `{"id":1,"method":"Math.Neg","params":[1.5]}`, "", CodeInvalidParams, "invalid param: n"},
		{"context first", `{"id":1,"method":"Users.Get","params":["abc"]}`, `{"id":"abc","name":"Ada"}`, 0, ""},
		{"context middle", `{"id":1,"method":"Users.Rename","params":["abc","Bob"]}`, `"abc:Bob"`, 0, ""},
		{"context middle too few", `{"id":1,"method":"Users.Rename","params":["abc"]}`, "", CodeInvalidParams, "missing param: name"},
		{"optional default", `{"id":1,"method":"Greeter.Greet","params":["Ann"]}`, `"Hello, Ann"`, 0, ""},
		{"optional supplied", `{"id":1,"method":"Greeter.Greet","params":["Ann","Hi"]}`, `"Hi, Ann"`, 0, ""},
		{"optional bad type", `{"id":1,"method":"Greeter.Greet","params":["Ann",3]}`, "", CodeInvalidParams, "invalid param: greeting"},
		{"required missing before optional", `{"id":1,"method":"Greeter.Greet","params":[]}`, "", CodeInvalidParams, "missing param: name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := serve(t, d, tt.payload)
			if tt.code == 0 {
				wantResult(t, r, tt.result)
				return
			}
			wantCode(t, r, tt.code)
			if r.Error.Message != tt.message {
				t.Errorf("got message %q, want %q", r.Error.Message, tt.message)
			}
		})
	}
}

func TestAsync(t *testing.T) {
	d := newTestDispatcher()

	wantResult(t, serve(t, d, `{"id":1,"method":"Async.Double","params":[21]}`), "42")
	wantResult(t, serve(t, d, `{"id":1,"method":"Async.Lookup","params":["go"]}`), `"GO"`)

	r := serve(t, d, `{"id":1,"method":"Async.Lookup","params":[""]}`)
	wantCode(t, r, 404)

	r = serve(t, d, `{"id":1,"method":"Async.Touch"}`)
	if r.Error != nil || r.Result != nil {
		t.Errorf("got %v, want a response with neither result nor error", r.raw)
	}

	wantCode(t, serve(t, d, `{"id":1,"method":"Async.Nil"}`), CodeInternalError)
	wantCode(t, serve(t, d, `{"id":1,"method":"Async.Explode"}`), CodeInternalError)
	wantCode(t, serve(t, d, `{"id":1,"method":"Async.Reject"}`), 409)
}

func TestAsyncCompletesBeforeResponse(t *testing.T) {
	a := &testAsync{}
	d := NewDispatcher(MustNewRegistry(factory("Async", a)), WithLogger(quietLogger()))
	for i := 0; i < 10; i++ {
		serve(t, d, `{"id":1,"method":"Async.Touch"}`)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runs != 10 {
		t.Errorf("got %d completed tasks, want 10", a.runs)
	}
}

func TestVoidResult(t *testing.T) {
	d := newTestDispatcher()
	r := serve(t, d, `{"id":1,"method":"Faults.Nothing"}`)
	if r.Error != nil || r.Result != nil {
		t.Errorf("got %v, want a response with neither result nor error", r.raw)
	}
}

type hookCall struct {
	payload []byte
	req     *Request
	err     error
}

func TestInternalErrors(t *testing.T) {
	var mu sync.Mutex
	var calls []hookCall
	var logs bytes.Buffer
	d := NewDispatcher(testRegistry(),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithDiagnosticHook(func(_ context.Context, payload []byte, req *Request, err error) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, hookCall{payload, req, err})
		}),
	)

	for _, method := range []string{"Faults.Panic", "Faults.Fail"} {
		t.Run(method, func(t *testing.T) {
			mu.Lock()
			calls = nil
			mu.Unlock()

			payload := `{"id":1,"method":"` + method + `"}`
			r := serve(t, d, payload)
			wantCode(t, r, CodeInternalError)
			if r.Error.Message != "internal error" {
				t.Errorf("got message %q, want %q", r.Error.Message, "internal error")
			}
			if strings.Contains(string(r.raw["error"]), "secret") {
				t.Errorf("error %s leaks detail", r.raw["error"])
			}

			mu.Lock()
			defer mu.Unlock()
			if len(calls) != 1 {
				t.Fatalf("got %d hook calls, want 1", len(calls))
			}
			if string(calls[0].payload) != payload {
				t.Errorf("got payload %q, want %q", calls[0].payload, payload)
			}
			if calls[0].req == nil || calls[0].req.Method != method {
				t.Errorf("got request %+v, want method %s", calls[0].req, method)
			}
			if !strings.Contains(calls[0].err.Error(), "secret detail") {
				t.Errorf("got error %v, want the original error", calls[0].err)
			}
		})
	}

	if !strings.Contains(logs.String(), "level=ERROR") {
		t.Errorf("got logs %q, want an error entry", logs.String())
	}
}

func TestHookNotCalledForProtocolErrors(t *testing.T) {
	called := false
	d := newTestDispatcher(WithDiagnosticHook(func(context.Context, []byte, *Request, error) { called = true }))
	serve(t, d, `{not json`)
	serve(t, d, `{"id":1,"method":"Nope.Nope"}`)
	serve(t, d, `{"id":1,"method":"Math.Add","params":[]}`)
	serve(t, d, `{"id":1,"method":"Faults.Typed"}`)
	serve(t, d, `{"id":1,"method":"Users.Get","params":["nobody"]}`)
	if called {
		t.Error("hook called for a classified error")
	}
}

func TestHookPanicSwallowed(t *testing.T) {
	d := newTestDispatcher(WithDiagnosticHook(func(context.Context, []byte, *Request, error) {
		panic("hook failure")
	}))
	r := serve(t, d, `{"id":1,"method":"Faults.Fail"}`)
	wantCode(t, r, CodeInternalError)
	if r.ID != "1" {
		t.Errorf("got id %s, want 1", r.ID)
	}
}

func TestTypedErrors(t *testing.T) {
	d := newTestDispatcher()

	r := serve(t, d, `{"id":1,"method":"Faults.Typed"}`)
	wantCode(t, r, 1000)
	if r.Error.Message != "typed" {
		t.Errorf("got message %q, want %q", r.Error.Message, "typed")
	}

	r = serve(t, d, `{"id":1,"method":"Faults.Domain"}`)
	wantCode(t, r, 1001)
	if string(r.Error.Data) != `{"id":"x"}` {
		t.Errorf("got data %s, want %s", r.Error.Data, `{"id":"x"}`)
	}

	wantCode(t, serve(t, d, `{"id":1,"method":"Faults.PanicTyped"}`), 1002)
}

func TestUnencodableResult(t *testing.T) {
	var hookErr error
	var hookReq *Request
	o := &recordingObserver{}
	d := newTestDispatcher(WithObserver(o), WithDiagnosticHook(func(_ context.Context, _ []byte, req *Request, err error) {
		hookReq, hookErr = req, err
	}))
	r := serve(t, d, `{"id":"c","method":"Faults.Chan"}`)
	wantCode(t, r, CodeInternalError)
	if r.ID != `"c"` {
		t.Errorf("got id %s, want %q", r.ID, `"c"`)
	}
	if hookErr == nil {
		t.Error("hook not called for an encode failure")
	}
	if hookReq == nil || hookReq.Method != "Faults.Chan" {
		t.Errorf("got hook request %+v, want the decoded request", hookReq)
	}
	want := "Faults.Chan=" + strconv.Itoa(CodeInternalError)
	if strings.Join(o.events, ",") != want {
		t.Errorf("got events %v, want [%s]", o.events, want)
	}
}

func TestHandle(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Handle(context.Background(), []byte(`{"id":1,"method":"Math.Add","params":[2,3]}`))
	if resp.Error != nil {
		t.Fatalf("got error %v, want nil", resp.Error)
	}
	if resp.Result != float64(5) {
		t.Errorf("got result %v, want 5", resp.Result)
	}
	if string(resp.ID) != "1" {
		t.Errorf("got id %s, want 1", resp.ID)
	}
}

func TestCallContext(t *testing.T) {
	var got *Call
	reg := MustNewRegistry(factory("Probe", probe(func(ctx context.Context) {
		got, _ = CallFromContext(ctx)
	})))
	d := NewDispatcher(reg, WithLogger(quietLogger()))

	ctx := WithPeer(context.Background(), Peer{Transport: "test", RemoteAddr: "1.2.3.4:5"})
	d.Serve(ctx, []byte(`{"id":1,"method":"Probe.Run"}`))
	if got == nil {
		t.Fatal("no call in context")
	}
	if got.Method != "Probe.Run" || got.Handler != "Probe" {
		t.Errorf("got method %q handler %q, want Probe.Run and Probe", got.Method, got.Handler)
	}
	if got.ID == "" {
		t.Error("call has no id")
	}
	if got.Peer.Transport != "test" || got.Peer.RemoteAddr != "1.2.3.4:5" {
		t.Errorf("got peer %+v", got.Peer)
	}

	first := got.ID
	d.Serve(ctx, []byte(`{"id":1,"method":"Probe.Run"}`))
	if got.ID == first {
		t.Errorf("got repeated call id %s", first)
	}
}

type probe func(ctx context.Context)

func (p probe) Methods() []Method {
	return []Method{
		Proc1("Run", Context("ctx"), func(ctx context.Context) error {
			p(ctx)
			return nil
		}),
	}
}

func TestInterceptors(t *testing.T) {
	var order []string
	trace := func(name string) Interceptor {
		return func(call *Call, args []any, next Invoker) (any, error) {
			order = append(order, name+":"+call.Method)
			return next(call, args)
		}
	}
	d := newTestDispatcher(WithInvokeInterceptor(trace("outer"), trace("inner")))
	wantResult(t, serve(t, d, `{"id":1,"method":"Math.Add","params":[1,2]}`), "3")
	want := []string{"outer:Math.Add", "inner:Math.Add"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("got order %v, want %v", order, want)
	}

	deny := newTestDispatcher(WithInvokeInterceptor(func(*Call, []any, Invoker) (any, error) {
		return nil, NewError(403, "denied")
	}))
	wantCode(t, serve(t, deny, `{"id":1,"method":"Math.Add","params":[1,2]}`), 403)

	boom := newTestDispatcher(WithInvokeInterceptor(func(*Call, []any, Invoker) (any, error) {
		panic("interceptor")
	}))
	wantCode(t, serve(t, boom, `{"id":1,"method":"Math.Add","params":[1,2]}`), CodeInternalError)
}

func TestInterceptorsSeeAsyncOutcome(t *testing.T) {
	type outcome struct {
		value any
		err   error
	}
	var got []outcome
	d := newTestDispatcher(WithInvokeInterceptor(func(call *Call, args []any, next Invoker) (any, error) {
		v, err := next(call, args)
		got = append(got, outcome{v, err})
		return v, err
	}))

	wantResult(t, serve(t, d, `{"id":1,"method":"Async.Double","params":[21]}`), "42")
	wantCode(t, serve(t, d, `{"id":2,"method":"Async.Reject"}`), 409)
	wantCode(t, serve(t, d, `{"id":3,"method":"Async.Explode"}`), CodeInternalError)
	wantResult(t, serve(t, d, `{"id":4,"method":"Async.Lookup","params":["a"]}`), `"A"`)
	serve(t, d, `{"id":5,"method":"Async.Touch"}`)

	if len(got) != 5 {
		t.Fatalf("got %d intercepted calls, want 5", len(got))
	}
	if got[0].value != 42 || got[0].err != nil {
		t.Errorf("got %v, %v, want the settled value 42", got[0].value, got[0].err)
	}
	var e *Error
	if !errors.As(got[1].err, &e) || e.Code != 409 {
		t.Errorf("got error %v, want the rejection", got[1].err)
	}
	var p *panicError
	if !errors.As(got[2].err, &p) {
		t.Errorf("got error %v, want the goroutine panic", got[2].err)
	}
	if r, ok := got[3].value.(Result[string]); !ok || r.Data != "A" {
		t.Errorf("got %#v, want the wrapped result", got[3].value)
	}
	if got[4].value != nil || got[4].err != nil {
		t.Errorf("got %v, %v, want no value for a task", got[4].value, got[4].err)
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) ObserveCall(method string, code int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, method+"="+strconv.Itoa(code))
}

func TestObserver(t *testing.T) {
	o := &recordingObserver{}
	d := newTestDispatcher(WithObserver(o))
	serve(t, d, `{"id":1,"method":"Math.Add","params":[1,2]}`)
	serve(t, d, `{"id":1,"method":"Math.Nope"}`)
	serve(t, d, `{not json`)
	serve(t, d, `{"id":1,"method":"Users.Get","params":["nobody"]}`)

	want := []string{"Math.Add=0", "Math.Nope=-32601", "=-32700", "Users.Get=404"}
	if strings.Join(o.events, ",") != strings.Join(want, ",") {
		t.Errorf("got events %v, want %v", o.events, want)
	}
}

func TestConcurrentDispatch(t *testing.T) {
	d := newTestDispatcher()
	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := `{"id":` + strconv.Itoa(i) + `,"method":"Async.Double","params":[` + strconv.Itoa(i) + `]}`
			var resp struct {
				ID     int `json:"id"`
				Result int `json:"result"`
			}
			if err := json.Unmarshal(d.Serve(context.Background(), []byte(payload)), &resp); err != nil {
				errs <- err
				return
			}
			if resp.ID != i || resp.Result != 2*i {
				errs <- errors.New("mismatched response for " + strconv.Itoa(i))
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestNoHTMLEscape(t *testing.T) {
	d := newTestDispatcher()
	out := d.Serve(context.Background(), []byte(`{"id":1,"method":"Greeter.Greet","params":["<b>&</b>"]}`))
	if !bytes.Contains(out, []byte(`"Hello, <b>&</b>"`)) {
		t.Errorf("got %s, want unescaped HTML characters", out)
	}
}
