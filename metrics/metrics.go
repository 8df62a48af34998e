// Package metrics exports RPC dispatch metrics to Prometheus.
//
// A Collector is installed on a dispatcher as its observer, and optionally as
// an invoke interceptor to track calls in flight:
//
//	m := metrics.New("typedrpc", prometheus.DefaultRegisterer)
//	d := rpc.NewDispatcher(reg, rpc.WithObserver(m), rpc.WithInvokeInterceptor(m.InFlight()))
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mnehpets/typedrpc/rpc"
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeProtocol = "protocol_error"
	OutcomeInternal = "internal_error"
	OutcomeDomain   = "domain_error"
)

// unknownMethod replaces method names that did not resolve, so arbitrary
// client input never becomes a label value.
const unknownMethod = "unknown"

// Collector records dispatch outcomes. It implements rpc.Observer.
type Collector struct {
	callsTotal      *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	inFlight        *prometheus.GaugeVec
}

// New creates a Collector whose metric names are prefixed with namespace and
// registers it with reg. Registration failures panic, as with
// prometheus.MustRegister.
//
// Metrics:
//   - {namespace}_calls_total{method,outcome}
//   - {namespace}_errors_total{code}
//   - {namespace}_call_duration_seconds{method}
//   - {namespace}_calls_in_flight{method}
func New(namespace string, reg prometheus.Registerer) *Collector {
	c := &Collector{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Dispatched RPC calls by method and outcome.",
		}, []string{"method", "outcome"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "RPC error responses by error code.",
		}, []string{"code"}),
		durationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Time from payload receipt to response, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_in_flight",
			Help:      "Method invocations currently running.",
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(c.callsTotal, c.errorsTotal, c.durationSeconds, c.inFlight)
	}
	return c
}

// ObserveCall implements rpc.Observer.
func (c *Collector) ObserveCall(method string, code int, elapsed time.Duration) {
	if method == "" || code == rpc.CodeMethodNotFound {
		method = unknownMethod
	}
	c.callsTotal.WithLabelValues(method, Outcome(code)).Inc()
	if code != 0 {
		c.errorsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
	}
	c.durationSeconds.WithLabelValues(method).Observe(elapsed.Seconds())
}

// InFlight returns an interceptor that tracks running invocations. Only
// resolved methods reach interceptors, so the label set stays bounded.
func (c *Collector) InFlight() rpc.Interceptor {
	return func(call *rpc.Call, args []any, next rpc.Invoker) (any, error) {
		g := c.inFlight.WithLabelValues(call.Method)
		g.Inc()
		defer g.Dec()
		return next(call, args)
	}
}

// Outcome classifies a response error code. 0 is success.
func Outcome(code int) string {
	switch code {
	case 0:
		return OutcomeSuccess
	case rpc.CodeInternalError:
		return OutcomeInternal
	case rpc.CodeParseError, rpc.CodeInvalidRequest, rpc.CodeMethodNotFound, rpc.CodeInvalidParams:
		return OutcomeProtocol
	}
	return OutcomeDomain
}

var _ rpc.Observer = (*Collector)(nil)
