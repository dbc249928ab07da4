// Package metrics exposes Prometheus collectors for the proxy. Collectors
// are package-level and registered once via Register; helper functions are
// no-ops until registration succeeds so instrumented code paths never need
// nil checks.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wrapmcp",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Inbound client requests by method.",
		}, []string{"method"},
	)
	toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wrapmcp",
			Subsystem: "proxy",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by routing target and outcome.",
		}, []string{"target", "outcome"},
	)
	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wrapmcp",
			Subsystem: "proxy",
			Name:      "tool_call_duration_seconds",
			Help:      "Forwarded tool call duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"},
	)
	restartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wrapmcp",
			Subsystem: "wrappee",
			Name:      "restarts_total",
			Help:      "Number of wrappee restarts, successful or not.",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wrapmcp",
			Subsystem: "wrappee",
			Name:      "state_transitions_total",
			Help:      "Wrappee lifecycle state transitions.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wrapmcp",
			Subsystem: "wrappee",
			Name:      "current_state",
			Help:      "Current wrappee state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	stderrLines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wrapmcp",
			Subsystem: "wrappee",
			Name:      "stderr_lines_total",
			Help:      "Captured wrappee diagnostic lines.",
		},
	)
	logEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wrapmcp",
			Subsystem: "log",
			Name:      "entries",
			Help:      "Entries currently held by the log store.",
		},
	)
)

// Register registers all collectors with r. Safe to call multiple times;
// calls after the first success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		requestsTotal, toolCalls, callDuration, restartsTotal,
		stateTransitions, currentState, stderrLines, logEntries,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler { return promhttp.Handler() }

func IncRequest(method string) {
	if regOK.Load() {
		requestsTotal.WithLabelValues(method).Inc()
	}
}

// IncToolCall records one invocation. target is "builtin" or "wrappee";
// outcome is "ok", "error", "timeout", "unavailable" or "not_found".
func IncToolCall(target, outcome string) {
	if regOK.Load() {
		toolCalls.WithLabelValues(target, outcome).Inc()
	}
}

func ObserveCallDuration(target string, seconds float64) {
	if regOK.Load() {
		callDuration.WithLabelValues(target).Observe(seconds)
	}
}

func IncRestart() {
	if regOK.Load() {
		restartsTotal.Inc()
	}
}

func IncStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

// SetCurrentState marks state as the single active lifecycle state.
func SetCurrentState(state string, all []string) {
	if !regOK.Load() {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1.0
		}
		currentState.WithLabelValues(s).Set(v)
	}
}

func IncStderrLine() {
	if regOK.Load() {
		stderrLines.Inc()
	}
}

func SetLogEntries(n int) {
	if regOK.Load() {
		logEntries.Set(float64(n))
	}
}
