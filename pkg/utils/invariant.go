// This module introduces a way to handle unexpected bugs / conditions in code.
// Invariants are conditions that must be true; otherwise, there is a bug in code.
// Think of what you'd `panic()` on (equivalent to `assert` in other languages), but you don't want
// to crash the host application just because of that violation: a cache handing out a wrong
// eviction is never worth taking the editor down. If an invariant is violated, a log error is
// recorded and a monitoring counter is incremented that will trigger an alert. It is still up to
// the caller to handle the erroneous case, e.g. fall back to a sane value and carry on.
//
// Do not use invariants for conditions that depend on external factors. Caller-supplied entry
// sizes being negative, or a capacity that our own configuration plumbing should never have
// produced, are invariant material; a missing key is not.

package utils

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	promclient "github.com/prometheus/client_model/go"
)

var invariantsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "invariants_total",
	Help: "The total number of invariant violations",
}, []string{
	"module", // The module in which this invariant occurred.
	"type",   // The type of the invariant that occurred.
})

// RaiseInvariant records an invariant violation: it bumps the monitoring counter and logs an
// error. Under test-mode builds it panics instead, so violated assumptions fail tests loudly.
func RaiseInvariant(module, invariantType, msg string, args ...any) {
	invariantsMetric.WithLabelValues(module, invariantType).Inc()
	slog.With("invariant", invariantType, "module", module).Error(msg, args...)
	if IsTestMode {
		panic("invariant violated: " + invariantType)
	}
}

// GetMetricValue returns the current value of the invariant counter for the given labels.
func GetMetricValue(module, invariantType string) int {
	var metric = &promclient.Metric{}
	if err := invariantsMetric.WithLabelValues(module, invariantType).Write(metric); err != nil {
		slog.Error(err.Error())
		return 0
	}
	return int(metric.Counter.GetValue())
}
