// Package metrics exposes engine outcomes as Prometheus collectors.
//
// Metrics implements timesheet.Recorder. Collectors are registered on the
// registry passed to New so that tests and the server each own theirs:
//
//	timesheet_allocations_total{result="ok|regenerated|failed"}
//	timesheet_consistency_checks_total{result="consistent|inconsistent"}
//	timesheet_month_builds_total{modified="true|false"}
//	timesheet_month_build_seconds
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine collectors.
type Metrics struct {
	registry *prometheus.Registry

	Allocations       *prometheus.CounterVec
	ConsistencyChecks *prometheus.CounterVec
	MonthBuilds       *prometheus.CounterVec
	MonthBuildSeconds prometheus.Histogram
}

// New registers the collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Allocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timesheet",
			Name:      "allocations_total",
			Help:      "Allocation runs by result.",
		}, []string{"result"}),
		ConsistencyChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timesheet",
			Name:      "consistency_checks_total",
			Help:      "Consistency checks by result.",
		}, []string{"result"}),
		MonthBuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timesheet",
			Name:      "month_builds_total",
			Help:      "Assembled month views, by whether allocations were modified.",
		}, []string{"modified"}),
		MonthBuildSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "timesheet",
			Name:      "month_build_seconds",
			Help:      "Time to assemble a month view.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}
}

// AllocationDone counts one allocation run.
func (m *Metrics) AllocationDone(regenerated bool, err error) {
	result := "ok"
	switch {
	case err != nil:
		result = "failed"
	case regenerated:
		result = "regenerated"
	}
	m.Allocations.WithLabelValues(result).Inc()
}

// ConsistencyChecked counts one consistency check.
func (m *Metrics) ConsistencyChecked(consistent bool) {
	result := "inconsistent"
	if consistent {
		result = "consistent"
	}
	m.ConsistencyChecks.WithLabelValues(result).Inc()
}

// MonthBuilt counts one assembled month and observes its duration.
func (m *Metrics) MonthBuilt(modified bool, elapsed time.Duration) {
	m.MonthBuilds.WithLabelValues(strconv.FormatBool(modified)).Inc()
	m.MonthBuildSeconds.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
