// Package metrics exposes polled values as Prometheus gauges.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zberg/go-vclient/pkg/vcontrold"
)

// Exporter keeps the latest value of every numeric item.
type Exporter struct {
	registry *prometheus.Registry
	value    *prometheus.GaugeVec
	failures *prometheus.CounterVec
	queries  *prometheus.CounterVec
	duration prometheus.Histogram
	lastPoll prometheus.Gauge
}

// New creates an exporter with its own registry.
func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		value: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "vcontrold",
				Name:      "value",
				Help:      "Latest value reported by the heating controller.",
			},
			[]string{"item", "unit"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vcontrold",
				Name:      "item_failures_total",
				Help:      "Items that could not be fetched, by item and state.",
			},
			[]string{"item", "state"},
		),
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vcontrold",
				Name:      "queries_total",
				Help:      "Queries run against the daemon, by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vcontrold",
			Name:      "query_duration_seconds",
			Help:      "Wall time of a full query.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		lastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vcontrold",
			Name:      "last_query_timestamp_seconds",
			Help:      "Unix time of the last completed query.",
		}),
	}
	e.registry.MustRegister(e.value, e.failures, e.queries, e.duration, e.lastPoll)
	return e
}

// Observe records a query outcome. res may be partial when err is set.
func (e *Exporter) Observe(res *vcontrold.Result, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.queries.WithLabelValues(outcome).Inc()
	if res == nil {
		return
	}

	for _, it := range res.Items() {
		if it.Err != nil {
			e.failures.WithLabelValues(it.Name, string(it.State)).Inc()
			// A stale reading must not outlive a failing sensor.
			e.value.DeletePartialMatch(prometheus.Labels{"item": it.Name})
			continue
		}
		if v, ok := gaugeValue(it); ok {
			e.value.WithLabelValues(it.Name, it.Unit.String()).Set(v)
		}
	}
	e.duration.Observe(res.Meta.Elapsed.Seconds())
	e.lastPoll.Set(float64(time.Now().Unix()))
}

// gaugeValue maps numbers, switches and timestamps onto a float.
func gaugeValue(it vcontrold.Item) (float64, bool) {
	switch v := it.Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case time.Time:
		return float64(v.Unix()), true
	}
	return 0, false
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }
