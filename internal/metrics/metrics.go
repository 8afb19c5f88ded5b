package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the autoposter collectors on a private registry.
type Registry struct {
	reg *prometheus.Registry

	// Invocations counts coordinator runs by final state.
	Invocations *prometheus.CounterVec
	// StoreErrors counts queue and asset store failures by operation.
	StoreErrors *prometheus.CounterVec
	// PublishDuration times publisher calls.
	PublishDuration *prometheus.HistogramVec
	LastSuccess     *prometheus.GaugeVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoposter_invocations_total",
				Help: "Coordinator invocations by platform, trigger and final state",
			},
			[]string{"platform", "trigger", "state"},
		),
		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoposter_store_errors_total",
				Help: "Queue and asset store failures by platform and operation",
			},
			[]string{"platform", "operation"},
		),
		PublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autoposter_publish_duration_seconds",
				Help:    "Time spent in the platform publisher",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"platform", "result"},
		),
		LastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "autoposter_last_success_timestamp_seconds",
				Help: "Unix time of the last successful post per platform",
			},
			[]string{"platform"},
		),
	}
	r.reg.MustRegister(
		r.Invocations,
		r.StoreErrors,
		r.PublishDuration,
		r.LastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
