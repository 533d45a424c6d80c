package spanz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics counts span lifecycle events and export outcomes.
type metrics struct {
	spansStarted    prometheus.Counter
	spansFinished   prometheus.Counter
	spansOpen       prometheus.Gauge
	tracesFlushed   *prometheus.CounterVec
	payloadsSent    prometheus.Counter
	payloadsDropped *prometheus.CounterVec
	apiErrors       *prometheus.CounterVec
}

// newMetrics registers the tracer metrics. A registerer can back a single
// tracer only.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		spansStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanz_spans_started_total",
			Help: "Total number of spans started",
		}),
		spansFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanz_spans_finished_total",
			Help: "Total number of spans finished",
		}),
		spansOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "spanz_spans_open",
			Help: "Number of spans started but not finished",
		}),
		tracesFlushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spanz_traces_flushed_total",
				Help: "Total number of trace chunks flushed",
			},
			[]string{"partial"},
		),
		payloadsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanz_payloads_sent_total",
			Help: "Total number of payloads accepted by the agent",
		}),
		payloadsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spanz_payloads_dropped_total",
				Help: "Total number of payloads dropped",
			},
			[]string{"reason"},
		),
		apiErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spanz_api_errors_total",
				Help: "Total number of failed agent requests and exporter failures",
			},
			[]string{"reason"},
		),
	}
}
