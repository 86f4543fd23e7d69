package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeProcessed = "processed"
	OutcomeRejected  = "rejected"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

// Metrics holds the intake collectors. A nil *Metrics records nothing.
type Metrics struct {
	events          *prometheus.CounterVec
	reportFailures  prometheus.Counter
	persistDuration prometheus.Histogram
	logWindow       *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formintake_events_total",
				Help: "Webhook events by outcome",
			},
			[]string{"outcome"},
		),
		reportFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "formintake_report_failures_total",
				Help: "Processing log entries that could not be written",
			},
		),
		persistDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "formintake_persist_duration_seconds",
				Help:    "Duration of the intake transaction",
				Buckets: prometheus.DefBuckets,
			},
		),
		logWindow: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "formintake_processing_log_window",
				Help: "Processing log entries by status in the last summary window",
			},
			[]string{"status"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.reportFailures, m.persistDuration, m.logWindow)
	}
	return m
}

func (m *Metrics) observeEvent(outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeReportFailure() {
	if m == nil {
		return
	}
	m.reportFailures.Inc()
}

func (m *Metrics) observePersist(d time.Duration) {
	if m == nil {
		return
	}
	m.persistDuration.Observe(d.Seconds())
}

func (m *Metrics) setWindow(status string, n int) {
	if m == nil {
		return
	}
	m.logWindow.WithLabelValues(status).Set(float64(n))
}
