// Package metrics exposes Prometheus counters for scheduling and dispatch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

type Metrics struct {
	jobsScheduled *prometheus.CounterVec
	jobsSkipped   *prometheus.CounterVec
	jobOutcomes   *prometheus.CounterVec
	quotaDenied   *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	claimsLost    prometheus.Counter
}

// New registers the scheduler metrics on reg, or the default registerer when
// reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		jobsScheduled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apptflow",
			Subsystem: "scheduler",
			Name:      "jobs_scheduled_total",
			Help:      "Message jobs inserted by the scheduler",
		}, []string{"rule_type", "channel"}),
		jobsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apptflow",
			Subsystem: "scheduler",
			Name:      "jobs_superseded_total",
			Help:      "Queued jobs skipped by supersede or cancellation",
		}, []string{"rule_type"}),
		jobOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apptflow",
			Subsystem: "runner",
			Name:      "jobs_total",
			Help:      "Dispatched jobs by outcome",
		}, []string{"rule_type", "channel", "outcome"}),
		quotaDenied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apptflow",
			Subsystem: "runner",
			Name:      "quota_denied_total",
			Help:      "Sends refused by the quota guard",
		}, []string{"reason"}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "apptflow",
			Subsystem: "runner",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one due-jobs sweep",
			Buckets:   prometheus.DefBuckets,
		}),
		claimsLost: f.NewCounter(prometheus.CounterOpts{
			Namespace: "apptflow",
			Subsystem: "runner",
			Name:      "claims_lost_total",
			Help:      "Jobs claimed by a concurrent runner first",
		}),
	}
}

func (m *Metrics) JobScheduled(ruleType, channel string) {
	if m == nil {
		return
	}
	m.jobsScheduled.WithLabelValues(ruleType, channel).Inc()
}

func (m *Metrics) JobsSkipped(ruleType string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.jobsSkipped.WithLabelValues(ruleType).Add(float64(n))
}

func (m *Metrics) JobOutcome(ruleType, channel, outcome string) {
	if m == nil {
		return
	}
	m.jobOutcomes.WithLabelValues(ruleType, channel, outcome).Inc()
}

func (m *Metrics) QuotaDenied(reason string) {
	if m == nil {
		return
	}
	m.quotaDenied.WithLabelValues(reason).Inc()
}

func (m *Metrics) ClaimLost() {
	if m == nil {
		return
	}
	m.claimsLost.Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}
