package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.JobOutcome("REMINDER_24H", "SMS", OutcomeSent)
	m.JobOutcome("REMINDER_24H", "SMS", OutcomeSent)
	m.JobOutcome("REMINDER_2H", "EMAIL", OutcomeFailed)
	m.QuotaDenied("monthly limit reached")
	m.JobsSkipped("REMINDER_24H", 3)
	m.ObserveSweep(150 * time.Millisecond)

	if got := testutil.ToFloat64(m.jobOutcomes.WithLabelValues("REMINDER_24H", "SMS", OutcomeSent)); got != 2 {
		t.Fatalf("expected 2 sent, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobsSkipped.WithLabelValues("REMINDER_24H")); got != 3 {
		t.Fatalf("expected 3 skipped, got %v", got)
	}
	if got := testutil.CollectAndCount(m.sweepDuration); got != 1 {
		t.Fatalf("expected sweep histogram, got %d series", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.JobScheduled("REMINDER_24H", "SMS")
	m.JobOutcome("REMINDER_24H", "SMS", OutcomeSent)
	m.QuotaDenied("x")
	m.ClaimLost()
	m.ObserveSweep(time.Second)
}
