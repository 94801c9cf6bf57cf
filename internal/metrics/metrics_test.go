package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStreamMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStreamMetrics(reg)

	m.FramesTotal.WithLabelValues("entry").Add(3)
	m.ReconnectsTotal.WithLabelValues("close").Inc()
	m.ReconnectAttempts.Set(2)

	if got := testutil.ToFloat64(m.FramesTotal.WithLabelValues("entry")); got != 3 {
		t.Errorf("expected 3 entry frames, got %f", got)
	}
	if got := testutil.ToFloat64(m.ReconnectAttempts); got != 2 {
		t.Errorf("expected attempts gauge 2, got %f", got)
	}

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected 4 series, got %d", n)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Two clients in one process must not collide.
	NewStreamMetrics(prometheus.NewRegistry())
	NewStreamMetrics(prometheus.NewRegistry())
}
