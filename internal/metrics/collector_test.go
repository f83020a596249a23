package mongomgrmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	mongomgrmetrics "github.com/mguindin/mongomgr/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := mongomgrmetrics.NewCollector(reg)

	if c.Connections == nil {
		t.Error("Connections is nil")
	}
	if c.Failures == nil {
		t.Error("Failures is nil")
	}
	if c.SelectionsTotal == nil {
		t.Error("SelectionsTotal is nil")
	}
	if c.SelectionFailuresTotal == nil {
		t.Error("SelectionFailuresTotal is nil")
	}
	if c.DiscoveryRoundsTotal == nil {
		t.Error("DiscoveryRoundsTotal is nil")
	}

	// Verify all metrics are registered by gathering them.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	// No data yet, so families may be empty -- but registration must not panic.
	_ = families
}

func TestRegisterUnregisterConnection(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := mongomgrmetrics.NewCollector(reg)

	// Register a primary connection -- gauge should go to 1.
	c.RegisterConnection("rs0", "primary")

	val := gaugeValue(t, c.Connections, "rs0", "primary")
	if val != 1 {
		t.Errorf("after RegisterConnection: connections gauge = %v, want 1", val)
	}

	// Register a secondary on the same deployment.
	c.RegisterConnection("rs0", "secondary")

	val = gaugeValue(t, c.Connections, "rs0", "secondary")
	if val != 1 {
		t.Errorf("after second RegisterConnection: secondary gauge = %v, want 1", val)
	}

	// Unregister the primary -- gauge should go back to 0.
	c.UnregisterConnection("rs0", "primary")

	val = gaugeValue(t, c.Connections, "rs0", "primary")
	if val != 0 {
		t.Errorf("after UnregisterConnection: primary gauge = %v, want 0", val)
	}

	// secondary should still be 1.
	val = gaugeValue(t, c.Connections, "rs0", "secondary")
	if val != 1 {
		t.Errorf("secondary gauge = %v, want 1 (should be unaffected)", val)
	}
}

func TestIncFailure(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := mongomgrmetrics.NewCollector(reg)

	c.IncFailure("rs0", "dial")
	c.IncFailure("rs0", "dial")
	c.IncFailure("rs0", "auth")

	val := counterValue(t, c.Failures, "rs0", "dial")
	if val != 2 {
		t.Errorf("Failures(dial) = %v, want 2", val)
	}

	val = counterValue(t, c.Failures, "rs0", "auth")
	if val != 1 {
		t.Errorf("Failures(auth) = %v, want 1", val)
	}
}

func TestSelectionCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := mongomgrmetrics.NewCollector(reg)

	c.IncSelection("rs0")
	c.IncSelection("rs0")
	c.IncSelectionFailure("rs0")

	val := counterValue(t, c.SelectionsTotal, "rs0")
	if val != 2 {
		t.Errorf("SelectionsTotal = %v, want 2", val)
	}

	val = counterValue(t, c.SelectionFailuresTotal, "rs0")
	if val != 1 {
		t.Errorf("SelectionFailuresTotal = %v, want 1", val)
	}
}

func TestDiscoveryRounds(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := mongomgrmetrics.NewCollector(reg)

	c.IncDiscoveryRound("rs0")
	c.IncDiscoveryRound("rs0")
	c.IncDiscoveryRound("rs0")

	val := counterValue(t, c.DiscoveryRoundsTotal, "rs0")
	if val != 3 {
		t.Errorf("DiscoveryRoundsTotal = %v, want 3", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// gaugeValue reads the current value of a GaugeVec with the given labels.
func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

// counterValue reads the current value of a CounterVec with the given labels.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
