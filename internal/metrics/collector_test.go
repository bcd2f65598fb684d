package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/cBournhonesque/naia-go/internal/metrics"
)

const testPeer = "10.0.0.1:14191"

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	if c.Connections == nil {
		t.Error("Connections is nil")
	}
	if c.ObjectsReplicated == nil {
		t.Error("ObjectsReplicated is nil")
	}
	if c.EntitiesReplicated == nil {
		t.Error("EntitiesReplicated is nil")
	}
	if c.ActionsSent == nil {
		t.Error("ActionsSent is nil")
	}
	if c.PacketsAcked == nil {
		t.Error("PacketsAcked is nil")
	}
	if c.PacketsDropped == nil {
		t.Error("PacketsDropped is nil")
	}
	if c.CommandsExecuted == nil {
		t.Error("CommandsExecuted is nil")
	}
	if c.RTT == nil {
		t.Error("RTT is nil")
	}
	if c.Jitter == nil {
		t.Error("Jitter is nil")
	}

	// Verify all metrics are registered by gathering them.
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestRegisterUnregisterConnection(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.RegisterConnection()
	c.RegisterConnection()
	if val := simpleGaugeValue(t, c.Connections); val != 2 {
		t.Errorf("Connections = %v, want 2", val)
	}

	c.UnregisterConnection()
	if val := simpleGaugeValue(t, c.Connections); val != 1 {
		t.Errorf("Connections = %v, want 1", val)
	}
}

func TestReplicatedCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.SetObjectsReplicated(5)
	c.SetEntitiesReplicated(2)

	if val := simpleGaugeValue(t, c.ObjectsReplicated); val != 5 {
		t.Errorf("ObjectsReplicated = %v, want 5", val)
	}
	if val := simpleGaugeValue(t, c.EntitiesReplicated); val != 2 {
		t.Errorf("EntitiesReplicated = %v, want 2", val)
	}

	c.SetObjectsReplicated(3)
	if val := simpleGaugeValue(t, c.ObjectsReplicated); val != 3 {
		t.Errorf("ObjectsReplicated after overwrite = %v, want 3", val)
	}
}

func TestActionsSentByType(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncActionsSent(testPeer, "CreateObject")
	c.IncActionsSent(testPeer, "CreateObject")
	c.IncActionsSent(testPeer, "UpdateReplicate")

	if val := counterValue(t, c.ActionsSent, testPeer, "CreateObject"); val != 2 {
		t.Errorf("ActionsSent[CreateObject] = %v, want 2", val)
	}
	if val := counterValue(t, c.ActionsSent, testPeer, "UpdateReplicate"); val != 1 {
		t.Errorf("ActionsSent[UpdateReplicate] = %v, want 1", val)
	}
}

func TestPacketAckDropCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncPacketsAcked(testPeer)
	c.IncPacketsAcked(testPeer)
	c.IncPacketsAcked(testPeer)
	c.IncPacketsDropped(testPeer)

	if val := counterValue(t, c.PacketsAcked, testPeer); val != 3 {
		t.Errorf("PacketsAcked = %v, want 3", val)
	}
	if val := counterValue(t, c.PacketsDropped, testPeer); val != 1 {
		t.Errorf("PacketsDropped = %v, want 1", val)
	}
}

func TestCommandsExecuted(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncCommandsExecuted(testPeer)
	c.IncCommandsExecuted(testPeer)

	if val := counterValue(t, c.CommandsExecuted, testPeer); val != 2 {
		t.Errorf("CommandsExecuted = %v, want 2", val)
	}
}

func TestRTTAndJitterHistograms(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.ObserveRTT(testPeer, 0.05)
	c.ObserveJitter(testPeer, 0.002)

	rtt, err := c.RTT.GetMetricWithLabelValues(testPeer)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	m := &dto.Metric{}
	if err := rtt.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.GetHistogram().GetSampleCount() != 1 {
		t.Errorf("RTT sample count = %d, want 1", m.GetHistogram().GetSampleCount())
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func simpleGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

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
