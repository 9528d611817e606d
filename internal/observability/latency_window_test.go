package observability

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.observe(StageProvider, 500)
	w.observe(StageProvider, 700)
	w.observe(StageProvider, 900)
	w.countSource("fallback")
	w.countSource("fallback")
	w.countSource("provider")

	snap := w.snapshot()
	require.Equal(t, 8, snap.WindowSize)
	require.Len(t, snap.Stages, 1)

	s := snap.Stages[0]
	require.Equal(t, StageProvider, s.Stage)
	require.Equal(t, 3, s.Samples)
	require.Equal(t, 900.0, s.LastMS)
	require.Equal(t, 700.0, s.P50MS)
	require.Greater(t, s.P95MS, 700.0)
	require.LessOrEqual(t, s.P95MS, 900.0)
	require.Equal(t, 4000.0, s.TargetP95MS)

	require.Equal(t, []ReplySourceCount{{Source: "fallback", Count: 2}, {Source: "provider", Count: 1}}, snap.ReplySources)
}

func TestLatencyWindowWrapsAtCapacity(t *testing.T) {
	w := newLatencyWindow(3)
	for _, ms := range []float64{1000, 1000, 1000, 10, 20, 30} {
		w.observe(StageTurnTotal, ms)
	}
	s := w.snapshot().Stages[0]
	require.Equal(t, 3, s.Samples)
	require.Equal(t, 20.0, s.AvgMS)
	require.Equal(t, 30.0, s.LastMS)
}

func TestMetricsLatencyHelpersAreNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage(StageTurnTotal, time.Second)
	m.ObserveTurn("fallback")
	snap := m.SnapshotLatency()
	require.Empty(t, snap.Stages)

	m = NewMetrics(fmt.Sprintf("test_observability_%d", time.Now().UnixNano()))
	m.ObserveStage(StageMemoryGather, 12*time.Millisecond)
	m.ObserveTurn("provider")
	snap = m.SnapshotLatency()
	require.Len(t, snap.Stages, 1)
	require.Equal(t, 12.0, snap.Stages[0].LastMS)
	require.Equal(t, []ReplySourceCount{{Source: "provider", Count: 1}}, snap.ReplySources)
}
