package safego

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IBM/taxinomitis-sub001/internal/telemetry"
)

func waitFor(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not complete within timeout")
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})
	Go("test-runs", func() { close(done) })
	waitFor(t, done)
}

func TestGo_RecoversPanicAndCountsIt(t *testing.T) {
	counter := telemetry.BackgroundPanicsTotal.WithLabelValues("test-panics")
	before := counterValue(t, counter)

	done := make(chan struct{})
	Go("test-panics", func() {
		defer close(done)
		panic("intentional panic in test")
	})
	waitFor(t, done)

	// The deferred close runs before the recover handler increments.
	assert.Eventually(t, func() bool {
		return counterValue(t, counter) == before+1
	}, 2*time.Second, 10*time.Millisecond)
}
