package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/internal/agent"
	"github.com/xkilldash9x/feedpilot/internal/orchestrator"
)

// =============================================================================
// Collector
// =============================================================================

func TestCollector_RecordsRuns(t *testing.T) {
	c := NewCollector("", zap.NewNop())

	c.RunFinished(orchestrator.StateDone, 2*time.Second)
	c.RunFinished(orchestrator.StateDone, 3*time.Second)
	c.RunFinished(orchestrator.StateFailed, time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.runsTotal.WithLabelValues("done")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsTotal.WithLabelValues("failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.runDuration))
}

func TestCollector_RecordsSteps(t *testing.T) {
	c := NewCollector("test_steps", zap.NewNop())

	c.StepAttempted(agent.StepClick, agent.LogRetry)
	c.StepAttempted(agent.StepClick, agent.LogRetry)
	c.StepAttempted(agent.StepExtract, agent.LogEmpty)
	c.Replanned(agent.ErrCodeStepTimeout)
	c.ExtractionFallback()

	assert.Equal(t, float64(2), testutil.ToFloat64(c.stepsTotal.WithLabelValues("click", "retry")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.stepsTotal.WithLabelValues("extract", "empty")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.replansTotal.WithLabelValues(string(agent.ErrCodeStepTimeout))))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.fallbackTotal))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("", zap.NewNop())
	b := NewCollector("", zap.NewNop())

	a.ExtractionFallback()

	assert.Equal(t, float64(1), testutil.ToFloat64(a.fallbackTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.fallbackTotal))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("", zap.NewNop())
	c.RunFinished(orchestrator.StateDone, time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `feedpilot_runs_total{state="done"} 1`)
}

func TestCollector_Serve(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := NewCollector("", zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Serve(ctx, addr) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	var body string
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, strings.Contains(body, "go_goroutines"))

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
