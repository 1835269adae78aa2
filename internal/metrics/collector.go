// Package metrics exposes run statistics in the prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/internal/agent"
	"github.com/xkilldash9x/feedpilot/internal/orchestrator"
)

const defaultNamespace = "feedpilot"

// Collector records orchestrator activity on its own registry, so several
// collectors can coexist in one process.
type Collector struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stepsTotal    *prometheus.CounterVec
	replansTotal  *prometheus.CounterVec
	fallbackTotal prometheus.Counter
}

var _ orchestrator.Recorder = (*Collector)(nil)

// NewCollector creates a collector. An empty namespace defaults to "feedpilot".
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),

		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by final state.",
		}, []string{"state"}),

		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a run from start to final state.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"state"}),

		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_attempts_total",
			Help:      "Step attempts by step kind and outcome.",
		}, []string{"kind", "status"}),

		replansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replans_total",
			Help:      "Replans by the error code that caused them.",
		}, []string{"reason"}),

		fallbackTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_fallbacks_total",
			Help:      "Runs whose items came from heuristic extraction.",
		}),
	}
}

func (c *Collector) RunFinished(state orchestrator.State, d time.Duration) {
	c.runsTotal.WithLabelValues(string(state)).Inc()
	c.runDuration.WithLabelValues(string(state)).Observe(d.Seconds())
}

func (c *Collector) StepAttempted(kind agent.StepKind, status agent.LogStatus) {
	c.stepsTotal.WithLabelValues(string(kind), string(status)).Inc()
}

func (c *Collector) Replanned(reason agent.ErrorCode) {
	c.replansTotal.WithLabelValues(string(reason)).Inc()
}

func (c *Collector) ExtractionFallback() {
	c.fallbackTotal.Inc()
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("Serving metrics", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
