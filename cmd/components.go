package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/agent"
	"github.com/xkilldash9x/feedpilot/internal/browser"
	"github.com/xkilldash9x/feedpilot/internal/config"
	"github.com/xkilldash9x/feedpilot/internal/engine"
	"github.com/xkilldash9x/feedpilot/internal/llmclient"
	"github.com/xkilldash9x/feedpilot/internal/metrics"
	"github.com/xkilldash9x/feedpilot/internal/orchestrator"
	"github.com/xkilldash9x/feedpilot/internal/site"
	"github.com/xkilldash9x/feedpilot/internal/store"
)

// components holds the initialized services of one command invocation.
type components struct {
	Sites   *site.Registry
	Store   store.Store
	Guard   *store.Guard
	Browser *browser.Manager
	LLM     *llmclient.LLMRouter
	Metrics *metrics.Collector
	// Runner executes single instructions; the orchestrator in production.
	Runner engine.Runner

	stopMetrics context.CancelFunc
	metricsDone chan error
}

type componentOptions struct {
	// agent builds the LLM clients and the orchestrator. Login does not need them.
	agent bool
}

// buildComponents is replaced in tests.
var buildComponents = initializeComponents

// headfulSessions opens visible browser windows for manual login.
type headfulSessions struct{ m *browser.Manager }

func (h headfulSessions) NewSession(ctx context.Context) (schemas.BrowserDriver, error) {
	return h.m.NewHeadfulSession(ctx)
}

// initializeComponents handles dependency injection.
func initializeComponents(ctx context.Context, cfg config.Interface, logger *zap.Logger, opts componentOptions) (*components, error) {
	c := &components{}

	// 1. Site profiles
	sites, err := loadRegistry(cfg)
	if err != nil {
		return c, err
	}
	c.Sites = sites

	// 2. Credential store
	st, err := store.Open(ctx, cfg.Store(), logger)
	if err != nil {
		return c, fmt.Errorf("failed to open credential store: %w", err)
	}
	c.Store = st
	c.Guard = store.NewGuard(st, logger)

	// 3. Browser manager
	c.Browser = browser.NewManager(cfg.Browser(), logger)

	if !opts.agent {
		return c, nil
	}

	// 4. Metrics
	var recorder orchestrator.Recorder
	if m := cfg.Metrics(); m.Enabled {
		c.Metrics = metrics.NewCollector(m.Namespace, logger)
		recorder = c.Metrics
		metricsCtx, cancel := context.WithCancel(context.Background())
		c.stopMetrics = cancel
		c.metricsDone = make(chan error, 1)
		go func() { c.metricsDone <- c.Metrics.Serve(metricsCtx, m.Addr) }()
	}

	// 5. LLM clients
	router, err := llmclient.NewRouterFromConfig(ctx, cfg.LLM(), logger)
	if err != nil {
		return c, fmt.Errorf("failed to initialize LLM clients: %w", err)
	}
	c.LLM = router

	// 6. Agent pipeline and orchestrator
	agentCfg := cfg.Agent()
	deps := orchestrator.Deps{
		Planner:     agent.NewPlanner(router, logger, agent.PlannerConfigFrom(agentCfg)),
		Executor:    agent.NewExecutor(logger, agent.ExecutorConfigFrom(agentCfg)),
		Extractor:   agent.NewExtractor(router, logger, agent.ExtractorConfigFrom(cfg.Extractor())),
		Sites:       c.Sites,
		Sessions:    c.Browser,
		Credentials: c.Guard,
		Recorder:    recorder,
	}
	if agentCfg.ManualLogin {
		deps.Login = orchestrator.NewManualLogin(agentCfg, logger)
	}
	orch, err := orchestrator.New(orchestrator.ConfigFrom(agentCfg), logger, deps)
	if err != nil {
		return c, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	c.Runner = orch
	return c, nil
}

// Shutdown gracefully closes all components.
func (c *components) Shutdown(logger *zap.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if c.Browser != nil {
		if err := c.Browser.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown", zap.Error(err))
		}
	}
	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error closing LLM clients", zap.Error(err))
		}
	}
	if c.Guard != nil {
		if err := c.Guard.Close(); err != nil {
			logger.Warn("Error closing credential store", zap.Error(err))
		}
	}
	if c.stopMetrics != nil {
		c.stopMetrics()
		if err := <-c.metricsDone; err != nil {
			logger.Warn("Metrics server stopped with error", zap.Error(err))
		}
	}
}
