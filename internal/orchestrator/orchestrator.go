// File: internal/orchestrator/orchestrator.go
// Description: Runs one instruction through the plan, execute and extract
// states, owning every retry counter of the run.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/agent"
	"github.com/xkilldash9x/feedpilot/internal/config"
	"github.com/xkilldash9x/feedpilot/internal/site"
)

const (
	snapshotTimeout = 5 * time.Second
	persistTimeout  = 10 * time.Second
)

// Config carries the run-level retry policy.
type Config struct {
	MaxPlanRetries    int
	MaxTotalRetries   int
	MaxExtractRetries int
	ReplanLogEntries  int
}

// ConfigFrom derives the run policy from the agent configuration.
func ConfigFrom(cfg config.AgentConfig) Config {
	return Config{
		MaxPlanRetries:    cfg.MaxPlanRetries,
		MaxTotalRetries:   cfg.MaxTotalRetries,
		MaxExtractRetries: cfg.MaxExtractRetries,
		ReplanLogEntries:  cfg.ReplanLogEntries,
	}
}

// Deps are the collaborators of an Orchestrator. Recorder and Login are optional.
type Deps struct {
	Planner     PlanGenerator
	Executor    PlanExecutor
	Extractor   Normalizer
	Sites       ProfileResolver
	Sessions    SessionFactory
	Credentials Credentials
	Recorder    Recorder
	// Login enables recovery from login walls. Nil fails the run instead.
	Login LoginRecovery
}

// Orchestrator runs instructions. It is safe for concurrent use; each Run owns
// its own browser session and run context.
type Orchestrator struct {
	cfg    Config
	logger *zap.Logger
	deps   Deps
	now    func() time.Time
}

// New creates a new Orchestrator.
func New(cfg Config, logger *zap.Logger, deps Deps) (*Orchestrator, error) {
	if logger == nil ||
		deps.Planner == nil ||
		deps.Executor == nil ||
		deps.Extractor == nil ||
		deps.Sites == nil ||
		deps.Sessions == nil ||
		deps.Credentials == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if cfg.MaxTotalRetries <= 0 {
		cfg.MaxTotalRetries = 3
	}
	if cfg.MaxPlanRetries < 0 {
		cfg.MaxPlanRetries = 0
	}
	if cfg.MaxExtractRetries < 0 {
		cfg.MaxExtractRetries = 0
	}
	if cfg.ReplanLogEntries <= 0 {
		cfg.ReplanLogEntries = 3
	}
	return &Orchestrator{cfg: cfg, logger: logger.Named("orchestrator"), deps: deps, now: time.Now}, nil
}

// run holds the mutable state of one Run call.
type run struct {
	out     *Output
	rc      *agent.RunContext
	profile site.Profile
	driver  schemas.BrowserDriver
	logger  *zap.Logger

	state               State
	plan                agent.Plan
	raw                 []schemas.RawFragment
	feedback            *agent.Feedback
	failures            int
	consecutivePlanning int
	// loggedOut suppresses cookie persistence, the jar holds a dead session.
	loggedOut bool
	err       error
}

// Run executes one instruction. It always returns an Output; the error is
// non-nil exactly when the final state is StateFailed.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*Output, error) {
	start := o.now()
	r := &run{
		out: &Output{
			RunID:       uuid.New().String(),
			Instruction: req.Instruction,
			Items:       []agent.ExtractedItem{},
			Log:         []agent.LogEntry{},
		},
		state: StatePlanning,
	}
	r.logger = o.logger.With(zap.String("run_id", r.out.RunID))
	defer func() { o.finish(r, start) }()

	if err := o.prepare(ctx, r, req); err != nil {
		r.fail(err)
		return r.out, err
	}
	defer o.release(r)

	for !r.state.Terminal() {
		if err := ctx.Err(); err != nil {
			r.logger.Info("Run cancelled", zap.String("state", string(r.state)))
			r.fail(err)
			break
		}
		switch r.state {
		case StatePlanning:
			o.planStep(ctx, r)
		case StateExecuting:
			o.executeStep(ctx, r)
		case StateExtracting:
			o.extractStep(ctx, r)
		}
	}
	return r.out, r.err
}

// prepare resolves the target, opens the browser and restores saved credentials.
func (o *Orchestrator) prepare(ctx context.Context, r *run, req RunRequest) error {
	target := req.URL
	if target == "" {
		inferred, err := o.deps.Sites.InferURL(req.Instruction)
		if err != nil {
			return fmt.Errorf("could not infer a target url: %w", err)
		}
		target = inferred
	}
	r.out.TargetURL = target

	profile, err := o.deps.Sites.Resolve(target)
	if err != nil {
		return fmt.Errorf("unsupported target %q: %w", target, err)
	}
	r.profile = profile
	r.out.SiteID = profile.ID()
	r.logger = r.logger.With(zap.String("site", profile.ID()))
	r.rc = agent.NewRunContext(target, req.Instruction)

	driver, err := o.deps.Sessions.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to open browser session: %w", err)
	}
	r.driver = driver

	bundle, err := o.deps.Credentials.Load(ctx, profile.ID())
	switch {
	case err != nil:
		r.logger.Warn("Could not load stored credentials, continuing logged out", zap.Error(err))
	case bundle != nil:
		if err := driver.SetCookies(ctx, bundle); err != nil {
			r.logger.Warn("Could not restore stored credentials", zap.Error(err))
		} else {
			r.logger.Info("Restored stored credentials", zap.Int("cookies", len(bundle.Cookies)))
		}
	}
	r.logger.Info("Run started", zap.String("target", target), zap.String("instruction", req.Instruction))
	return nil
}

// release persists the cookie jar under the site lock and closes the browser,
// on every exit path including cancellation.
func (o *Orchestrator) release(r *run) {
	if r.driver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if !r.loggedOut {
		bundle, err := r.driver.GetCookies(ctx)
		if err != nil {
			r.logger.Warn("Could not capture cookies", zap.Error(err))
		} else if err := o.deps.Credentials.Merge(ctx, r.profile.ID(), bundle); err != nil {
			r.logger.Error("Failed to persist cookies", zap.Error(err))
		}
	}
	if err := r.driver.Close(); err != nil {
		r.logger.Warn("Error closing browser session", zap.Error(err))
	}
}

func (o *Orchestrator) finish(r *run, start time.Time) {
	elapsed := o.now().Sub(start)
	if r.rc != nil {
		r.out.Log = r.rc.Log()
		for _, entry := range r.out.Log {
			o.deps.Recorder.StepAttempted(entry.Action.Kind, entry.Status)
		}
		// A run can fail after its extract step completed but before the
		// Extracting state ran, e.g. when cancelled mid-extract.
		if len(r.out.Raw) == 0 {
			r.out.Raw = r.rc.Extracted()
		}
	}
	if r.state == StateFailed && len(r.out.Items) == 0 && len(r.out.Raw) > 0 {
		r.out.Items = o.deps.Extractor.Fallback(r.out.Raw)
	}
	r.out.FinalState = r.state
	r.out.Stats.TotalSteps = len(r.out.Log)
	r.out.Stats.Failures = r.failures
	r.out.Stats.DurationMS = elapsed.Milliseconds()
	if r.err != nil {
		r.out.Error = r.err.Error()
	}
	o.deps.Recorder.RunFinished(r.state, elapsed)

	fields := []zap.Field{
		zap.String("final_state", string(r.state)),
		zap.Int("items", len(r.out.Items)),
		zap.Int("failures", r.failures),
		zap.Duration("duration", elapsed),
	}
	if r.err != nil {
		r.logger.Warn("Run finished", append(fields, zap.Error(r.err))...)
		return
	}
	r.logger.Info("Run finished", fields...)
}

// -- States --

func (o *Orchestrator) planStep(ctx context.Context, r *run) {
	r.rc.SetPageState(o.snapshot(ctx, r))

	req := agent.PlanRequest{
		Instruction:   r.rc.Instruction(),
		TargetURL:     r.rc.TargetURL(),
		Page:          r.rc.PageState(),
		SiteName:      r.profile.Name(),
		SelectorHints: r.profile.SelectorHints(),
		Feedback:      r.feedback,
	}
	r.out.Stats.PlanAttempts++
	plan, err := o.deps.Planner.Generate(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.fail(ctxErr)
			return
		}
		r.consecutivePlanning++
		if r.charge(err, o.cfg.MaxTotalRetries) {
			return
		}
		if r.consecutivePlanning > o.cfg.MaxPlanRetries {
			r.logger.Warn("Planning keeps failing, giving up", zap.Int("attempts", r.consecutivePlanning))
			r.fail(err)
			return
		}
		var planErr *agent.PlanningError
		fb := &agent.Feedback{Failure: err.Error(), FailureIndex: agent.NoFailureStep}
		if errors.As(err, &planErr) {
			fb.Raw = planErr.Raw
		}
		r.feedback = fb
		o.deps.Recorder.Replanned(agent.ErrCodePlanning)
		r.logger.Info("Replanning after planning failure", zap.Int("failures", r.failures), zap.Error(err))
		return
	}

	r.consecutivePlanning = 0
	r.plan = plan
	r.state = StateExecuting
}

func (o *Orchestrator) executeStep(ctx context.Context, r *run) {
	sess := agent.Session{
		Driver: r.driver,
		SiteID: r.profile.ID(),
		Wall:   r.profile.LoginWall(),
	}
	res := o.deps.Executor.Execute(ctx, sess, r.plan, r.rc)
	r.out.Stats.Executions++

	switch res.Outcome {
	case agent.OutcomeCompleted:
		r.raw = res.ExtractedRaw
		r.feedback = nil
		r.state = StateExtracting

	case agent.OutcomeFailed:
		o.handleAuthFailure(ctx, r, res.Failure)

	default:
		if agent.CodeOf(res.Failure) == agent.ErrCodeCancelled || ctx.Err() != nil {
			err := ctx.Err()
			if err == nil {
				err = res.Failure
			}
			r.fail(err)
			return
		}
		if r.charge(res.Failure, o.cfg.MaxTotalRetries) {
			return
		}
		r.feedback = o.executionFeedback(r, res)
		o.deps.Recorder.Replanned(agent.CodeOf(res.Failure))
		r.logger.Info("Replanning after partial execution",
			zap.Int("failed_step", res.FailureStep),
			zap.Int("failures", r.failures),
			zap.Error(res.Failure))
		r.state = StatePlanning
	}
}

func (o *Orchestrator) executionFeedback(r *run, res agent.ExecutionResult) *agent.Feedback {
	fb := &agent.Feedback{
		Failure:      res.Failure.Error(),
		FailureIndex: res.FailureStep,
		RecentLog:    r.rc.RecentLog(o.cfg.ReplanLogEntries),
	}
	if res.FailureStep >= 0 && res.FailureStep < len(r.plan.Steps) {
		step := r.plan.Steps[res.FailureStep]
		fb.FailedStep = &step
	}
	return fb
}

func (o *Orchestrator) handleAuthFailure(ctx context.Context, r *run, failure error) {
	r.loggedOut = true
	if r.charge(failure, o.cfg.MaxTotalRetries) {
		o.invalidate(r)
		return
	}
	if o.deps.Login == nil {
		o.invalidate(r)
		r.fail(failure)
		return
	}

	o.invalidate(r)
	r.logger.Info("Login wall detected, starting login recovery")
	bundle, err := o.deps.Login.Recover(ctx, r.driver, r.profile)
	if err != nil {
		r.fail(fmt.Errorf("login recovery failed: %w", errors.Join(failure, err)))
		return
	}
	if err := o.deps.Credentials.Merge(ctx, r.profile.ID(), bundle); err != nil {
		r.logger.Error("Failed to persist recovered credentials", zap.Error(err))
	}
	r.loggedOut = false
	r.feedback = &agent.Feedback{
		Failure:      "the site required a login; the session is now logged in, plan again from the current page",
		FailureIndex: agent.NoFailureStep,
	}
	o.deps.Recorder.Replanned(agent.ErrCodeAuthRequired)
	r.state = StatePlanning
}

func (o *Orchestrator) invalidate(r *run) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := o.deps.Credentials.Invalidate(ctx, r.profile.ID()); err != nil {
		r.logger.Warn("Could not invalidate stored credentials", zap.Error(err))
	}
}

func (o *Orchestrator) extractStep(ctx context.Context, r *run) {
	r.out.Raw = r.raw
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxExtractRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			r.fail(err)
			return
		}
		items, err := o.deps.Extractor.Normalize(ctx, r.raw)
		if err == nil {
			r.out.Items = items
			r.state = StateDone
			return
		}
		lastErr = err
		r.logger.Warn("Normalization failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}

	if err := ctx.Err(); err != nil {
		r.fail(err)
		return
	}
	// Raw data is never thrown away; heuristic items stand in for the model's.
	r.out.Items = o.deps.Extractor.Fallback(r.raw)
	r.out.Error = lastErr.Error()
	o.deps.Recorder.ExtractionFallback()
	r.logger.Warn("Using heuristic extraction", zap.Int("items", len(r.out.Items)))
	r.state = StateDone
}

// snapshot refreshes the page state for planning. Failures leave the previous
// snapshot in place.
func (o *Orchestrator) snapshot(ctx context.Context, r *run) schemas.PageState {
	snapCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	ps, err := r.driver.Snapshot(snapCtx)
	if err != nil {
		r.logger.Debug("Page snapshot failed", zap.Error(err))
		return r.rc.PageState()
	}
	return ps
}

// charge counts one failed attempt against the run budget and fails the run
// when the budget is spent. It reports whether the run failed.
func (r *run) charge(err error, budget int) bool {
	r.failures++
	if r.failures >= budget {
		r.logger.Warn("Retry budget exhausted", zap.Int("failures", r.failures), zap.Error(err))
		r.fail(err)
		return true
	}
	return false
}

func (r *run) fail(err error) {
	r.state = StateFailed
	r.err = err
}
