// File: internal/agent/executor.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/config"
)

const (
	defaultScrollAmount = 800
	defaultWaitDelay    = time.Second
	snapshotTimeout     = 3 * time.Second
)

// ExecutorConfig holds the step-level retry policy.
type ExecutorConfig struct {
	MaxStepRetries int
	StepTimeout    time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	StepsPerSecond float64
}

// ExecutorConfigFrom derives the executor policy from the agent configuration.
func ExecutorConfigFrom(cfg config.AgentConfig) ExecutorConfig {
	return ExecutorConfig{
		MaxStepRetries: cfg.MaxStepRetries,
		StepTimeout:    cfg.StepTimeout,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
		StepsPerSecond: cfg.StepsPerSecond,
	}
}

// Executor drives a browser session through the steps of a plan.
type Executor struct {
	logger   *zap.Logger
	cfg      ExecutorConfig
	limiter  *rate.Limiter
	handlers map[StepKind]stepHandler

	// sleep waits between attempts of the same step. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(logger *zap.Logger, cfg ExecutorConfig) *Executor {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 5 * time.Second
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 500 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = cfg.BackoffInitial * 8
	}
	e := &Executor{
		logger: logger.Named("executor"),
		cfg:    cfg,
		sleep:  sleepFor,
		now:    time.Now,
	}
	if cfg.StepsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.StepsPerSecond), 1)
	}
	e.registerHandlers()
	return e
}

func (e *Executor) registerHandlers() {
	e.handlers = map[StepKind]stepHandler{
		StepNavigate: handleNavigate,
		StepClick:    handleClick,
		StepInput:    handleInput,
		StepScroll:   handleScroll,
		StepWait:     e.handleWait,
		StepExtract:  handleExtract,
	}
}

// Execute runs the plan in order. It stops at the first step that still fails
// after its retries, and halts with OutcomeFailed when a login wall appears.
// Cancellation of ctx is honored only between steps.
func (e *Executor) Execute(ctx context.Context, sess Session, plan Plan, rec ExecutionRecorder) ExecutionResult {
	res := ExecutionResult{Outcome: OutcomeCompleted, FailureStep: NoFailureStep}

	for i, step := range plan.Steps {
		if err := e.pace(ctx); err != nil {
			stepErr := &StepError{Code: ErrCodeCancelled, Index: i, Kind: step.Kind, Err: err}
			e.logger.Info("Run cancelled between steps", zap.Int("next_step", i))
			return e.halt(res, OutcomePartial, i, stepErr, rec)
		}

		raw, err := e.runStep(ctx, sess.Driver, i, step, rec)

		if signal, hit := e.loginWall(ctx, sess); hit {
			authErr := &AuthRequiredError{SiteID: sess.SiteID, Signal: signal}
			e.logger.Warn("Login wall detected, halting plan",
				zap.Int("step", i), zap.String("site", sess.SiteID), zap.String("signal", signal))
			return e.halt(res, OutcomeFailed, i, authErr, rec)
		}

		if err != nil {
			return e.halt(res, OutcomePartial, i, err, rec)
		}

		rec.ClearError()
		if step.Kind == StepExtract {
			res.ExtractedRaw = raw
			rec.AppendExtracted(raw...)
		}
	}
	return res
}

func (e *Executor) halt(res ExecutionResult, outcome Outcome, index int, err error, rec ExecutionRecorder) ExecutionResult {
	res.Outcome = outcome
	res.FailureStep = index
	res.Failure = err
	rec.SetError(err)
	return res
}

// pace blocks until the next step may start.
func (e *Executor) pace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

// runStep performs a step with the retry policy and logs every attempt.
func (e *Executor) runStep(ctx context.Context, driver schemas.BrowserDriver, index int, step Step, rec ExecutionRecorder) ([]schemas.RawFragment, error) {
	handler, ok := e.handlers[step.Kind]
	if !ok {
		err := &StepError{Code: ErrCodeExecutionFailure, Index: index, Kind: step.Kind, Err: fmt.Errorf("no handler for step kind '%s'", step.Kind)}
		rec.AppendLog(e.entry(index, step, 1, LogFailed, err.Code, err.Error(), 0))
		return nil, err
	}

	bo := e.newBackoff()
	for attempt := 1; ; attempt++ {
		start := e.now()
		raw, code, err := e.attempt(ctx, driver, step, handler)
		elapsed := e.now().Sub(start)

		if err == nil {
			status := LogSuccess
			if step.Kind == StepExtract && len(raw) == 0 {
				status = LogEmpty
			}
			rec.AppendLog(e.entry(index, step, attempt, status, "", "", elapsed))
			return raw, nil
		}

		// Extraction is best effort: a miss is an empty result.
		if step.Kind == StepExtract && code == ErrCodeSelectorMiss {
			rec.AppendLog(e.entry(index, step, attempt, LogEmpty, code, err.Error(), elapsed))
			return []schemas.RawFragment{}, nil
		}

		if !code.Retryable() || attempt > e.cfg.MaxStepRetries {
			if step.Kind == StepExtract && code.Retryable() {
				rec.AppendLog(e.entry(index, step, attempt, LogEmpty, code, err.Error(), elapsed))
				return []schemas.RawFragment{}, nil
			}
			rec.AppendLog(e.entry(index, step, attempt, LogFailed, code, err.Error(), elapsed))
			e.logger.Warn("Step failed",
				zap.Int("step", index), zap.String("kind", string(step.Kind)),
				zap.String("target", step.Target), zap.String("code", string(code)),
				zap.Int("attempts", attempt), zap.Error(err))
			return nil, &StepError{Code: code, Index: index, Kind: step.Kind, Err: err}
		}

		rec.AppendLog(e.entry(index, step, attempt, LogRetry, code, err.Error(), elapsed))
		delay := bo.NextBackOff()
		e.logger.Debug("Retrying step",
			zap.Int("step", index), zap.String("kind", string(step.Kind)),
			zap.Int("attempt", attempt), zap.Duration("backoff", delay))
		// The backoff belongs to the step in flight, so it ignores cancellation.
		_ = e.sleep(context.WithoutCancel(ctx), delay)
	}
}

// attempt runs a single try of a step under its own timeout. The step context
// is detached from run cancellation so a step is never interrupted midway.
func (e *Executor) attempt(ctx context.Context, driver schemas.BrowserDriver, step Step, handler stepHandler) ([]schemas.RawFragment, ErrorCode, error) {
	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.stepTimeout(step))
	defer cancel()

	raw, err := handler(stepCtx, driver, step)
	if err == nil {
		return raw, "", nil
	}
	if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return nil, ErrCodeStepTimeout, err
	}
	return nil, ClassifyDriverError(err), err
}

func (e *Executor) stepTimeout(step Step) time.Duration {
	if ms, ok := paramInt(step.Params, "timeout_ms"); ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if step.Kind == StepWait && step.Target == "" {
		return waitDelay(step) + e.cfg.StepTimeout
	}
	return e.cfg.StepTimeout
}

func (e *Executor) newBackoff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     e.cfg.BackoffInitial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         e.cfg.BackoffMax,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

func (e *Executor) loginWall(ctx context.Context, sess Session) (string, bool) {
	if sess.Wall == nil {
		return "", false
	}
	snapCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotTimeout)
	defer cancel()
	page, err := sess.Driver.Snapshot(snapCtx)
	if err != nil {
		e.logger.Debug("Snapshot for login detection failed", zap.Error(err))
		return "", false
	}
	return sess.Wall.Match(snapCtx, page, sess.Driver)
}

func (e *Executor) entry(index int, step Step, attempt int, status LogStatus, code ErrorCode, detail string, d time.Duration) LogEntry {
	return LogEntry{
		StepIndex: index,
		Action:    step,
		Attempt:   attempt,
		Status:    status,
		ErrorCode: code,
		Detail:    detail,
		Duration:  d,
		Timestamp: e.now(),
	}
}

// -- Step Handlers --

func handleNavigate(ctx context.Context, d schemas.BrowserDriver, step Step) ([]schemas.RawFragment, error) {
	return nil, d.Navigate(ctx, step.Target)
}

func handleClick(ctx context.Context, d schemas.BrowserDriver, step Step) ([]schemas.RawFragment, error) {
	return nil, d.Click(ctx, step.Target)
}

func handleInput(ctx context.Context, d schemas.BrowserDriver, step Step) ([]schemas.RawFragment, error) {
	text, _ := paramString(step.Params, "text")
	submit, _ := step.Params["submit"].(bool)
	return nil, d.Input(ctx, step.Target, text, submit)
}

func handleScroll(ctx context.Context, d schemas.BrowserDriver, step Step) ([]schemas.RawFragment, error) {
	return nil, d.Scroll(ctx, scrollAmount(step))
}

func (e *Executor) handleWait(ctx context.Context, d schemas.BrowserDriver, step Step) ([]schemas.RawFragment, error) {
	if step.Target != "" {
		return nil, d.Wait(ctx, schemas.WaitCondition{Selector: step.Target}, e.stepTimeout(step))
	}
	return nil, d.Wait(ctx, schemas.WaitCondition{Delay: waitDelay(step)}, e.stepTimeout(step))
}

func handleExtract(ctx context.Context, d schemas.BrowserDriver, step Step) ([]schemas.RawFragment, error) {
	raw, err := d.Extract(ctx, step.Target)
	if err != nil {
		return nil, err
	}
	if limit, ok := paramInt(step.Params, "limit"); ok && limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}
	if raw == nil {
		raw = []schemas.RawFragment{}
	}
	return raw, nil
}

func scrollAmount(step Step) int {
	amount := defaultScrollAmount
	if n, ok := paramInt(step.Params, "amount"); ok && n != 0 {
		amount = n
	}
	if dir, _ := paramString(step.Params, "direction"); dir == "up" && amount > 0 {
		amount = -amount
	}
	return amount
}

func waitDelay(step Step) time.Duration {
	if ms, ok := paramInt(step.Params, "ms"); ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultWaitDelay
}

// paramInt reads a numeric parameter. JSON decoding yields float64, literal
// plans built in code may use int.
func paramInt(params map[string]interface{}, key string) (int, bool) {
	switch v := params[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}

func paramString(params map[string]interface{}, key string) (string, bool) {
	s, ok := params[key].(string)
	return s, ok
}

func sleepFor(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
