// internal/engine/task_engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/feedpilot/internal/config"
	"github.com/xkilldash9x/feedpilot/internal/orchestrator"
)

const (
	defaultConcurrency = 3
	defaultTaskTimeout = 10 * time.Minute
)

// ErrNotStarted marks tasks that were never dispatched because the batch was
// cancelled first.
var ErrNotStarted = errors.New("task not started")

// Runner executes a single instruction. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.Output, error)
}

// Task is one entry of a batch.
type Task struct {
	ID          string `json:"id" yaml:"id"`
	Instruction string `json:"instruction" yaml:"instruction"`
	URL         string `json:"url,omitempty" yaml:"url,omitempty"`
}

// TaskResult pairs a task with the outcome of its run.
type TaskResult struct {
	Task   Task                 `json:"task"`
	Output *orchestrator.Output `json:"output,omitempty"`
	Err    error                `json:"-"`
	Error  string               `json:"error,omitempty"`
}

// TaskEngine runs batches of independent tasks on a bounded pool of workers.
type TaskEngine struct {
	cfg    config.Interface
	logger *zap.Logger
	runner Runner
}

// New creates a new TaskEngine.
func New(cfg config.Interface, logger *zap.Logger, runner Runner) (*TaskEngine, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	return &TaskEngine{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "task_engine")),
		runner: runner,
	}, nil
}

type job struct {
	index int
	task  Task
}

// Run executes every task and returns one result per task, in input order.
// A failing task never affects the others. Once ctx is cancelled no further
// tasks are dispatched; the ones left behind report ErrNotStarted.
func (e *TaskEngine) Run(ctx context.Context, tasks []Task) []TaskResult {
	results := make([]TaskResult, len(tasks))
	for i, t := range tasks {
		if t.ID == "" {
			t.ID = fmt.Sprintf("task-%d", i+1)
		}
		results[i] = TaskResult{Task: t, Err: ErrNotStarted}
	}
	if len(tasks) == 0 {
		return results
	}

	concurrency := e.cfg.Engine().Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if concurrency > len(tasks) {
		concurrency = len(tasks)
	}
	e.logger.Info("Starting batch", zap.Int("tasks", len(tasks)), zap.Int("concurrency", concurrency))

	jobs := make(chan job)
	var g errgroup.Group
	for i := 0; i < concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			return e.runWorker(ctx, workerID, jobs, results)
		})
	}

dispatch:
	for i := range results {
		select {
		case <-ctx.Done():
			e.logger.Warn("Batch cancelled, not dispatching remaining tasks", zap.Int("remaining", len(tasks)-i))
			break dispatch
		case jobs <- job{index: i, task: results[i].Task}:
		}
	}
	close(jobs)
	waitErr := g.Wait()

	notStarted := 0
	for i := range results {
		if results[i].Err != nil {
			results[i].Error = results[i].Err.Error()
		}
		if errors.Is(results[i].Err, ErrNotStarted) {
			notStarted++
		}
	}
	if waitErr != nil {
		e.logger.Warn("Batch interrupted", zap.Int("tasks", len(tasks)), zap.Int("not_started", notStarted), zap.Error(waitErr))
		return results
	}
	e.logger.Info("Batch finished", zap.Int("tasks", len(tasks)))
	return results
}

// runWorker drains the job channel. Each worker writes only the result slots
// of the jobs it received. It reports the batch context's error when the
// batch was cancelled while it was working.
func (e *TaskEngine) runWorker(ctx context.Context, workerID int, jobs <-chan job, results []TaskResult) error {
	logger := e.logger.With(zap.Int("worker_id", workerID))
	for j := range jobs {
		results[j.index] = e.process(ctx, j.task, logger)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("worker %d stopped: %w", workerID, err)
	}
	return nil
}

func (e *TaskEngine) process(ctx context.Context, task Task, logger *zap.Logger) TaskResult {
	logger = logger.With(zap.String("task_id", task.ID))
	logger.Info("Processing task", zap.String("instruction", task.Instruction))

	if err := ctx.Err(); err != nil {
		return TaskResult{Task: task, Err: fmt.Errorf("%w: %w", ErrNotStarted, err)}
	}

	taskTimeout := e.cfg.Engine().TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}
	taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	out, err := e.runner.Run(taskCtx, orchestrator.RunRequest{Instruction: task.Instruction, URL: task.URL})
	switch {
	case err == nil:
		logger.Info("Task completed", zap.Int("items", len(out.Items)))
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("Task timed out", zap.Duration("timeout", taskTimeout), zap.Error(err))
	case errors.Is(err, context.Canceled):
		logger.Warn("Task was cancelled", zap.Error(err))
	default:
		logger.Error("Task failed", zap.Error(err))
	}
	return TaskResult{Task: task, Output: out, Err: err}
}
