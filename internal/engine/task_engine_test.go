// internal/engine/task_engine_test.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/feedpilot/internal/config"
	"github.com/xkilldash9x/feedpilot/internal/mocks"
	"github.com/xkilldash9x/feedpilot/internal/orchestrator"
)

// -- Test Doubles --

type runnerFunc func(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.Output, error)

func (f runnerFunc) Run(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.Output, error) {
	return f(ctx, req)
}

func engineWith(t *testing.T, cfg config.EngineConfig, runner Runner) *TaskEngine {
	t.Helper()
	mockCfg := new(mocks.MockConfig)
	mockCfg.On("Engine").Return(cfg)
	e, err := New(mockCfg, zaptest.NewLogger(t), runner)
	require.NoError(t, err)
	return e
}

func observedEngine(t *testing.T, cfg config.EngineConfig, runner Runner) (*TaskEngine, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	mockCfg := new(mocks.MockConfig)
	mockCfg.On("Engine").Return(cfg)
	e, err := New(mockCfg, zap.New(core), runner)
	require.NoError(t, err)
	return e, logs
}

func doneOutput(req orchestrator.RunRequest) *orchestrator.Output {
	return &orchestrator.Output{Instruction: req.Instruction, TargetURL: req.URL, FinalState: orchestrator.StateDone}
}

func tasksN(n int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{Instruction: fmt.Sprintf("instruction %d", i)}
	}
	return tasks
}

// -- Test Cases --

func TestNew_Validation(t *testing.T) {
	runner := runnerFunc(func(context.Context, orchestrator.RunRequest) (*orchestrator.Output, error) { return nil, nil })
	_, err := New(nil, zaptest.NewLogger(t), runner)
	assert.Error(t, err)
	_, err = New(new(mocks.MockConfig), nil, runner)
	assert.Error(t, err)
	_, err = New(new(mocks.MockConfig), zaptest.NewLogger(t), nil)
	assert.Error(t, err)
}

func TestRun_PreservesOrderAndBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	runner := runnerFunc(func(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.Output, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return doneOutput(req), nil
	})
	e := engineWith(t, config.EngineConfig{Concurrency: 2}, runner)

	results := e.Run(context.Background(), tasksN(7))

	require.Len(t, results, 7)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, fmt.Sprintf("instruction %d", i), r.Output.Instruction)
		assert.Equal(t, fmt.Sprintf("task-%d", i+1), r.Task.ID)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_FailureIsIsolated(t *testing.T) {
	boom := errors.New("browser crashed")
	runner := runnerFunc(func(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.Output, error) {
		if req.Instruction == "instruction 1" {
			return &orchestrator.Output{FinalState: orchestrator.StateFailed, Error: boom.Error()}, boom
		}
		return doneOutput(req), nil
	})
	e := engineWith(t, config.EngineConfig{Concurrency: 3}, runner)

	results := e.Run(context.Background(), tasksN(3))

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, "browser crashed", results[1].Error)
	assert.Equal(t, orchestrator.StateFailed, results[1].Output.FinalState)
	assert.NoError(t, results[2].Err)
}

func TestRun_PerTaskTimeout(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.Output, error) {
		if req.Instruction == "instruction 0" {
			<-ctx.Done()
			return &orchestrator.Output{FinalState: orchestrator.StateFailed}, ctx.Err()
		}
		return doneOutput(req), nil
	})
	e := engineWith(t, config.EngineConfig{Concurrency: 2, TaskTimeout: 20 * time.Millisecond}, runner)

	results := e.Run(context.Background(), tasksN(2))

	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
	assert.NoError(t, results[1].Err)
}

func TestRun_CancellationStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	runner := runnerFunc(func(runCtx context.Context, req orchestrator.RunRequest) (*orchestrator.Output, error) {
		calls.Add(1)
		cancel()
		<-runCtx.Done()
		return &orchestrator.Output{FinalState: orchestrator.StateFailed}, runCtx.Err()
	})
	e, logs := observedEngine(t, config.EngineConfig{Concurrency: 1}, runner)

	results := e.Run(ctx, tasksN(4))

	require.Len(t, results, 4)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	for _, r := range results[1:] {
		assert.ErrorIs(t, r.Err, ErrNotStarted)
		assert.Nil(t, r.Output)
	}
	// The dispatcher may hand over one more job before it sees the cancellation;
	// that job is refused by the worker without reaching the runner.
	assert.Equal(t, int32(1), calls.Load())

	interrupted := logs.FilterMessage("Batch interrupted").All()
	require.Len(t, interrupted, 1)
	assert.Equal(t, int64(3), interrupted[0].ContextMap()["not_started"])
	assert.Zero(t, logs.FilterMessage("Batch finished").Len())
}

func TestRun_CompletedBatchIsNotInterrupted(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.Output, error) {
		return doneOutput(req), nil
	})
	e, logs := observedEngine(t, config.EngineConfig{Concurrency: 2}, runner)

	results := e.Run(context.Background(), tasksN(3))

	for _, r := range results {
		assert.NoError(t, r.Err)
	}
	assert.Equal(t, 1, logs.FilterMessage("Batch finished").Len())
	assert.Zero(t, logs.FilterMessage("Batch interrupted").Len())
}

func TestRun_KeepsExplicitIDsAndURLs(t *testing.T) {
	var mu sync.Mutex
	var seen []orchestrator.RunRequest
	runner := runnerFunc(func(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.Output, error) {
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()
		return doneOutput(req), nil
	})
	e := engineWith(t, config.EngineConfig{}, runner)

	results := e.Run(context.Background(), []Task{{ID: "gh", Instruction: "trending", URL: "https://github.com/trending"}})

	assert.Equal(t, "gh", results[0].Task.ID)
	require.Len(t, seen, 1)
	assert.Equal(t, "https://github.com/trending", seen[0].URL)
}

func TestRun_Empty(t *testing.T) {
	e := engineWith(t, config.EngineConfig{}, runnerFunc(func(context.Context, orchestrator.RunRequest) (*orchestrator.Output, error) {
		t.Fatal("runner must not be called")
		return nil, nil
	}))
	assert.Empty(t, e.Run(context.Background(), nil))
}
