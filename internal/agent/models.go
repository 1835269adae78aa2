// File: internal/agent/models.go
package agent

import (
	"sync"
	"time"

	"github.com/xkilldash9x/feedpilot/api/schemas"
)

// StepKind is the primitive browser operation a plan step performs.
type StepKind string

const (
	StepNavigate StepKind = "navigate" // Target is a URL.
	StepClick    StepKind = "click"    // Target is a selector.
	StepInput    StepKind = "input"    // Target is a selector, params.text is typed.
	StepScroll   StepKind = "scroll"   // params.amount pixels, or params.direction.
	StepWait     StepKind = "wait"     // Target selector to appear, or params.ms delay.
	StepExtract  StepKind = "extract"  // Target is the item selector. Always terminal.
)

var knownKinds = map[StepKind]struct{}{
	StepNavigate: {},
	StepClick:    {},
	StepInput:    {},
	StepScroll:   {},
	StepWait:     {},
	StepExtract:  {},
}

// Valid reports whether k is one of the supported kinds.
func (k StepKind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}

// Step is one operation of an action plan.
type Step struct {
	Kind   StepKind               `json:"kind"`
	Target string                 `json:"target,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Plan is an ordered, non-empty sequence of steps. Plans are values: once handed
// to the executor they are not modified.
type Plan struct {
	Steps     []Step `json:"steps"`
	Rationale string `json:"rationale,omitempty"`
}

// Len returns the number of steps.
func (p Plan) Len() int { return len(p.Steps) }

// HasExtract reports whether the plan ends with an extract step.
func (p Plan) HasExtract() bool {
	return len(p.Steps) > 0 && p.Steps[len(p.Steps)-1].Kind == StepExtract
}

// Outcome summarizes a plan execution.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed" // Every step succeeded.
	OutcomePartial   Outcome = "partial"   // A step failed; later steps were skipped.
	OutcomeFailed    Outcome = "failed"    // A login wall halted execution.
)

// NoFailureStep marks an ExecutionResult that did not stop at a step.
const NoFailureStep = -1

// ExecutionResult is what the executor hands back to the orchestrator.
type ExecutionResult struct {
	Outcome      Outcome
	ExtractedRaw []schemas.RawFragment
	FailureStep  int
	Failure      error
}

// LogStatus is the outcome of a single step attempt.
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogRetry   LogStatus = "retry"
	LogFailed  LogStatus = "failed"
	LogEmpty   LogStatus = "empty"
)

// LogEntry records one step attempt.
type LogEntry struct {
	StepIndex int           `json:"step_index"`
	Action    Step          `json:"action"`
	Attempt   int           `json:"attempt"`
	Status    LogStatus     `json:"status"`
	ErrorCode ErrorCode     `json:"error_code,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// ExtractedItem is a normalized record. Field values are strings or float64.
type ExtractedItem struct {
	Fields map[string]interface{} `json:"fields"`
}

// ExecutionRecorder is the slice of the run context the executor may write.
type ExecutionRecorder interface {
	AppendLog(entry LogEntry)
	AppendExtracted(items ...schemas.RawFragment)
	SetError(err error)
	ClearError()
}

// RunContext is the per-run state threaded through the pipeline. The
// orchestrator owns it; stages receive only the narrow views they need.
type RunContext struct {
	targetURL   string
	instruction string

	mu        sync.Mutex
	pageState schemas.PageState
	extracted []schemas.RawFragment
	log       []LogEntry
	lastErr   error
}

var _ ExecutionRecorder = (*RunContext)(nil)

// NewRunContext creates the context for one run.
func NewRunContext(targetURL, instruction string) *RunContext {
	return &RunContext{targetURL: targetURL, instruction: instruction}
}

func (rc *RunContext) TargetURL() string   { return rc.targetURL }
func (rc *RunContext) Instruction() string { return rc.instruction }

// PageState returns the most recent snapshot.
func (rc *RunContext) PageState() schemas.PageState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.pageState
}

// SetPageState stores a fresh snapshot.
func (rc *RunContext) SetPageState(ps schemas.PageState) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.pageState = ps
}

func (rc *RunContext) AppendLog(entry LogEntry) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.log = append(rc.log, entry)
}

func (rc *RunContext) AppendExtracted(items ...schemas.RawFragment) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.extracted = append(rc.extracted, items...)
}

func (rc *RunContext) SetError(err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.lastErr = err
}

func (rc *RunContext) ClearError() { rc.SetError(nil) }

// Err returns the last failure, nil after a successful step.
func (rc *RunContext) Err() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.lastErr
}

// Log returns a copy of the execution log.
func (rc *RunContext) Log() []LogEntry {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]LogEntry(nil), rc.log...)
}

// RecentLog returns up to n of the latest log entries.
func (rc *RunContext) RecentLog(n int) []LogEntry {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if n <= 0 || len(rc.log) == 0 {
		return nil
	}
	if n > len(rc.log) {
		n = len(rc.log)
	}
	return append([]LogEntry(nil), rc.log[len(rc.log)-n:]...)
}

// Extracted returns a copy of the raw fragments gathered so far.
func (rc *RunContext) Extracted() []schemas.RawFragment {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]schemas.RawFragment(nil), rc.extracted...)
}
