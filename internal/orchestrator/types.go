// File: internal/orchestrator/types.go
package orchestrator

import (
	"context"
	"time"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/agent"
	"github.com/xkilldash9x/feedpilot/internal/site"
)

// State is a node of the run state machine.
type State string

const (
	StatePlanning   State = "planning"
	StateExecuting  State = "executing"
	StateExtracting State = "extracting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// RunRequest is one natural-language task. URL may be empty, in which case
// the target is inferred from the instruction.
type RunRequest struct {
	Instruction string `json:"instruction" yaml:"instruction"`
	URL         string `json:"url,omitempty" yaml:"url"`
}

// Stats summarizes the effort spent on a run.
type Stats struct {
	TotalSteps   int   `json:"total_steps"`
	PlanAttempts int   `json:"plan_attempts"`
	Executions   int   `json:"executions"`
	Failures     int   `json:"failures"`
	DurationMS   int64 `json:"duration_ms"`
}

// Output is the handoff of a finished run.
type Output struct {
	RunID       string                `json:"run_id"`
	Instruction string                `json:"instruction"`
	TargetURL   string                `json:"target_url"`
	SiteID      string                `json:"site_id,omitempty"`
	Items       []agent.ExtractedItem `json:"items"`
	Raw         []schemas.RawFragment `json:"raw,omitempty"`
	Log         []agent.LogEntry      `json:"log"`
	FinalState  State                 `json:"final_state"`
	Error       string                `json:"error,omitempty"`
	Stats       Stats                 `json:"stats"`
}

// -- Collaborators --

// PlanGenerator produces a plan for the current page.
type PlanGenerator interface {
	Generate(ctx context.Context, req agent.PlanRequest) (agent.Plan, error)
}

// PlanExecutor drives the browser through a plan.
type PlanExecutor interface {
	Execute(ctx context.Context, sess agent.Session, plan agent.Plan, rec agent.ExecutionRecorder) agent.ExecutionResult
}

// Normalizer turns raw fragments into items.
type Normalizer interface {
	Normalize(ctx context.Context, raw []schemas.RawFragment) ([]agent.ExtractedItem, error)
	Fallback(raw []schemas.RawFragment) []agent.ExtractedItem
}

// ProfileResolver maps URLs and instructions to site profiles.
type ProfileResolver interface {
	Resolve(rawURL string) (site.Profile, error)
	InferURL(instruction string) (string, error)
}

// SessionFactory starts a browser session owned by a single run.
type SessionFactory interface {
	NewSession(ctx context.Context) (schemas.BrowserDriver, error)
}

// Credentials is the locked view of the credential store.
type Credentials interface {
	Load(ctx context.Context, siteID string) (*schemas.CredentialBundle, error)
	Merge(ctx context.Context, siteID string, fresh *schemas.CredentialBundle) error
	Invalidate(ctx context.Context, siteID string) error
}

// LoginRecovery gets a logged-out session logged back in.
type LoginRecovery interface {
	Recover(ctx context.Context, driver schemas.BrowserDriver, profile site.Profile) (*schemas.CredentialBundle, error)
}

// Recorder observes run progress, typically for metrics.
type Recorder interface {
	RunFinished(state State, d time.Duration)
	StepAttempted(kind agent.StepKind, status agent.LogStatus)
	Replanned(reason agent.ErrorCode)
	ExtractionFallback()
}

type nopRecorder struct{}

func (nopRecorder) RunFinished(State, time.Duration)              {}
func (nopRecorder) StepAttempted(agent.StepKind, agent.LogStatus) {}
func (nopRecorder) Replanned(agent.ErrorCode)                     {}
func (nopRecorder) ExtractionFallback()                           {}
