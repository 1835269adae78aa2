// File: internal/agent/planner.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Plan validation failures. They are wrapped with the offending step index.
var (
	ErrNoJSON             = errors.New("response contains no JSON")
	ErrEmptyPlan          = errors.New("plan has no steps")
	ErrMissingKind        = errors.New("step is missing 'kind'")
	ErrUnknownKind        = errors.New("step has an unknown 'kind'")
	ErrMissingTarget      = errors.New("step is missing 'target'")
	ErrExtractNotTerminal = errors.New("extract step is not the last step")
	ErrNoExtract          = errors.New("plan does not end with an extract step")
	ErrTooManySteps       = errors.New("plan exceeds the step limit")
)

// PlanRequest is the read-only view of a run the planner works from.
type PlanRequest struct {
	Instruction   string
	TargetURL     string
	Page          schemas.PageState
	SiteName      string
	SelectorHints []string
	Feedback      *Feedback
}

// Feedback describes why the previous attempt failed, so the model can route
// around it.
type Feedback struct {
	Failure      string
	Raw          string
	FailedStep   *Step
	FailureIndex int
	RecentLog    []LogEntry
}

// ParseOptions bounds what ParsePlan accepts.
type ParseOptions struct {
	MaxSteps       int
	RequireExtract bool
}

// PlannerConfig configures a Planner.
type PlannerConfig struct {
	ParseOptions
	Temperature float64
}

// PlannerConfigFrom derives the planner configuration from the agent section.
func PlannerConfigFrom(cfg config.AgentConfig) PlannerConfig {
	return PlannerConfig{
		ParseOptions: ParseOptions{MaxSteps: cfg.MaxSteps, RequireExtract: cfg.RequireExtract},
		Temperature:  0.2,
	}
}

// Planner turns an instruction and the current page into an action plan with
// a single language model call. It does not retry; the orchestrator owns that
// policy.
type Planner struct {
	llm    schemas.LLMClient
	logger *zap.Logger
	cfg    PlannerConfig
}

// NewPlanner creates a Planner.
func NewPlanner(llm schemas.LLMClient, logger *zap.Logger, cfg PlannerConfig) *Planner {
	return &Planner{llm: llm, logger: logger.Named("planner"), cfg: cfg}
}

// Generate asks the model for a plan and validates it. Every failure is
// returned as a *PlanningError.
func (p *Planner) Generate(ctx context.Context, req PlanRequest) (Plan, error) {
	genReq := schemas.GenerationRequest{
		SystemPrompt: plannerSystemPrompt(p.cfg.MaxSteps, p.cfg.RequireExtract),
		UserPrompt:   buildPlanPrompt(req),
		SchemaHint:   planSchemaHint,
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     p.cfg.Temperature,
		},
	}

	raw, err := p.llm.Generate(ctx, genReq)
	if err != nil {
		return Plan{}, &PlanningError{Err: fmt.Errorf("language model call failed: %w", err)}
	}

	plan, err := ParsePlan(raw, p.cfg.ParseOptions)
	if err != nil {
		p.logger.Warn("Rejected plan from language model",
			zap.String("raw_response", truncate(raw, 2000)),
			zap.Error(err))
		return Plan{}, &PlanningError{Raw: raw, Err: err}
	}

	p.logger.Info("Plan generated", zap.Int("steps", plan.Len()), zap.String("rationale", plan.Rationale))
	return plan, nil
}

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// extractJSON pulls a JSON document out of a model response that may wrap it
// in a markdown fence or in prose.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)
	if m := jsonBlockRegex.FindStringSubmatch(response); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	start := strings.IndexAny(response, "{[")
	if start == -1 {
		return ""
	}
	closer := "}"
	if response[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(response, closer)
	if end <= start {
		return ""
	}
	return response[start : end+1]
}

type wireStep struct {
	Kind   *string                `json:"kind"`
	Target string                 `json:"target"`
	Params map[string]interface{} `json:"params"`
}

type wirePlan struct {
	Rationale string     `json:"rationale"`
	Steps     []wireStep `json:"steps"`
}

// ParsePlan decodes and validates a plan. It accepts {"steps": [...]} or a bare
// array of steps.
func ParsePlan(raw string, opts ParseOptions) (Plan, error) {
	doc := extractJSON(raw)
	if doc == "" {
		return Plan{}, ErrNoJSON
	}

	var wp wirePlan
	if strings.HasPrefix(doc, "[") {
		if err := json.Unmarshal([]byte(doc), &wp.Steps); err != nil {
			return Plan{}, fmt.Errorf("failed to decode plan: %w", err)
		}
	} else if err := json.Unmarshal([]byte(doc), &wp); err != nil {
		return Plan{}, fmt.Errorf("failed to decode plan: %w", err)
	}

	plan := Plan{Rationale: wp.Rationale, Steps: make([]Step, 0, len(wp.Steps))}
	for _, ws := range wp.Steps {
		step := Step{Target: strings.TrimSpace(ws.Target), Params: ws.Params}
		if ws.Kind != nil {
			step.Kind = StepKind(strings.ToLower(strings.TrimSpace(*ws.Kind)))
		}
		plan.Steps = append(plan.Steps, step)
	}

	if err := ValidatePlan(plan, opts); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// ValidatePlan checks the structural invariants of a plan.
func ValidatePlan(plan Plan, opts ParseOptions) error {
	if len(plan.Steps) == 0 {
		return ErrEmptyPlan
	}
	if opts.MaxSteps > 0 && len(plan.Steps) > opts.MaxSteps {
		return fmt.Errorf("%w: %d > %d", ErrTooManySteps, len(plan.Steps), opts.MaxSteps)
	}
	last := len(plan.Steps) - 1
	for i, step := range plan.Steps {
		switch {
		case step.Kind == "":
			return fmt.Errorf("%w: step %d", ErrMissingKind, i)
		case !step.Kind.Valid():
			return fmt.Errorf("%w: step %d has '%s'", ErrUnknownKind, i, step.Kind)
		case step.Kind == StepExtract && i != last:
			return fmt.Errorf("%w: step %d of %d", ErrExtractNotTerminal, i, len(plan.Steps))
		case step.Target == "" && needsTarget(step.Kind):
			return fmt.Errorf("%w: step %d (%s)", ErrMissingTarget, i, step.Kind)
		}
	}
	if opts.RequireExtract && !plan.HasExtract() {
		return ErrNoExtract
	}
	return nil
}

func needsTarget(k StepKind) bool {
	switch k {
	case StepNavigate, StepClick, StepInput, StepExtract:
		return true
	}
	return false
}
