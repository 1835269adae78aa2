// internal/agent/errors.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/feedpilot/api/schemas"
)

// ErrorCode is a string type used for structured error reporting in the
// execution log and the final output.
type ErrorCode string

const (
	ErrCodePlanning         ErrorCode = "PLANNING_ERROR"
	ErrCodeSelectorMiss     ErrorCode = "SELECTOR_MISS"
	ErrCodeStepTimeout      ErrorCode = "STEP_TIMEOUT"
	ErrCodeAuthRequired     ErrorCode = "AUTH_REQUIRED"
	ErrCodeExtraction       ErrorCode = "EXTRACTION_ERROR"
	ErrCodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"
	ErrCodeNavigationError  ErrorCode = "NAVIGATION_ERROR"
	ErrCodeCancelled        ErrorCode = "CANCELLED"
)

// Retryable reports whether a step failing with this code may be retried.
func (c ErrorCode) Retryable() bool {
	return c == ErrCodeSelectorMiss || c == ErrCodeStepTimeout
}

// PlanningError means the model could not be reached or its answer did not
// form a valid plan. Raw carries the offending response, if any, so it can be
// fed back into the next attempt.
type PlanningError struct {
	Raw string
	Err error
}

func (e *PlanningError) Error() string { return "planning failed: " + e.Err.Error() }
func (e *PlanningError) Unwrap() error { return e.Err }

// StepError describes a failed plan step.
type StepError struct {
	Code  ErrorCode
	Index int
	Kind  StepKind
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed with %s: %v", e.Index, e.Kind, e.Code, e.Err)
}
func (e *StepError) Unwrap() error { return e.Err }

// AuthRequiredError means the page matched a login-wall signature.
type AuthRequiredError struct {
	SiteID string
	Signal string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("login required for %s (%s)", e.SiteID, e.Signal)
}

// ExtractionError means the model could not normalize the extracted fragments.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string { return "extraction failed: " + e.Err.Error() }
func (e *ExtractionError) Unwrap() error { return e.Err }

// IsAuthRequired reports whether err carries an AuthRequiredError.
func IsAuthRequired(err error) bool {
	var target *AuthRequiredError
	return errors.As(err, &target)
}

// CodeOf extracts the most specific ErrorCode from err.
func CodeOf(err error) ErrorCode {
	var (
		stepErr *StepError
		planErr *PlanningError
		extrErr *ExtractionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &stepErr):
		return stepErr.Code
	case IsAuthRequired(err):
		return ErrCodeAuthRequired
	case errors.As(err, &planErr):
		return ErrCodePlanning
	case errors.As(err, &extrErr):
		return ErrCodeExtraction
	case errors.Is(err, context.Canceled):
		return ErrCodeCancelled
	default:
		return ErrCodeExecutionFailure
	}
}

// ClassifyDriverError maps a browser driver error to an ErrorCode. Typed
// sentinels are checked first; chromedp errors that only surface as strings are
// classified heuristically.
func ClassifyDriverError(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if errors.Is(err, schemas.ErrSelectorNotFound) {
		return ErrCodeSelectorMiss
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeStepTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrCodeCancelled
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no element found"), strings.Contains(msg, "could not find node"):
		return ErrCodeSelectorMiss
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return ErrCodeStepTimeout
	case strings.Contains(msg, "net::err"):
		return ErrCodeNavigationError
	}
	return ErrCodeExecutionFailure
}
