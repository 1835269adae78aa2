package schemas

import (
	"context"
	"time"
)

// -- Browser Driver Interface --

// BrowserDriver is the set of primitive operations the action executor drives
// against one live browser session. A driver is owned by exactly one run and is
// never shared between concurrent runs.
//
//go:generate mockery --name BrowserDriver --output ../../internal/mocks --outpkg mocks
type BrowserDriver interface {
	ID() string                                                                // Returns the unique ID of the session.
	Navigate(ctx context.Context, url string) error                            // Loads a URL and waits for the document to be ready.
	Click(ctx context.Context, selector string) error                          // Clicks the first element matching the selector.
	Input(ctx context.Context, selector, text string, submit bool) error       // Types text into an element, optionally pressing Enter.
	Scroll(ctx context.Context, amount int) error                              // Scrolls vertically by amount pixels, negative scrolls up.
	Wait(ctx context.Context, cond WaitCondition, timeout time.Duration) error // Waits for a selector to become visible or a fixed delay.
	Count(ctx context.Context, selector string) (int, error)                   // Counts elements matching the selector.
	Extract(ctx context.Context, selector string) ([]RawFragment, error)       // Captures every element matching the selector.
	Snapshot(ctx context.Context) (PageState, error)                           // Captures URL, title and a visible-text digest.
	GetCookies(ctx context.Context) (*CredentialBundle, error)                 // Captures cookies and local storage for the current origin.
	SetCookies(ctx context.Context, bundle *CredentialBundle) error            // Restores a previously captured bundle.
	Close() error                                                              // Closes the session. Safe to call more than once.
}

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions controls sampling and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	TopP            float64 `json:"top_p"`
	MaxTokens       int     `json:"max_tokens"`
}

// GenerationRequest encapsulates a complete request to the language model.
// SchemaHint describes the JSON shape the caller expects back; clients append
// it to the system instructions.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	SchemaHint   string            `json:"schema_hint,omitempty"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}

// ComposeSystemPrompt joins the system prompt and the schema hint the way every
// client sends them.
func ComposeSystemPrompt(req GenerationRequest) string {
	if req.SchemaHint == "" {
		return req.SystemPrompt
	}
	return req.SystemPrompt + "\n\nRespond with JSON matching this shape:\n" + req.SchemaHint
}
