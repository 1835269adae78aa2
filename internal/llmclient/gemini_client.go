// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/config"
)

// GeminiClient implements schemas.LLMClient on top of the Gemini API.
type GeminiClient struct {
	client *genai.Client
	logger *zap.Logger
	config config.LLMModelConfig
	policy retryPolicy
}

var _ schemas.LLMClient = (*GeminiClient)(nil)

// NewGeminiClient initializes the client. A non-empty Endpoint overrides the
// API base URL.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set GEMINI_API_KEY)")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model name is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.Endpoint
	}
	if cfg.APITimeout > 0 {
		timeout := cfg.APITimeout
		clientCfg.HTTPOptions.Timeout = &timeout
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: cfg,
		logger: logger.Named("llm_client.gemini"),
		policy: newRetryPolicy(cfg.MaxElapsed),
	}, nil
}

// Generate sends the prompts to the Gemini API, retrying transient failures.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	contents := genai.Text(req.UserPrompt)
	genCfg := c.buildConfig(req)

	operation := func() (string, error) {
		start := time.Now()
		resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, contents, genCfg)
		if err != nil {
			return "", c.handleError(err)
		}

		if len(resp.Candidates) == 0 {
			return "", backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}
		text := resp.Text()
		if strings.TrimSpace(text) == "" {
			reason := string(resp.Candidates[0].FinishReason)
			if reason == string(genai.FinishReasonSafety) || reason == string(genai.FinishReasonBlocklist) {
				return "", backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", reason))
			}
			return "", fmt.Errorf("gemini API returned empty content (Reason: %s)", reason)
		}

		fields := []zap.Field{zap.String("model", c.config.Model), zap.Duration("duration", time.Since(start))}
		if u := resp.UsageMetadata; u != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", u.PromptTokenCount),
				zap.Int32("completion_tokens", u.CandidatesTokenCount),
				zap.Int32("total_tokens", u.TotalTokenCount))
		}
		c.logger.Info("LLM generation complete (Gemini)", fields...)
		return text, nil
	}

	return retry(ctx, c.policy, operation)
}

func (c *GeminiClient) buildConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	temp := float32(req.Options.Temperature)
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(schemas.ComposeSystemPrompt(req), genai.RoleUser),
		Temperature:       &temp,
	}
	if topP := c.topP(req); topP > 0 {
		genCfg.TopP = &topP
	}
	if limit := c.maxTokens(req); limit > 0 {
		genCfg.MaxOutputTokens = int32(limit)
	}
	if req.Options.ForceJSONFormat {
		genCfg.ResponseMIMEType = "application/json"
	}
	return genCfg
}

func (c *GeminiClient) topP(req schemas.GenerationRequest) float32 {
	if req.Options.TopP > 0 {
		return float32(req.Options.TopP)
	}
	return c.config.TopP
}

func (c *GeminiClient) maxTokens(req schemas.GenerationRequest) int {
	if req.Options.MaxTokens > 0 {
		return req.Options.MaxTokens
	}
	return c.config.MaxTokens
}

func (c *GeminiClient) handleError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		c.logger.Error("Gemini API returned error status", zap.Int("status", apiErr.Code), zap.String("message", apiErr.Message))
		return classifyStatus(apiErr.Code, fmt.Errorf("gemini API error: status %d: %s", apiErr.Code, apiErr.Message))
	}
	if isTransientNetErr(err) {
		c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
		return err
	}
	return backoff.Permanent(fmt.Errorf("gemini request failed: %w", err))
}

// Close releases the client. The SDK holds no resources that need closing.
func (c *GeminiClient) Close() error { return nil }
