// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/config"
)

const (
	openAIBaseURL     = "https://api.openai.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenAIClient implements schemas.LLMClient for OpenAI and any endpoint
// speaking the same chat completions protocol, OpenRouter included.
type OpenAIClient struct {
	client   openai.Client
	provider config.LLMProvider
	logger   *zap.Logger
	config   config.LLMModelConfig
	policy   retryPolicy
}

var _ schemas.LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient initializes the client for the configured provider.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s model name is required", cfg.Provider)
	}

	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = openAIBaseURL
		if cfg.Provider == config.ProviderOpenRouter {
			baseURL = openRouterBaseURL
		}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		// Retries are handled by retry() so they are logged and bounded the same
		// way for every provider.
		option.WithMaxRetries(0),
	}
	if cfg.APITimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.APITimeout))
	}

	return &OpenAIClient{
		client:   openai.NewClient(opts...),
		provider: cfg.Provider,
		config:   cfg,
		logger:   logger.Named("llm_client." + string(cfg.Provider)),
		policy:   newRetryPolicy(cfg.MaxElapsed),
	}, nil
}

// Generate sends a chat completion request, retrying transient failures.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	params := c.buildParams(req)

	operation := func() (string, error) {
		start := time.Now()
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", c.handleError(err)
		}
		if len(resp.Choices) == 0 {
			return "", backoff.Permanent(fmt.Errorf("%s API returned no choices", c.provider))
		}
		choice := resp.Choices[0]
		if strings.TrimSpace(choice.Message.Content) == "" {
			if choice.FinishReason == "content_filter" {
				return "", backoff.Permanent(fmt.Errorf("%s API filtered the response", c.provider))
			}
			return "", fmt.Errorf("%s API returned empty content (Reason: %s)", c.provider, choice.FinishReason)
		}

		c.logger.Info("LLM generation complete",
			zap.String("model", c.config.Model),
			zap.Duration("duration", time.Since(start)),
			zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int64("total_tokens", resp.Usage.TotalTokens),
		)
		return choice.Message.Content, nil
	}

	return retry(ctx, c.policy, operation)
}

func (c *OpenAIClient) buildParams(req schemas.GenerationRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(schemas.ComposeSystemPrompt(req)),
			openai.UserMessage(req.UserPrompt),
		},
		Temperature: openai.Float(req.Options.Temperature),
	}
	if req.Options.TopP > 0 {
		params.TopP = openai.Float(req.Options.TopP)
	} else if c.config.TopP > 0 {
		params.TopP = openai.Float(float64(c.config.TopP))
	}
	if req.Options.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.Options.MaxTokens))
	} else if c.config.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.config.MaxTokens))
	}
	if req.Options.ForceJSONFormat {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func (c *OpenAIClient) handleError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		c.logger.Error("API returned error status", zap.Int("status", apiErr.StatusCode), zap.String("message", apiErr.Message))
		return classifyStatus(apiErr.StatusCode, fmt.Errorf("%s API error: status %d: %s", c.provider, apiErr.StatusCode, apiErr.Message))
	}
	if isTransientNetErr(err) {
		c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
		return err
	}
	return backoff.Permanent(fmt.Errorf("%s request failed: %w", c.provider, err))
}

// Close releases the client.
func (c *OpenAIClient) Close() error { return nil }
