package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/datasmith-ai/datasmith/internal/common"
	"github.com/datasmith-ai/datasmith/internal/prompt"
)

// OpenAIModel implements Model over the OpenAI chat completions API.
type OpenAIModel struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIModel constructs the provider. endpoint may be empty for the
// default API host; timeout bounds each Generate call.
func NewOpenAIModel(apiKey, endpoint, model string, timeout time.Duration) *OpenAIModel {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(endpoint))
	}
	logger := common.Logger()
	logger.Info("gateway: OpenAI model configured", "model", model, "timeout", timeout)
	return &OpenAIModel{client: openai.NewClient(opts...), model: model, timeout: timeout}
}

// Generation temperatures per purpose, matching the tuning the product
// shipped with.
func temperatureFor(purpose prompt.Purpose) float64 {
	switch purpose {
	case prompt.PurposeAnalysis:
		return 0.4
	case prompt.PurposeEnrichment:
		return 0.5
	default:
		return 0.3
	}
}

// Generate sends one chat completion request. A transient failure is
// retried exactly once; context cancellation is permanent. Failures are
// reported as UnavailableError so callers can apply their degradation
// policy.
func (o *OpenAIModel) Generate(ctx context.Context, promptText string, purpose prompt.Purpose) (string, error) {
	logger := common.Logger()
	operation := func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		resp, err := o.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(o.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(promptText),
			},
			Temperature: openai.Float(temperatureFor(purpose)),
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(ctx.Err())
			}
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("no choices returned")
		}
		return resp.Choices[0].Message.Content, nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx)
	out, err := backoff.RetryWithData(operation, policy)
	if err != nil {
		logger.Error("gateway: chat completion failed", "model", o.model, "purpose", purpose, "error", err)
		return "", &UnavailableError{Gateway: "ai", Err: err}
	}
	logger.Debug("gateway: chat completion succeeded", "model", o.model, "purpose", purpose, "chars", len(out))
	return out, nil
}

func (o *OpenAIModel) Name() string { return fmt.Sprintf("openai/%s", o.model) }
