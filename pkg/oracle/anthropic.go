package oracle

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
	"github.com/XiaoConstantine/gepa-go/pkg/logging"
)

// AnthropicModel implements core.ModelClient on Anthropic's Messages API.
type AnthropicModel struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicModel creates a model client for the given Anthropic model.
// An empty apiKey falls back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicModel(apiKey string, model anthropic.Model) (*AnthropicModel, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New(errors.InvalidConfiguration, "API key is required")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicModel{
		client: &client,
		model:  model,
	}, nil
}

// ModelID implements core.ModelClient.
func (a *AnthropicModel) ModelID() string {
	return string(a.model)
}

// Complete implements core.ModelClient.
func (a *AnthropicModel) Complete(ctx context.Context, systemInstruction, userContent string, sampling core.SamplingConfig) (string, error) {
	logger := logging.GetLogger()

	params := anthropic.MessageNewParams{
		Model: a.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(userContent),
			),
		},
		MaxTokens:   int64(sampling.MaxTokens),
		Temperature: anthropic.Float(sampling.Temperature),
	}
	if systemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemInstruction}}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", a.classifyError(ctx, err)
	}

	if message == nil || len(message.Content) == 0 {
		return "", errors.New(errors.OracleResponseInvalid, "received empty content from Anthropic API")
	}

	var responseText string
	if block := message.Content[0]; block.Type == "text" {
		responseText = block.Text
	}

	tokenInfo := &logging.TokenInfo{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}
	logger.PromptCompletion(logging.WithModelID(logging.WithTokenInfo(ctx, tokenInfo), string(a.model)),
		userContent, responseText, tokenInfo)

	return responseText, nil
}

// classifyError maps Anthropic API failures onto the engine's taxonomy:
// rate limits and server errors are transient, exhausted credit is quota,
// other client errors are invalid requests and must not be retried.
func (a *AnthropicModel) classifyError(ctx context.Context, err error) error {
	logger := logging.GetLogger()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(err, errors.Canceled, "oracle request canceled")
	}

	var apiErr *anthropic.Error
	if stderrors.As(err, &apiErr) {
		logger.Error(ctx, "Anthropic API error: status code %d", apiErr.StatusCode)

		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "credit") || strings.Contains(msg, "quota"):
			return errors.Wrap(err, errors.OracleQuotaExhausted, "oracle quota exhausted")
		case apiErr.StatusCode == 429 || apiErr.StatusCode >= 500:
			return errors.Wrap(err, errors.TransientOracle, "transient oracle failure")
		default:
			return errors.WithFields(
				errors.Wrap(err, errors.OracleResponseInvalid, "oracle rejected request"),
				errors.Fields{"status": apiErr.StatusCode, "model": string(a.model)})
		}
	}

	// Network-level failures without an API response are transient.
	return errors.Wrap(err, errors.TransientOracle, "oracle request failed")
}
