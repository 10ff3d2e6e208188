// ABOUTME: OpenAI chat-completion narrator.
// ABOUTME: Requests a JSON object reply and maps failures to external-service errors.
package narrative

import (
	"context"
	"errors"

	"github.com/harperreed/medtrack/internal/apperr"
	"github.com/harperreed/medtrack/internal/report"
	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI narrates reports with the OpenAI chat completion API.
type OpenAI struct {
	client *openai.Client
	model  string
}

var _ report.Narrator = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI narrator. baseURL is optional and points the
// client at a compatible endpoint.
func NewOpenAI(apiKey, model, baseURL string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, apperr.Validationf("narrative.openai", "api key is required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Summarize implements report.Narrator.
func (o *OpenAI) Summarize(ctx context.Context, data report.Summary, locale string) (report.Narrative, error) {
	const op = "narrative.openai"

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(data, locale)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    Temperature,
		MaxTokens:      MaxTokens,
	})
	if err != nil {
		return report.Narrative{}, apperr.External(op, err)
	}
	if len(resp.Choices) == 0 {
		return report.Narrative{}, apperr.External(op, errors.New("no choices in response"))
	}

	n := parseReply(resp.Choices[0].Message.Content)
	if n.Blank() {
		return report.Narrative{}, apperr.External(op, errors.New("empty reply"))
	}
	return n, nil
}
