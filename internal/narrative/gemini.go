// ABOUTME: Google Gemini narrator.
// ABOUTME: Asks for a JSON reply via the response MIME type and parses it like OpenAI output.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/harperreed/medtrack/internal/apperr"
	"github.com/harperreed/medtrack/internal/report"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// Gemini narrates reports with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ report.Narrator = (*Gemini)(nil)

// NewGemini creates a Gemini narrator. Close releases the client.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	const op = "narrative.gemini"
	if apiKey == "" {
		return nil, apperr.Validationf(op, "api key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, apperr.External(op, fmt.Errorf("create client: %w", err))
	}
	return &Gemini{client: client, model: model}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Summarize implements report.Narrator.
func (g *Gemini) Summarize(ctx context.Context, data report.Summary, locale string) (report.Narrative, error) {
	const op = "narrative.gemini"

	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(Temperature)
	model.SetMaxOutputTokens(MaxTokens)

	resp, err := model.GenerateContent(ctx, genai.Text(buildPrompt(data, locale)))
	if err != nil {
		return report.Narrative{}, apperr.External(op, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return report.Narrative{}, apperr.External(op, errors.New("no candidates in response"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	n := parseReply(sb.String())
	if n.Blank() {
		return report.Narrative{}, apperr.External(op, errors.New("empty reply"))
	}
	return n, nil
}
