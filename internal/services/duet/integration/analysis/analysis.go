// Package analysis asks an OpenAI-compatible chat model for a written reading
// of a finished session's report.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/louisbranch/duet/internal/services/duet/domain/report"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4o-mini"

var systemPrompts = map[string]string{
	"en": "You read the results of a two-person conversation game. Write three short paragraphs " +
		"about how the pair connected, where they opened up, and one gentle suggestion. " +
		"Do not invent facts that are not in the data.",
	"es": "Lees los resultados de un juego de conversación entre dos personas. Escribe tres " +
		"párrafos breves sobre cómo conectaron, dónde se abrieron y una sugerencia amable. " +
		"No inventes datos que no estén en el informe.",
}

// Config selects the chat completion endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// MaxRetries is passed to the client; zero disables retries.
	MaxRetries int
	HTTPClient *http.Client
}

// Analyzer implements the relationship-analysis capability.
type Analyzer struct {
	client openai.Client
	model  string
}

// New builds an analyzer.
func New(cfg Config) *Analyzer {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	return &Analyzer{client: openai.NewClient(opts...), model: model}
}

// Analyze returns the model's narrative for r.
func (a *Analyzer) Analyze(ctx context.Context, r report.Report) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	system, ok := systemPrompts[r.Language]
	if !ok {
		system = systemPrompts["en"]
	}
	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(string(data)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion returned empty content")
	}
	return text, nil
}
