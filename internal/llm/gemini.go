package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiModel = "gemini-1.5-flash"

// GeminiGenerator is a Generator backed by the Google Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiGenerator creates a Gemini API client for the fixed model.
func NewGeminiGenerator(ctx context.Context, apiKey string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{
		client: client,
		model:  client.GenerativeModel(geminiModel),
	}, nil
}

// Generate sends the prompt to the model. Transport, authentication and
// service failures all come back inside the Result; nothing here is fatal to
// the session.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) Result {
	usage := TokenUsage{Model: geminiModel}

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Result{Usage: usage, Err: fmt.Errorf("failed to generate content: %w", err)}
	}

	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Result{Usage: usage, Err: errors.New("no content generated")}
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return Result{Usage: usage, Err: errors.New("generated content is not text")}
	}

	return Result{Text: string(text), Usage: usage}
}

// Close closes the underlying Gemini client.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}
