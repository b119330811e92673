package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured means no API key was supplied and the client never
// attempted a call.
var ErrNotConfigured = errors.New("gemini API key is not configured")

// TokenUsage mirrors the usage metadata reported by the model API.
type TokenUsage struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Result is the outcome of one completion call. Err is nil on success. The
// failure variants still render as plan text through PlanText, matching what
// the user has always seen, while Err keeps the failure inspectable.
type Result struct {
	Text  string
	Usage TokenUsage
	Err   error
}

// Failed reports whether this result is the failure variant.
func (r Result) Failed() bool {
	return r.Err != nil
}

// PlanText returns the text stored in the meal_plan field: the generated plan
// on success, a descriptive message otherwise.
func (r Result) PlanText() string {
	if r.Err == nil {
		return r.Text
	}
	if errors.Is(r.Err, ErrNotConfigured) {
		return "Error: Unable to configure Gemini API"
	}
	return fmt.Sprintf("Error generating meal plan: %v", r.Err)
}

// Generator produces a meal plan from a rendered prompt. One synchronous
// call per invocation; no retries.
type Generator interface {
	Generate(ctx context.Context, prompt string) Result
}

// disabledGenerator stands in when no API key is configured. It issues no
// network calls.
type disabledGenerator struct{}

func (disabledGenerator) Generate(context.Context, string) Result {
	return Result{Err: ErrNotConfigured}
}

// Disabled returns the stand-in Generator used when the API key is absent.
func Disabled() Generator {
	return disabledGenerator{}
}
