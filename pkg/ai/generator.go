package ai

import "context"

// TextGenerator generates text from a system prompt and user prompt.
// The topic predictor treats the provider behind it as purely advisory.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
