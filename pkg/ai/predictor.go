package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"studyvault/pkg/domain"
)

const predictSystemPrompt = "You are an AI assistant helping students prepare for exams. " +
	"You answer only with a JSON array, no prose around it."

const predictPromptTemplate = `Analyze the following syllabus and past exam papers to predict the most important topics likely to appear on the upcoming exam.

SYLLABUS:
%s

PAST PAPERS:
%s

Provide the top 10 predicted exam topics, a confidence score (0-100) for each, and brief reasoning. Respond with a JSON array of objects shaped like:
[{"topic": "Topic Name", "confidence": 85, "reasoning": "Brief explanation"}]`

// TopicPredictor turns syllabus and past-paper text into ranked topic
// predictions via a TextGenerator.
type TopicPredictor struct {
	generator TextGenerator
}

// NewTopicPredictor wires a predictor onto any text generator.
func NewTopicPredictor(g TextGenerator) *TopicPredictor {
	return &TopicPredictor{generator: g}
}

// Predict asks the model for likely exam topics. Purely advisory: no
// financial state depends on the outcome.
func (p *TopicPredictor) Predict(ctx context.Context, syllabusText, pastPapersText string) ([]domain.TopicPrediction, error) {
	if strings.TrimSpace(syllabusText) == "" && strings.TrimSpace(pastPapersText) == "" {
		return nil, fmt.Errorf("no text to analyze")
	}
	prompt := fmt.Sprintf(predictPromptTemplate, syllabusText, pastPapersText)
	raw, err := p.generator.GenerateText(ctx, predictSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate predictions: %w", err)
	}
	topics, err := parseTopicJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("parse predictions: %w", err)
	}
	return topics, nil
}

// parseTopicJSON extracts the JSON array from a model response. Models
// regularly wrap JSON in markdown fences or a sentence of preamble, so
// it falls back to the outermost bracket pair.
func parseTopicJSON(raw string) ([]domain.TopicPrediction, error) {
	candidate := strings.TrimSpace(raw)
	if strings.HasPrefix(candidate, "```") {
		candidate = strings.TrimPrefix(candidate, "```json")
		candidate = strings.TrimPrefix(candidate, "```")
		candidate = strings.TrimSuffix(strings.TrimSpace(candidate), "```")
		candidate = strings.TrimSpace(candidate)
	}
	if !strings.HasPrefix(candidate, "[") {
		start := strings.Index(candidate, "[")
		end := strings.LastIndex(candidate, "]")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON array in response")
		}
		candidate = candidate[start : end+1]
	}
	var topics []domain.TopicPrediction
	if err := json.Unmarshal([]byte(candidate), &topics); err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("model returned no topics")
	}
	return topics, nil
}
