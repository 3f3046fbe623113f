package services

import (
	"context"
	"fmt"
	"strings"
)

type geminiContentGenerator struct {
	gemini        GeminiService
	promptBuilder *PromptBuilder
	maxRetries    int
}

func NewGeminiContentGenerator(gemini GeminiService, maxRetries int) ContentGenerator {
	return &geminiContentGenerator{
		gemini:        gemini,
		promptBuilder: NewPromptBuilder(),
		maxRetries:    maxRetries,
	}
}

type questionPayload struct {
	QuestionText string `json:"question_text"`
}

type summaryPayload struct {
	OverallScore *float64 `json:"overall_score"`
	Summary      string   `json:"summary"`
}

// GenerateQuestion implements ContentGenerator.
func (g *geminiContentGenerator) GenerateQuestion(ctx context.Context, qc *QuestionContext) (string, error) {
	prompt := g.promptBuilder.BuildQuestionPrompt(qc)

	response, err := g.gemini.GenerateTextWithRetry(ctx, prompt, 0.7, g.maxRetries)
	if err != nil {
		return "", fmt.Errorf("failed to generate question: %w", err)
	}

	var payload questionPayload
	if err := parseJSONResponse(response, &payload); err != nil {
		// Plain-text answers are accepted as long as they are not broken JSON.
		text := strings.TrimSpace(response)
		if text == "" || strings.HasPrefix(text, "{") || strings.HasPrefix(text, "```") {
			return "", fmt.Errorf("failed to parse question response: %w", err)
		}
		return text, nil
	}

	return strings.TrimSpace(payload.QuestionText), nil
}

// GenerateSummary implements ContentGenerator.
func (g *geminiContentGenerator) GenerateSummary(ctx context.Context, sc *SummaryContext) (*SummaryResult, error) {
	prompt := g.promptBuilder.BuildSummaryPrompt(sc)

	response, err := g.gemini.GenerateTextWithRetry(ctx, prompt, 0.4, g.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary: %w", err)
	}

	var payload summaryPayload
	if err := parseJSONResponse(response, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse summary response: %w", err)
	}

	return &SummaryResult{
		Summary:      strings.TrimSpace(payload.Summary),
		OverallScore: payload.OverallScore,
	}, nil
}
