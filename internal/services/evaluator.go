package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type geminiResponseEvaluator struct {
	gemini        GeminiService
	promptBuilder *PromptBuilder
	maxRetries    int
}

func NewGeminiResponseEvaluator(gemini GeminiService, maxRetries int) ResponseEvaluator {
	return &geminiResponseEvaluator{
		gemini:        gemini,
		promptBuilder: NewPromptBuilder(),
		maxRetries:    maxRetries,
	}
}

type answerEvaluationPayload struct {
	Score    *float64 `json:"score"`
	Feedback string   `json:"feedback"`
}

// EvaluateAnswer implements ResponseEvaluator. Range checking of the score is
// left to the caller.
func (e *geminiResponseEvaluator) EvaluateAnswer(ctx context.Context, question, answer string, ic *InterviewContext) (*AnswerEvaluation, error) {
	prompt := e.promptBuilder.BuildEvaluationPrompt(question, answer, ic)

	response, err := e.gemini.GenerateTextWithRetry(ctx, prompt, 0.3, e.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to generate evaluation: %w", err)
	}

	var payload answerEvaluationPayload
	if err := parseJSONResponse(response, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse evaluation response: %w", err)
	}
	if payload.Score == nil {
		return nil, fmt.Errorf("evaluation response has no score")
	}

	return &AnswerEvaluation{
		Score:    payload.Score,
		Feedback: strings.TrimSpace(payload.Feedback),
	}, nil
}

func parseJSONResponse(response string, target interface{}) error {
	jsonStr := extractJSON(response)

	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w\nResponse: %s", err, response)
	}

	return nil
}

// extractJSON strips markdown fences and returns the outermost JSON object
// or array found in text.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	startObj := strings.Index(text, "{")
	startArr := strings.Index(text, "[")
	endObj := strings.LastIndex(text, "}")
	endArr := strings.LastIndex(text, "]")

	if startObj != -1 && endObj != -1 && endObj > startObj {
		return text[startObj : endObj+1]
	} else if startArr != -1 && endArr != -1 && endArr > startArr {
		return text[startArr : endArr+1]
	}

	return strings.TrimSpace(text)
}
