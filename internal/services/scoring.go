package services

import (
	"fmt"
	"math"
	"strings"

	"alfredoptarigan/interview-engine/internal/models"
)

const transcriptNotAnswered = "Not answered"

// ValidScore reports whether s is a usable 0-100 score.
func ValidScore(s *float64) bool {
	return s != nil && !math.IsNaN(*s) && *s >= 0 && *s <= 100
}

// AnsweredScores returns the non-null per-turn scores in creation order.
func AnsweredScores(turns []models.InterviewQuestion) []float64 {
	scores := make([]float64, 0, len(turns))
	for _, t := range turns {
		if t.Score != nil {
			scores = append(scores, *t.Score)
		}
	}
	return scores
}

// MeanScore is the arithmetic mean of scores, or 0 when there are none.
func MeanScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func PerformanceBand(score float64) string {
	switch {
	case score >= 85:
		return "excellent"
	case score >= 70:
		return "good"
	case score >= 50:
		return "satisfactory"
	default:
		return "below expectations"
	}
}

// FallbackSummary is the templated summary used when the generator cannot
// produce one.
func FallbackSummary(score float64) string {
	return fmt.Sprintf("Overall score: %.1f/100. Performance was %s.", score, PerformanceBand(score))
}

// BuildTranscript renders turns in creation order as "Q: ...\nA: ..." blocks
// separated by blank lines.
func BuildTranscript(turns []models.InterviewQuestion) string {
	blocks := make([]string, 0, len(turns))
	for _, t := range turns {
		answer := transcriptNotAnswered
		if t.AnswerText != nil {
			answer = *t.AnswerText
		}
		blocks = append(blocks, fmt.Sprintf("Q: %s\nA: %s", t.QuestionText, answer))
	}
	return strings.Join(blocks, "\n\n")
}

// History converts turns into the question/answer pairs given to the generator.
func History(turns []models.InterviewQuestion) []QA {
	history := make([]QA, 0, len(turns))
	for _, t := range turns {
		qa := QA{Question: t.QuestionText}
		if t.AnswerText != nil {
			qa.Answer = *t.AnswerText
		}
		history = append(history, qa)
	}
	return history
}

// UnconsumedMandatory returns the mandatory questions whose exact text has
// not been asked yet, in policy order. Matching is literal: a generated
// question identical to a mandatory one consumes it, and duplicate entries
// in the policy are consumed by a single asked turn.
func UnconsumedMandatory(mandatory []string, turns []models.InterviewQuestion) []string {
	asked := make(map[string]struct{}, len(turns))
	for _, t := range turns {
		asked[t.QuestionText] = struct{}{}
	}

	remaining := make([]string, 0, len(mandatory))
	for _, q := range mandatory {
		if _, ok := asked[q]; !ok {
			remaining = append(remaining, q)
		}
	}
	return remaining
}
