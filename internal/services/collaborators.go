package services

import (
	"context"
	"fmt"
)

// InterviewContext is the job and candidate background handed to every
// collaborator call. Any field may be empty.
type InterviewContext struct {
	JobTitle        string `json:"job_title,omitempty"`
	JobDescription  string `json:"job_description,omitempty"`
	JobRequirements string `json:"job_requirements,omitempty"`
	CVText          string `json:"cv_text,omitempty"`
	Knowledge       string `json:"knowledge,omitempty"`
}

// QA is one asked question with the answer given, if any.
type QA struct {
	Question string
	Answer   string
}

type QuestionContext struct {
	Context           InterviewContext
	Difficulty        string
	PersonalityTraits []string
	TechnicalFocus    []string
	History           []QA
	IsFirst           bool
}

type SummaryContext struct {
	Context    InterviewContext
	Transcript string
	Scores     []float64
}

type SummaryResult struct {
	Summary      string
	OverallScore *float64
}

type AnswerEvaluation struct {
	Score    *float64
	Feedback string
}

// ContentGenerator produces interview questions and final summaries.
type ContentGenerator interface {
	GenerateQuestion(ctx context.Context, qc *QuestionContext) (string, error)
	GenerateSummary(ctx context.Context, sc *SummaryContext) (*SummaryResult, error)
}

// ResponseEvaluator scores a single answer on a 0-100 scale.
type ResponseEvaluator interface {
	EvaluateAnswer(ctx context.Context, question, answer string, ic *InterviewContext) (*AnswerEvaluation, error)
}

type TranscriptionProvider interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type DegradedKind string

const (
	DegradedGeneration    DegradedKind = "generation"
	DegradedSummary       DegradedKind = "summary"
	DegradedEvaluation    DegradedKind = "evaluation"
	DegradedTranscription DegradedKind = "transcription"
)

// DegradedError reports that a collaborator call failed and the engine
// substituted a fallback. It never leaves the engine.
type DegradedError struct {
	Kind DegradedKind
	Err  error
}

func (d *DegradedError) Error() string {
	return fmt.Sprintf("%s degraded: %v", d.Kind, d.Err)
}

func (d *DegradedError) Unwrap() error {
	return d.Err
}

// Result is the outcome of a guarded collaborator call: either a usable
// Value or a Degraded signal.
type Result[T any] struct {
	Value    T
	Degraded *DegradedError
}

func ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func degraded[T any](kind DegradedKind, err error) Result[T] {
	return Result[T]{Degraded: &DegradedError{Kind: kind, Err: err}}
}
