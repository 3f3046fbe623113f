package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGemini struct {
	response    string
	err         error
	prompts     []string
	temperature float32
	transcript  string
	audioMime   string
	speech      []byte
	speechMime  string
	voice       string
}

func (g *fakeGemini) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	if g.err != nil {
		return nil, g.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (g *fakeGemini) GenerateText(ctx context.Context, prompt string, temperature float32) (string, error) {
	return g.GenerateTextWithRetry(ctx, prompt, temperature, 0)
}

func (g *fakeGemini) GenerateTextWithRetry(_ context.Context, prompt string, temperature float32, _ int) (string, error) {
	g.prompts = append(g.prompts, prompt)
	g.temperature = temperature
	return g.response, g.err
}

func (g *fakeGemini) TranscribeAudio(_ context.Context, _ []byte, mimeType string, _ string) (string, error) {
	g.audioMime = mimeType
	return g.transcript, g.err
}

func (g *fakeGemini) SynthesizeSpeech(_ context.Context, text, voice string) ([]byte, string, error) {
	g.prompts = append(g.prompts, text)
	g.voice = voice
	if g.err != nil {
		return nil, "", g.err
	}
	return g.speech, g.speechMime, nil
}

func TestGenerateQuestion_ParsesJSON(t *testing.T) {
	gemini := &fakeGemini{response: "```json\n{\"question_text\": \"  How do you test concurrent code? \"}\n```"}
	gen := NewGeminiContentGenerator(gemini, 1)

	q, err := gen.GenerateQuestion(context.Background(), &QuestionContext{
		Context: InterviewContext{JobTitle: "Go Developer"},
		IsFirst: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "How do you test concurrent code?", q)

	require.Len(t, gemini.prompts, 1)
	assert.Contains(t, gemini.prompts[0], "JOB TITLE:\nGo Developer")
	assert.Contains(t, gemini.prompts[0], "opening question")
}

func TestGenerateQuestion_FollowUpIncludesHistory(t *testing.T) {
	gemini := &fakeGemini{response: `{"question_text": "Next?"}`}
	gen := NewGeminiContentGenerator(gemini, 1)

	_, err := gen.GenerateQuestion(context.Background(), &QuestionContext{
		History: []QA{{Question: "Why Go?", Answer: "Goroutines."}, {Question: "Skipped?"}},
	})
	require.NoError(t, err)
	assert.Contains(t, gemini.prompts[0], "Q: Why Go?\nA: Goroutines.")
	assert.Contains(t, gemini.prompts[0], "Q: Skipped?\nA: Not answered")
}

func TestGenerateQuestion_AcceptsPlainText(t *testing.T) {
	gen := NewGeminiContentGenerator(&fakeGemini{response: "What is a channel?"}, 1)

	q, err := gen.GenerateQuestion(context.Background(), &QuestionContext{IsFirst: true})
	require.NoError(t, err)
	assert.Equal(t, "What is a channel?", q)
}

func TestGenerateQuestion_RejectsBrokenJSON(t *testing.T) {
	gen := NewGeminiContentGenerator(&fakeGemini{response: `{"question_text": `}, 1)

	_, err := gen.GenerateQuestion(context.Background(), &QuestionContext{IsFirst: true})
	assert.Error(t, err)
}

func TestGenerateQuestion_PropagatesFailure(t *testing.T) {
	gen := NewGeminiContentGenerator(&fakeGemini{err: errors.New("quota")}, 1)

	_, err := gen.GenerateQuestion(context.Background(), &QuestionContext{IsFirst: true})
	assert.ErrorContains(t, err, "quota")
}

func TestGenerateSummary(t *testing.T) {
	gemini := &fakeGemini{response: `Here you go: {"overall_score": 81.5, "summary": "Strong fundamentals."}`}
	gen := NewGeminiContentGenerator(gemini, 1)

	res, err := gen.GenerateSummary(context.Background(), &SummaryContext{
		Transcript: "Q: a\nA: b",
		Scores:     []float64{80, 83},
	})
	require.NoError(t, err)
	require.NotNil(t, res.OverallScore)
	assert.Equal(t, 81.5, *res.OverallScore)
	assert.Equal(t, "Strong fundamentals.", res.Summary)
	assert.Contains(t, gemini.prompts[0], "PER-QUESTION SCORES (0-100): 80, 83")
}

func TestEvaluateAnswer(t *testing.T) {
	gemini := &fakeGemini{response: `{"score": 65, "feedback": "Covers the basics."}`}
	eval := NewGeminiResponseEvaluator(gemini, 1)

	res, err := eval.EvaluateAnswer(context.Background(), "What is a mutex?", "", &InterviewContext{})
	require.NoError(t, err)
	assert.Equal(t, 65.0, *res.Score)
	assert.Equal(t, "Covers the basics.", res.Feedback)
	assert.Contains(t, gemini.prompts[0], "(no answer given)")
	assert.Equal(t, float32(0.3), gemini.temperature)
}

func TestEvaluateAnswer_MissingScore(t *testing.T) {
	eval := NewGeminiResponseEvaluator(&fakeGemini{response: `{"feedback": "ok"}`}, 1)

	_, err := eval.EvaluateAnswer(context.Background(), "q", "a", nil)
	assert.ErrorContains(t, err, "no score")
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `[1,2]`, extractJSON("list: [1,2] done"))
	assert.Equal(t, "plain", extractJSON("  plain  "))
}

type fakeNormalizer struct {
	err error
}

func (n *fakeNormalizer) Normalize(_ context.Context, audio []byte, _ string) ([]byte, string, error) {
	if n.err != nil {
		return nil, "", n.err
	}
	return audio, "audio/wav", nil
}

func TestTranscribe(t *testing.T) {
	gemini := &fakeGemini{transcript: "  I have worked with Kafka.  "}
	tr := NewGeminiTranscriber(gemini, &fakeNormalizer{}, zap.NewNop())

	text, err := tr.Transcribe(context.Background(), []byte("raw"), "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "I have worked with Kafka.", text)
	assert.Equal(t, "audio/wav", gemini.audioMime)
}

func TestTranscribe_NormalizerFailureSendsOriginal(t *testing.T) {
	gemini := &fakeGemini{transcript: "hello"}
	tr := NewGeminiTranscriber(gemini, &fakeNormalizer{err: errors.New("ffmpeg missing")}, zap.NewNop())

	_, err := tr.Transcribe(context.Background(), []byte("raw"), "audio/ogg")
	require.NoError(t, err)
	assert.Equal(t, "audio/ogg", gemini.audioMime)
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	tr := NewGeminiTranscriber(&fakeGemini{}, nil, zap.NewNop())
	_, err := tr.Transcribe(context.Background(), nil, "audio/webm")
	assert.Error(t, err)
}

func TestBuildRetrievalQuery(t *testing.T) {
	pb := NewPromptBuilder()
	assert.True(t, strings.HasPrefix(pb.BuildRetrievalQuery(&InterviewContext{}), "General interview questions"))
	assert.Contains(t, pb.BuildRetrievalQuery(&InterviewContext{JobTitle: "SRE"}), "for SRE.")
}

type fakeRetriever struct {
	results []SearchResult
	err     error
	query   string
}

func (r *fakeRetriever) Retrieve(_ context.Context, query string, _ []string, _ int) ([]SearchResult, error) {
	r.query = query
	return r.results, r.err
}

func TestFormatKnowledge(t *testing.T) {
	assert.Equal(t, "", FormatKnowledge(nil))

	out := FormatKnowledge([]SearchResult{
		{Text: " Ask about testing. ", DocType: KnowledgeQuestionBank, Score: 0.91},
		{Text: "Score clarity.", DocType: KnowledgeAnswerRubric, Score: 0.5},
	})
	assert.Contains(t, out, "--- "+KnowledgeQuestionBank+" 1 (relevance 0.91) ---\nAsk about testing.")
	assert.Contains(t, out, "--- "+KnowledgeAnswerRubric+" 2 (relevance 0.50) ---\nScore clarity.")
}
