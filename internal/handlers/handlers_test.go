package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"alfredoptarigan/interview-engine/internal/auth"
	"alfredoptarigan/interview-engine/internal/config"
	"alfredoptarigan/interview-engine/internal/middleware"
	"alfredoptarigan/interview-engine/internal/models"
	"alfredoptarigan/interview-engine/internal/repositories"
	"alfredoptarigan/interview-engine/internal/services"
)

type stubGenerator struct{ calls int }

func (g *stubGenerator) GenerateQuestion(_ context.Context, _ *services.QuestionContext) (string, error) {
	g.calls++
	return fmt.Sprintf("Question %d", g.calls), nil
}

func (g *stubGenerator) GenerateSummary(_ context.Context, _ *services.SummaryContext) (*services.SummaryResult, error) {
	score := 75.0
	return &services.SummaryResult{Summary: "Good overall.", OverallScore: &score}, nil
}

type stubEvaluator struct{}

func (stubEvaluator) EvaluateAnswer(_ context.Context, _, _ string, _ *services.InterviewContext) (*services.AnswerEvaluation, error) {
	score := 70.0
	return &services.AnswerEvaluation{Score: &score, Feedback: "Fine."}, nil
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	return fmt.Sprintf("transcribed %d bytes", len(audio)), nil
}

type stubContexts struct{}

func (stubContexts) Build(_ context.Context, _ string, _ *models.Job) services.InterviewContext {
	return services.InterviewContext{}
}

type stubSynthesizer struct{}

func (stubSynthesizer) Synthesize(_ context.Context, text string) ([]byte, string, error) {
	if text == "Why this company?" {
		return nil, "", errors.New("voice unavailable")
	}
	return []byte("spoken: " + text), "audio/wav", nil
}

type testApp struct {
	app    *fiber.App
	db     *gorm.DB
	tokens *auth.TokenService
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	dsn := fmt.Sprintf("file:%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.Migrate(db))

	settings, _ := json.Marshal(models.InterviewSettings{MustAskQuestions: []string{"Why this company?"}})
	require.NoError(t, db.Create(&models.Job{ID: "job-1", EnterpriseID: "ent-1", Title: "Backend", InterviewSettings: datatypes.JSON(settings)}).Error)

	interviewRepo := repositories.NewInterviewRepository(db)
	jobRepo := repositories.NewJobRepository(db)
	docRepo := repositories.NewDocumentRepository(db)

	store := services.NewMemorySessionStore(time.Hour, 0)
	t.Cleanup(store.Close)

	defaults := models.NewPolicyDefaults()
	defaults.General.MaxTurns = 2
	defaults.JobSpecific.MaxTurns = 2

	engine := services.NewSessionEngine(services.EngineDeps{
		Interviews:  interviewRepo,
		Ledger:      repositories.NewInterviewQuestionRepository(db),
		Jobs:        jobRepo,
		Contexts:    stubContexts{},
		Generator:   &stubGenerator{},
		Evaluator:   stubEvaluator{},
		Transcriber: stubTranscriber{},
		Store:       store,
		Defaults:    defaults,
		Timeout:     time.Second,
	})
	access := services.NewAccessPolicy(jobRepo)

	storage := services.NewStorageService(t.TempDir())
	require.NoError(t, storage.EnsureUploadDir())

	log := zap.NewNop()
	speech := services.NewSpeechService(stubSynthesizer{}, nil, time.Second, log)
	interviewHandler := NewInterviewHandler(engine, access, interviewRepo, jobRepo, speech, 1024, log)
	uploadHandler := NewUploadHandler(docRepo, storage, 1024, log)
	reportHandler := NewReportHandler(engine, access, services.NewReportService(), log)

	tokens := auth.NewTokenService("test-secret", time.Hour)
	app := fiber.New()
	secured := app.Group("/api/v1", middleware.RequireIdentity(tokens))
	secured.Post("/interviews/start", interviewHandler.HandleStart)
	secured.Post("/interviews/submit", interviewHandler.HandleSubmit)
	secured.Post("/interviews/finish", interviewHandler.HandleFinish)
	secured.Post("/interviews/schedule", interviewHandler.HandleSchedule)
	secured.Get("/interviews", interviewHandler.HandleList)
	secured.Get("/interviews/:id", interviewHandler.HandleDetail)
	secured.Get("/interviews/:id/current", interviewHandler.HandleCurrent)
	secured.Post("/interviews/:id/cancel", interviewHandler.HandleCancel)
	secured.Get("/interviews/:id/report", reportHandler.HandleGetReport)
	secured.Post("/documents/cv", uploadHandler.HandleUploadCV)

	return &testApp{app: app, db: db, tokens: tokens}
}

func (a *testApp) token(t *testing.T, identity models.Identity) string {
	t.Helper()
	token, err := a.tokens.Issue(identity)
	require.NoError(t, err)
	return token
}

func (a *testApp) do(t *testing.T, req *http.Request, token string) (*http.Response, map[string]interface{}) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := map[string]interface{}{}
	if bytes.HasPrefix(raw, []byte("{")) {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp, body
}

func (a *testApp) doJSON(t *testing.T, method, path, token string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	return a.do(t, req, token)
}

func multipartRequest(t *testing.T, path string, fields map[string]string, fileField, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestRequiresBearerToken(t *testing.T) {
	a := setupApp(t)

	resp, _ := a.doJSON(t, http.MethodGet, "/api/v1/interviews", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = a.doJSON(t, http.MethodGet, "/api/v1/interviews", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInterviewFlow(t *testing.T) {
	a := setupApp(t)
	token := a.token(t, models.Candidate{ID: "cand-1"})

	resp, body := a.doJSON(t, http.MethodPost, "/api/v1/interviews/start", token, map[string]interface{}{"jobId": "job-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Why this company?", body["questionText"])
	assert.Equal(t, true, body["isMandatory"])
	sessionID := body["sessionId"].(string)
	turnID := body["turnId"]

	resp, body = a.doJSON(t, http.MethodGet, "/api/v1/interviews/"+sessionID+"/current", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "in_progress", body["status"])
	assert.Equal(t, turnID, body["turn"].(map[string]interface{})["turnId"])

	resp, body = a.doJSON(t, http.MethodPost, "/api/v1/interviews/submit", token, map[string]interface{}{
		"sessionId":  sessionID,
		"turnId":     turnID,
		"answerText": "I like your product.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["done"])
	assert.Equal(t, 70.0, body["score"])
	assert.Equal(t, "Question 1", body["questionText"])
	nextTurn := body["nextTurnId"]

	resp, body = a.doJSON(t, http.MethodPost, "/api/v1/interviews/submit", token, map[string]interface{}{
		"sessionId":  sessionID,
		"turnId":     nextTurn,
		"answerText": "Five years of Go.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["done"])
	assert.Equal(t, 75.0, body["overallScore"])
	assert.Equal(t, "Good overall.", body["summary"])

	resp, body = a.doJSON(t, http.MethodPost, "/api/v1/interviews/finish", token, map[string]interface{}{"sessionId": sessionID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 75.0, body["overallScore"])
	assert.Contains(t, body["transcript"], "Q: Why this company?\nA: I like your product.")

	resp, body = a.doJSON(t, http.MethodGet, "/api/v1/interviews/"+sessionID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])
	assert.Len(t, body["questions"], 2)

	resp, body = a.doJSON(t, http.MethodGet, "/api/v1/interviews", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["interviews"], 1)

	// completed interviews accept no more answers
	resp, _ = a.doJSON(t, http.MethodPost, "/api/v1/interviews/submit", token, map[string]interface{}{
		"sessionId":  sessionID,
		"turnId":     nextTurn,
		"answerText": "late",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSpokenQuestions(t *testing.T) {
	a := setupApp(t)
	token := a.token(t, models.Candidate{ID: "cand-1"})

	resp, body := a.doJSON(t, http.MethodPost, "/api/v1/interviews/start", token, map[string]interface{}{"audioEnabled": true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	audio, ok := body["questionAudio"].(map[string]interface{})
	require.True(t, ok, "body: %v", body)
	assert.Equal(t, "audio/wav", audio["mimeType"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("spoken: Question 1")), audio["data"])
	sessionID := body["sessionId"].(string)

	resp, body = a.doJSON(t, http.MethodPost, "/api/v1/interviews/submit", token, map[string]interface{}{
		"sessionId":    sessionID,
		"turnId":       body["turnId"],
		"answerText":   "Channels.",
		"audioEnabled": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	audio, ok = body["questionAudio"].(map[string]interface{})
	require.True(t, ok, "body: %v", body)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("spoken: Question 2")), audio["data"])

	// audio is opt-in
	resp, body = a.doJSON(t, http.MethodPost, "/api/v1/interviews/start", a.token(t, models.Candidate{ID: "cand-2"}), map[string]interface{}{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotContains(t, body, "questionAudio")

	// a failed synthesis still returns the question
	resp, body = a.doJSON(t, http.MethodPost, "/api/v1/interviews/start", a.token(t, models.Candidate{ID: "cand-3"}),
		map[string]interface{}{"jobId": "job-1", "audioEnabled": true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Why this company?", body["questionText"])
	assert.NotContains(t, body, "questionAudio")
}

func TestStart_Validation(t *testing.T) {
	a := setupApp(t)

	resp, _ := a.doJSON(t, http.MethodPost, "/api/v1/interviews/start", a.token(t, models.Enterprise{ID: "ent-1"}), map[string]interface{}{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	candidate := a.token(t, models.Candidate{ID: "cand-1"})
	resp, _ = a.doJSON(t, http.MethodPost, "/api/v1/interviews/start", candidate, map[string]interface{}{"subjectId": "someone-else"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = a.doJSON(t, http.MethodPost, "/api/v1/interviews/start", candidate, map[string]interface{}{"jobId": "missing"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = a.doJSON(t, http.MethodPost, "/api/v1/interviews/start", candidate, map[string]interface{}{"sessionId": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmit_Errors(t *testing.T) {
	a := setupApp(t)
	owner := a.token(t, models.Candidate{ID: "cand-1"})

	resp, body := a.doJSON(t, http.MethodPost, "/api/v1/interviews/start", owner, map[string]interface{}{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := body["sessionId"].(string)
	turnID := body["turnId"].(float64)

	resp, _ = a.doJSON(t, http.MethodPost, "/api/v1/interviews/submit", owner, map[string]interface{}{"sessionId": sessionID, "turnId": turnID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = a.doJSON(t, http.MethodPost, "/api/v1/interviews/submit", owner, map[string]interface{}{
		"sessionId": sessionID, "turnId": turnID + 10, "answerText": "x",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = a.doJSON(t, http.MethodPost, "/api/v1/interviews/submit", owner, map[string]interface{}{
		"sessionId": "5f0c3a34-47a0-4f27-9d0b-0a4f6c1b0b11", "turnId": 1, "answerText": "x",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	other := a.token(t, models.Candidate{ID: "cand-2"})
	resp, _ = a.doJSON(t, http.MethodPost, "/api/v1/interviews/submit", other, map[string]interface{}{
		"sessionId": sessionID, "turnId": turnID, "answerText": "x",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = a.doJSON(t, http.MethodPost, "/api/v1/interviews/submit", owner, map[string]interface{}{"sessionId": "bad", "turnId": 1, "answerText": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid session ID format", body["error"])
}

func TestSubmit_AudioMultipart(t *testing.T) {
	a := setupApp(t)
	token := a.token(t, models.Candidate{ID: "cand-1"})

	resp, body := a.doJSON(t, http.MethodPost, "/api/v1/interviews/start", token, map[string]interface{}{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := body["sessionId"].(string)
	turnID := fmt.Sprintf("%.0f", body["turnId"].(float64))

	req := multipartRequest(t, "/api/v1/interviews/submit",
		map[string]string{"sessionId": sessionID, "turnId": turnID},
		"audio", "answer.webm", []byte("0123456789"))
	resp, body = a.do(t, req, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["done"])

	resp, body = a.doJSON(t, http.MethodGet, "/api/v1/interviews/"+sessionID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := body["questions"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "transcribed 10 bytes", first["answerText"])

	big := multipartRequest(t, "/api/v1/interviews/submit",
		map[string]string{"sessionId": sessionID, "turnId": "2"},
		"audio", "answer.webm", bytes.Repeat([]byte("x"), 2048))
	resp, _ = a.do(t, big, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScheduleAndCancel(t *testing.T) {
	a := setupApp(t)
	enterprise := a.token(t, models.Enterprise{ID: "ent-1"})

	resp, _ := a.doJSON(t, http.MethodPost, "/api/v1/interviews/schedule", a.token(t, models.Enterprise{ID: "ent-2"}),
		map[string]interface{}{"subjectId": "cand-1", "jobId": "job-1"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = a.doJSON(t, http.MethodPost, "/api/v1/interviews/schedule", enterprise, map[string]interface{}{"subjectId": "cand-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// candidates schedule only for themselves
	resp, _ = a.doJSON(t, http.MethodPost, "/api/v1/interviews/schedule", a.token(t, models.Candidate{ID: "cand-2"}),
		map[string]interface{}{"subjectId": "cand-1", "jobId": "job-1"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := a.doJSON(t, http.MethodPost, "/api/v1/interviews/schedule", enterprise,
		map[string]interface{}{"subjectId": "cand-1", "jobId": "job-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "scheduled", body["status"])
	sessionID := body["sessionId"].(string)

	resp, body = a.doJSON(t, http.MethodGet, "/api/v1/interviews", enterprise, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["interviews"], 1)

	resp, _ = a.doJSON(t, http.MethodPost, "/api/v1/interviews/"+sessionID+"/cancel", enterprise, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	candidate := a.token(t, models.Candidate{ID: "cand-1"})
	resp, _ = a.doJSON(t, http.MethodPost, "/api/v1/interviews/start", candidate, map[string]interface{}{"sessionId": sessionID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = a.doJSON(t, http.MethodGet, "/api/v1/interviews/"+sessionID+"/current", candidate, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])
	assert.NotContains(t, body, "turn")
}

func TestStart_ScheduledByEnterprise(t *testing.T) {
	a := setupApp(t)

	resp, body := a.doJSON(t, http.MethodPost, "/api/v1/interviews/schedule", a.token(t, models.Enterprise{ID: "ent-1"}),
		map[string]interface{}{"subjectId": "cand-1", "jobId": "job-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := body["sessionId"].(string)

	resp, _ = a.doJSON(t, http.MethodPost, "/api/v1/interviews/start", a.token(t, models.Candidate{ID: "cand-2"}), map[string]interface{}{"sessionId": sessionID})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = a.doJSON(t, http.MethodPost, "/api/v1/interviews/start", a.token(t, models.Candidate{ID: "cand-1"}), map[string]interface{}{"sessionId": sessionID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, sessionID, body["sessionId"])
	assert.Equal(t, "Why this company?", body["questionText"])
}

func TestReport(t *testing.T) {
	a := setupApp(t)
	token := a.token(t, models.Candidate{ID: "cand-1"})

	resp, body := a.doJSON(t, http.MethodPost, "/api/v1/interviews/start", token, map[string]interface{}{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := body["sessionId"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/interviews/"+sessionID+"/report", nil)
	resp, _ = a.do(t, req, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "interview-"+sessionID+".xlsx")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/interviews/"+sessionID+"/report", nil)
	resp, _ = a.do(t, req, a.token(t, models.Enterprise{ID: "ent-1"}))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUploadCV(t *testing.T) {
	a := setupApp(t)
	token := a.token(t, models.Candidate{ID: "cand-1"})

	resp, body := a.do(t, multipartRequest(t, "/api/v1/documents/cv", nil, "cv", "resume.pdf", []byte("%PDF-1.4")), token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "CV uploaded successfully", body["message"])

	var doc models.Document
	require.NoError(t, a.db.Where("subject_id = ?", "cand-1").First(&doc).Error)
	assert.Equal(t, models.DocumentTypeCV, doc.FileType)
	assert.FileExists(t, doc.FilePath)

	resp, _ = a.do(t, multipartRequest(t, "/api/v1/documents/cv", nil, "cv", "resume.txt", []byte("text")), token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = a.do(t, multipartRequest(t, "/api/v1/documents/cv", nil, "", "", nil), token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = a.do(t, multipartRequest(t, "/api/v1/documents/cv", nil, "cv", "resume.pdf", []byte("%PDF")), a.token(t, models.Enterprise{ID: "ent-1"}))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusFor(services.ErrSessionNotFound))
	assert.Equal(t, http.StatusNotFound, StatusFor(fmt.Errorf("wrapped: %w", services.ErrJobNotFound)))
	assert.Equal(t, http.StatusConflict, StatusFor(services.ErrInvalidTurn))
	assert.Equal(t, http.StatusConflict, StatusFor(services.ErrInvalidTransition))
	assert.Equal(t, http.StatusForbidden, StatusFor(services.ErrForbidden))
	assert.Equal(t, http.StatusBadRequest, StatusFor(services.ErrEmptyAnswer))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
