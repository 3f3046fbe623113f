package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"alfredoptarigan/interview-engine/internal/auth"
	"alfredoptarigan/interview-engine/internal/config"
	"alfredoptarigan/interview-engine/internal/models"
	"alfredoptarigan/interview-engine/internal/repositories"
	"alfredoptarigan/interview-engine/internal/services"
)

type stubGenerator struct{}

func (stubGenerator) GenerateQuestion(_ context.Context, qc *services.QuestionContext) (string, error) {
	return fmt.Sprintf("Question after %d answers", len(qc.History)), nil
}

func (stubGenerator) GenerateSummary(_ context.Context, _ *services.SummaryContext) (*services.SummaryResult, error) {
	score := 64.0
	return &services.SummaryResult{Summary: "Adequate.", OverallScore: &score}, nil
}

type stubEvaluator struct{}

func (stubEvaluator) EvaluateAnswer(_ context.Context, _, _ string, _ *services.InterviewContext) (*services.AnswerEvaluation, error) {
	score := 60.0
	return &services.AnswerEvaluation{Score: &score, Feedback: "Okay."}, nil
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	return string(audio), nil
}

type stubContexts struct{}

func (stubContexts) Build(_ context.Context, _ string, _ *models.Job) services.InterviewContext {
	return services.InterviewContext{}
}

type stubSynthesizer struct{}

func (stubSynthesizer) Synthesize(_ context.Context, text string) ([]byte, string, error) {
	return []byte("spoken: " + text), "audio/wav", nil
}

type wsFixture struct {
	server *Server
	http   *httptest.Server
	tokens *auth.TokenService
}

func setupServer(t *testing.T, opts Options) *wsFixture {
	t.Helper()
	return setupServerWithSpeech(t, opts, nil)
}

func setupServerWithSpeech(t *testing.T, opts Options, speech *services.SpeechService) *wsFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.Migrate(db))

	defaults := models.NewPolicyDefaults()
	defaults.General.MaxTurns = 2
	jobs := repositories.NewJobRepository(db)

	engine := services.NewSessionEngine(services.EngineDeps{
		Interviews:  repositories.NewInterviewRepository(db),
		Ledger:      repositories.NewInterviewQuestionRepository(db),
		Jobs:        jobs,
		Contexts:    stubContexts{},
		Generator:   stubGenerator{},
		Evaluator:   stubEvaluator{},
		Transcriber: stubTranscriber{},
		Defaults:    defaults,
		Timeout:     time.Second,
	})

	tokens := auth.NewTokenService("ws-secret", time.Hour)
	server := NewServer(engine, services.NewAccessPolicy(jobs), tokens, speech, opts, zap.NewNop())
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &wsFixture{server: server, http: ts, tokens: tokens}
}

func (f *wsFixture) dial(t *testing.T, identity models.Identity) *websocket.Conn {
	t.Helper()
	token, err := f.tokens.Issue(identity)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws/interview?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type received struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, conn *websocket.Conn, action string, data interface{}) {
	t.Helper()
	frame := map[string]interface{}{"action": action}
	if data != nil {
		frame["data"] = data
	}
	require.NoError(t, conn.WriteJSON(frame))
}

func expect(t *testing.T, conn *websocket.Conn, event string, into interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame received
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, event, frame.Event, "payload: %s", frame.Data)
	if into != nil {
		require.NoError(t, json.Unmarshal(frame.Data, into))
	}
}

func expectError(t *testing.T, conn *websocket.Conn, code string) {
	t.Helper()
	var payload ErrorPayload
	expect(t, conn, EventError, &payload)
	assert.Equal(t, code, payload.Code)
}

func TestInterviewOverWebsocket(t *testing.T) {
	f := setupServer(t, Options{})
	conn := f.dial(t, models.Candidate{ID: "cand-1"})

	send(t, conn, ActionJoin, map[string]interface{}{})
	var joined JoinedPayload
	expect(t, conn, EventJoined, &joined)
	assert.Equal(t, string(models.StatusScheduled), joined.Status)
	assert.Nil(t, joined.Question)

	send(t, conn, ActionStart, nil)
	var started StartedPayload
	expect(t, conn, EventInterviewStarted, &started)
	assert.Equal(t, models.DefaultIntroduction, started.Introduction)
	assert.Equal(t, "Question after 0 answers", started.Question.QuestionText)
	assert.Equal(t, 1, started.Question.TurnNumber)
	assert.Equal(t, joined.SessionID, started.Question.SessionID)

	// a second connection of the same candidate follows the room
	observer := f.dial(t, models.Candidate{ID: "cand-1"})
	send(t, observer, ActionJoin, map[string]interface{}{"sessionId": joined.SessionID})
	var resumed JoinedPayload
	expect(t, observer, EventJoined, &resumed)
	assert.Equal(t, string(models.StatusInProgress), resumed.Status)
	require.NotNil(t, resumed.Question)
	assert.Equal(t, started.Question.TurnID, resumed.Question.TurnID)

	send(t, conn, ActionSubmitAnswer, map[string]interface{}{"turnId": started.Question.TurnID, "answerText": "Channels and goroutines."})
	var next NextQuestionPayload
	expect(t, conn, EventNextQuestion, &next)
	assert.Equal(t, started.Question.TurnID, next.AnsweredTurnID)
	require.NotNil(t, next.Score)
	assert.Equal(t, 60.0, *next.Score)
	assert.Equal(t, "Question after 1 answers", next.Question.QuestionText)

	var observed NextQuestionPayload
	expect(t, observer, EventNextQuestion, &observed)
	assert.Equal(t, next.Question.TurnID, observed.Question.TurnID)

	send(t, conn, ActionSubmitAnswer, map[string]interface{}{"turnId": next.Question.TurnID, "audio": "c3BlYWtpbmc=", "mimeType": "audio/ogg"})
	var completed CompletedPayload
	expect(t, conn, EventInterviewCompleted, &completed)
	assert.Equal(t, joined.SessionID, completed.SessionID)
	assert.Equal(t, 64.0, completed.OverallScore)
	assert.Equal(t, "Adequate.", completed.Summary)
	expect(t, observer, EventInterviewCompleted, nil)

	// end after completion returns the stored assessment
	send(t, conn, ActionEnd, nil)
	var ended CompletedPayload
	expect(t, conn, EventInterviewCompleted, &ended)
	assert.Equal(t, 64.0, ended.OverallScore)
}

func TestStartAgainReturnsOpenTurn(t *testing.T) {
	f := setupServer(t, Options{})
	conn := f.dial(t, models.Candidate{ID: "cand-1"})

	send(t, conn, ActionJoin, nil)
	expect(t, conn, EventJoined, nil)
	send(t, conn, ActionStart, nil)
	var first StartedPayload
	expect(t, conn, EventInterviewStarted, &first)

	send(t, conn, ActionStart, nil)
	var again StartedPayload
	expect(t, conn, EventInterviewStarted, &again)
	assert.Equal(t, first.Question.TurnID, again.Question.TurnID)
}

func TestWebsocketErrors(t *testing.T) {
	f := setupServer(t, Options{MessagesPerSec: 100, Burst: 50})
	conn := f.dial(t, models.Candidate{ID: "cand-1"})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	expectError(t, conn, "bad_request")

	send(t, conn, "dance", nil)
	expectError(t, conn, "bad_request")

	send(t, conn, ActionSubmitAnswer, map[string]interface{}{"turnId": 1, "answerText": "x"})
	expectError(t, conn, "not_joined")

	send(t, conn, ActionJoin, map[string]interface{}{"sessionId": uuid.NewString()})
	expectError(t, conn, "not_found")

	send(t, conn, ActionJoin, map[string]interface{}{"sessionId": "nope"})
	expectError(t, conn, "bad_request")

	send(t, conn, ActionJoin, nil)
	var joined JoinedPayload
	expect(t, conn, EventJoined, &joined)

	send(t, conn, ActionEnd, nil)
	expectError(t, conn, "invalid_transition")

	send(t, conn, ActionStart, nil)
	var started StartedPayload
	expect(t, conn, EventInterviewStarted, &started)

	send(t, conn, ActionSubmitAnswer, map[string]interface{}{"turnId": started.Question.TurnID + 5, "answerText": "x"})
	expectError(t, conn, "invalid_turn")

	send(t, conn, ActionSubmitAnswer, map[string]interface{}{"turnId": started.Question.TurnID})
	expectError(t, conn, "bad_request")

	intruder := f.dial(t, models.Candidate{ID: "cand-2"})
	send(t, intruder, ActionJoin, map[string]interface{}{"sessionId": joined.SessionID})
	expectError(t, intruder, "forbidden")

	enterprise := f.dial(t, models.Enterprise{ID: "ent-1"})
	send(t, enterprise, ActionJoin, nil)
	expectError(t, enterprise, "forbidden")
}

func TestSpeechDataForAudioClients(t *testing.T) {
	speech := services.NewSpeechService(stubSynthesizer{}, nil, time.Second, zap.NewNop())
	f := setupServerWithSpeech(t, Options{}, speech)
	conn := f.dial(t, models.Candidate{ID: "cand-1"})

	send(t, conn, ActionJoin, map[string]interface{}{"audioEnabled": true})
	var joined JoinedPayload
	expect(t, conn, EventJoined, &joined)

	send(t, conn, ActionStart, nil)
	var started StartedPayload
	expect(t, conn, EventInterviewStarted, &started)

	var intro SpeechPayload
	expect(t, conn, EventSpeechData, &intro)
	assert.Equal(t, SpeechIntroduction, intro.Type)
	assert.Zero(t, intro.TurnID)
	assert.Equal(t, "audio/wav", intro.MimeType)
	assert.Equal(t, []byte("spoken: "+models.DefaultIntroduction), intro.AudioData)

	var question SpeechPayload
	expect(t, conn, EventSpeechData, &question)
	assert.Equal(t, SpeechQuestion, question.Type)
	assert.Equal(t, started.Question.TurnID, question.TurnID)
	assert.Equal(t, joined.SessionID, question.SessionID)
	assert.Equal(t, []byte("spoken: Question after 0 answers"), question.AudioData)

	// a text-only follower of the same room gets no audio
	observer := f.dial(t, models.Candidate{ID: "cand-1"})
	send(t, observer, ActionJoin, map[string]interface{}{"sessionId": joined.SessionID})
	expect(t, observer, EventJoined, nil)

	send(t, conn, ActionSubmitAnswer, map[string]interface{}{"turnId": started.Question.TurnID, "answerText": "Goroutines."})
	var next NextQuestionPayload
	expect(t, conn, EventNextQuestion, &next)
	expect(t, conn, EventSpeechData, &question)
	assert.Equal(t, next.Question.TurnID, question.TurnID)

	expect(t, observer, EventNextQuestion, nil)
	send(t, observer, "dance", nil)
	expectError(t, observer, "bad_request")
}

func TestAudioLargerThanLimitIsRejected(t *testing.T) {
	f := setupServer(t, Options{MaxAudioSize: 4})
	conn := f.dial(t, models.Candidate{ID: "cand-1"})

	send(t, conn, ActionJoin, nil)
	expect(t, conn, EventJoined, nil)
	send(t, conn, ActionStart, nil)
	var started StartedPayload
	expect(t, conn, EventInterviewStarted, &started)

	send(t, conn, ActionSubmitAnswer, map[string]interface{}{
		"turnId": started.Question.TurnID,
		"audio":  base64.StdEncoding.EncodeToString([]byte("too long")),
	})
	var payload ErrorPayload
	expect(t, conn, EventError, &payload)
	assert.Equal(t, "bad_request", payload.Code)
	assert.Contains(t, payload.Message, "4 bytes")

	send(t, conn, ActionSubmitAnswer, map[string]interface{}{
		"turnId": started.Question.TurnID,
		"audio":  base64.StdEncoding.EncodeToString([]byte("ok!!")),
	})
	var next NextQuestionPayload
	expect(t, conn, EventNextQuestion, &next)
	assert.Equal(t, started.Question.TurnID, next.AnsweredTurnID)
}

func TestReadPumpRenewsDeadlineAfterSlowFrame(t *testing.T) {
	handled := make(chan string, 2)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := newClient(conn, models.Candidate{ID: "c"}, rate.NewLimiter(rate.Inf, 1), 1<<20, zap.NewNop())
		c.pongWait = 150 * time.Millisecond
		c.readPump(func(_ *Client, frame InboundFrame) {
			if frame.Action == "slow" {
				time.Sleep(400 * time.Millisecond)
			}
			handled <- frame.Action
		})
	}))
	t.Cleanup(ts.Close)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	send(t, conn, "slow", nil)
	require.Equal(t, "slow", <-handled)
	send(t, conn, "fast", nil)

	select {
	case action := <-handled:
		assert.Equal(t, "fast", action)
	case <-time.After(2 * time.Second):
		t.Fatal("frame after a slow handler was not read")
	}
}

func TestRateLimit(t *testing.T) {
	f := setupServer(t, Options{MessagesPerSec: 0.001, Burst: 1})
	conn := f.dial(t, models.Candidate{ID: "cand-1"})

	send(t, conn, "dance", nil)
	expectError(t, conn, "bad_request")

	send(t, conn, "dance", nil)
	expectError(t, conn, "rate_limited")
}

func TestRejectsMissingToken(t *testing.T) {
	f := setupServer(t, Options{})
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws/interview"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAcceptsBearerHeader(t *testing.T) {
	f := setupServer(t, Options{})
	token, err := f.tokens.Issue(models.Candidate{ID: "cand-1"})
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws/interview"
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + token}})
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	conn.Close()
}

func TestCheckOrigin(t *testing.T) {
	f := setupServer(t, Options{AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/ws/interview", nil)
	assert.True(t, f.server.checkOrigin(req))

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, f.server.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, f.server.checkOrigin(req))
}

func TestHealth(t *testing.T) {
	f := setupServer(t, Options{})
	resp, err := http.Get(f.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func testClient() *Client {
	return newClient(nil, models.Candidate{ID: "c"}, rate.NewLimiter(rate.Inf, 1), 1<<20, zap.NewNop())
}

func TestHub_BroadcastAndLeave(t *testing.T) {
	hub := NewHub()
	a, b, outsider := testClient(), testClient(), testClient()

	hub.Join("interview_1", a)
	hub.Join("interview_1", b)
	hub.Join("interview_2", outsider)

	hub.Broadcast("interview_1", OutboundFrame{Event: EventNextQuestion})
	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 1)
	assert.Len(t, outsider.send, 0)

	room, ok := hub.Room("interview_1")
	require.True(t, ok)
	assert.Equal(t, 2, room.Size())

	hub.Leave("interview_1", a)
	hub.Leave("interview_1", b)
	_, ok = hub.Room("interview_1")
	assert.False(t, ok)

	// broadcasting to an empty room is a no-op
	hub.Broadcast("interview_1", OutboundFrame{Event: EventNextQuestion})
}

func TestClient_SlowConsumerIsClosed(t *testing.T) {
	c := testClient()
	for i := 0; i < sendBuffer+1; i++ {
		c.Send(OutboundFrame{Event: EventNextQuestion})
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	assert.True(t, closed)

	// further sends and closes are ignored
	c.Send(OutboundFrame{Event: EventNextQuestion})
	c.close()
}

func TestErrorCode(t *testing.T) {
	code, msg := errorCode(fmt.Errorf("lookup: %w", services.ErrSessionNotFound))
	assert.Equal(t, "not_found", code)
	assert.Contains(t, msg, "not found")

	code, msg = errorCode(fmt.Errorf("db exploded"))
	assert.Equal(t, "internal", code)
	assert.Equal(t, "internal server error", msg)
}

func TestRoomName(t *testing.T) {
	assert.Equal(t, "interview_abc", RoomName("abc"))
}
