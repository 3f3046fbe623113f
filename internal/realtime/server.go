package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"alfredoptarigan/interview-engine/internal/auth"
	"alfredoptarigan/interview-engine/internal/metrics"
	"alfredoptarigan/interview-engine/internal/models"
	"alfredoptarigan/interview-engine/internal/services"
)

type Options struct {
	AllowedOrigins []string
	MessagesPerSec float64
	Burst          int
	// MaxAudioSize bounds a decoded spoken answer in bytes.
	MaxAudioSize int64
}

const defaultMaxAudioSize = 20 << 20

// Server is the persistent-channel transport. Each connection joins the
// room of one interview and every state change is pushed to that room.
type Server struct {
	engine   services.SessionEngine
	access   services.AccessPolicy
	tokens   *auth.TokenService
	speech   *services.SpeechService
	hub      *Hub
	opts     Options
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewServer builds the realtime transport. speech may be nil, in which case
// clients asking for audio get text only.
func NewServer(engine services.SessionEngine, access services.AccessPolicy, tokens *auth.TokenService, speech *services.SpeechService, opts Options, log *zap.Logger) *Server {
	if opts.MessagesPerSec <= 0 {
		opts.MessagesPerSec = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.MaxAudioSize <= 0 {
		opts.MaxAudioSize = defaultMaxAudioSize
	}

	s := &Server{
		engine: engine,
		access: access,
		tokens: tokens,
		speech: speech,
		hub:    NewHub(),
		opts:   opts,
		log:    log.Named("realtime"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))
	router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/ws/interview", s.HandleInterviewWS)

	return router
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(s.opts.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, origin)
}

// HandleInterviewWS upgrades GET /ws/interview?token=<jwt>. Non-browser
// clients may send the token as a bearer Authorization header instead.
func (s *Server) HandleInterviewWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	identity, err := s.tokens.Verify(token)
	if err != nil {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	log := s.log.With(zap.String("identity", identity.Subject()), zap.String("identity_type", string(identity.Type())))
	limiter := rate.NewLimiter(rate.Limit(s.opts.MessagesPerSec), s.opts.Burst)
	readLimit := int64(base64.StdEncoding.EncodedLen(int(s.opts.MaxAudioSize))) + frameOverhead
	client := newClient(conn, identity, limiter, readLimit, log)

	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()

	go client.writePump()

	ctx := r.Context()
	client.readPump(func(c *Client, frame InboundFrame) {
		s.dispatch(ctx, c, frame)
	})

	// Leaving the room is the only effect of a disconnect; the interview
	// stays where it was and can be resumed by joining again.
	if id, ok := client.Session(); ok {
		s.hub.Leave(RoomName(id.String()), client)
	}
	client.close()
	log.Debug("websocket disconnected")
}

func (s *Server) dispatch(ctx context.Context, c *Client, frame InboundFrame) {
	var err error
	switch frame.Action {
	case ActionJoin:
		err = s.handleJoin(ctx, c, frame.Data)
	case ActionStart:
		err = s.handleStart(ctx, c)
	case ActionSubmitAnswer:
		err = s.handleSubmit(ctx, c, frame.Data)
	case ActionEnd:
		err = s.handleEnd(ctx, c)
	default:
		c.Send(errorFrame("bad_request", "unknown action "+frame.Action))
		return
	}

	if err != nil {
		code, msg := errorCode(err)
		if code == "internal" {
			c.log.Error("realtime action failed", zap.String("action", frame.Action), zap.Error(err))
		}
		c.Send(errorFrame(code, msg))
	}
}

// handleJoin attaches the connection to an interview room. Without a
// session id a candidate gets a newly scheduled interview. audioEnabled
// subscribes the connection to speech_data events.
func (s *Server) handleJoin(ctx context.Context, c *Client, raw json.RawMessage) error {
	var payload JoinPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return errBadRequest
		}
	}

	var interview *models.Interview
	if payload.SessionID == "" {
		candidate, ok := c.identity.(models.Candidate)
		if !ok {
			return services.ErrForbidden
		}
		draft := &models.Interview{SubjectID: candidate.ID, JobID: payload.JobID}
		if err := s.access.Authorize(c.identity, draft, services.ActionSchedule); err != nil {
			return err
		}
		scheduled, err := s.engine.Schedule(ctx, candidate.ID, payload.JobID)
		if err != nil {
			return err
		}
		interview = scheduled
	} else {
		id, err := uuid.Parse(payload.SessionID)
		if err != nil {
			return errBadRequest
		}
		existing, _, err := s.engine.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.access.Authorize(c.identity, existing, services.ActionView); err != nil {
			return err
		}
		interview = existing
	}

	if previous, ok := c.Session(); ok && previous != interview.ID {
		s.hub.Leave(RoomName(previous.String()), c)
	}
	c.setSession(interview.ID)
	c.setAudioEnabled(payload.AudioEnabled)
	s.hub.Join(RoomName(interview.ID.String()), c)

	joined := JoinedPayload{
		SessionID: interview.ID.String(),
		Status:    string(interview.Status),
	}
	if interview.Status == models.StatusInProgress {
		progress, err := s.engine.Current(ctx, interview.ID)
		if err != nil {
			return err
		}
		joined.Status = string(progress.Status)
		if progress.Turn != nil {
			q := questionPayload(progress.Turn)
			joined.Question = &q
		}
	}

	c.Send(OutboundFrame{Event: EventJoined, Data: joined})
	return nil
}

func (s *Server) handleStart(ctx context.Context, c *Client) error {
	id, err := s.sessionFor(ctx, c, services.ActionAnswer)
	if err != nil {
		return err
	}

	turn, err := s.engine.Start(ctx, &services.StartRequest{InterviewID: &id})
	if errors.Is(err, services.ErrInvalidTransition) {
		// Reconnecting clients send start again; hand back the open turn.
		progress, cerr := s.engine.Current(ctx, id)
		if cerr != nil {
			return cerr
		}
		if progress.Turn == nil {
			return err
		}
		turn = progress.Turn
	} else if err != nil {
		return err
	}

	room := RoomName(id.String())
	introduction := s.engine.Introduction()
	s.hub.Broadcast(room, OutboundFrame{
		Event: EventInterviewStarted,
		Data: StartedPayload{
			Introduction: introduction,
			Question:     questionPayload(turn),
		},
	})
	s.speak(ctx, room, id, SpeechIntroduction, 0, introduction)
	s.speak(ctx, room, id, SpeechQuestion, turn.TurnID, turn.QuestionText)
	return nil
}

func (s *Server) handleSubmit(ctx context.Context, c *Client, raw json.RawMessage) error {
	var payload SubmitPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.TurnID == 0 {
		return errBadRequest
	}

	id, err := s.sessionFor(ctx, c, services.ActionAnswer)
	if err != nil {
		return err
	}

	req := &services.SubmitRequest{
		InterviewID: id,
		TurnID:      payload.TurnID,
		AnswerText:  payload.AnswerText,
	}
	if payload.Audio != "" {
		audio, err := base64.StdEncoding.DecodeString(payload.Audio)
		if err != nil {
			return errBadRequest
		}
		if int64(len(audio)) > s.opts.MaxAudioSize {
			return fmt.Errorf("%w: audio larger than %d bytes", errBadRequest, s.opts.MaxAudioSize)
		}
		req.Audio = audio
		req.AudioMimeType = payload.MimeType
		if req.AudioMimeType == "" {
			req.AudioMimeType = "audio/webm"
		}
	}

	outcome, err := s.engine.SubmitAnswer(ctx, req)
	if err != nil {
		return err
	}

	room := RoomName(id.String())
	if outcome.Done {
		s.hub.Broadcast(room, OutboundFrame{
			Event: EventInterviewCompleted,
			Data: CompletedPayload{
				SessionID:      id.String(),
				AnsweredTurnID: outcome.TurnID,
				Score:          outcome.Score,
				Feedback:       outcome.Feedback,
				Summary:        outcome.Assessment.Summary,
				OverallScore:   outcome.Assessment.OverallScore,
			},
		})
		return nil
	}

	s.hub.Broadcast(room, OutboundFrame{
		Event: EventNextQuestion,
		Data: NextQuestionPayload{
			AnsweredTurnID: outcome.TurnID,
			Score:          outcome.Score,
			Feedback:       outcome.Feedback,
			Question:       questionPayload(outcome.Next),
		},
	})
	s.speak(ctx, room, id, SpeechQuestion, outcome.Next.TurnID, outcome.Next.QuestionText)
	return nil
}

func (s *Server) handleEnd(ctx context.Context, c *Client) error {
	id, err := s.sessionFor(ctx, c, services.ActionAnswer)
	if err != nil {
		return err
	}

	assessment, err := s.engine.Finish(ctx, id)
	if err != nil {
		return err
	}

	s.hub.Broadcast(RoomName(id.String()), OutboundFrame{
		Event: EventInterviewCompleted,
		Data: CompletedPayload{
			SessionID:    id.String(),
			Summary:      assessment.Summary,
			OverallScore: assessment.OverallScore,
		},
	})
	return nil
}

// speak synthesizes text once and sends it to the room's clients that
// joined with audio enabled. Nothing is sent when synthesis fails.
func (s *Server) speak(ctx context.Context, room string, id uuid.UUID, kind string, turnID uint, text string) {
	if s.speech == nil {
		return
	}
	r, ok := s.hub.Room(room)
	if !ok {
		return
	}

	var listeners []*Client
	for _, c := range r.Clients() {
		if c.AudioEnabled() {
			listeners = append(listeners, c)
		}
	}
	if len(listeners) == 0 {
		return
	}

	spoken := s.speech.Speak(ctx, id, turnID, text)
	if spoken == nil {
		return
	}

	frame := OutboundFrame{
		Event: EventSpeechData,
		Data: SpeechPayload{
			SessionID: id.String(),
			Type:      kind,
			TurnID:    turnID,
			MimeType:  spoken.MimeType,
			AudioData: spoken.Data,
			Ref:       spoken.Ref,
		},
	}
	for _, c := range listeners {
		c.Send(frame)
	}
}

// sessionFor returns the joined interview after checking the caller may
// perform action on it.
func (s *Server) sessionFor(ctx context.Context, c *Client, action services.Action) (uuid.UUID, error) {
	id, ok := c.Session()
	if !ok {
		return uuid.Nil, errNotJoined
	}
	interview, _, err := s.engine.Get(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.access.Authorize(c.identity, interview, action); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func questionPayload(turn *services.Turn) QuestionPayload {
	return QuestionPayload{
		SessionID:    turn.InterviewID.String(),
		TurnID:       turn.TurnID,
		QuestionText: turn.QuestionText,
		IsMandatory:  turn.IsMandatory,
		TurnNumber:   turn.TurnNumber,
		MaxTurns:     turn.MaxTurns,
	}
}

var (
	errBadRequest = errors.New("malformed payload")
	errNotJoined  = errors.New("join an interview first")
)

func errorCode(err error) (string, string) {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, services.ErrEmptyAnswer):
		return "bad_request", err.Error()
	case errors.Is(err, errNotJoined):
		return "not_joined", err.Error()
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, services.ErrJobNotFound):
		return "not_found", err.Error()
	case errors.Is(err, services.ErrInvalidTurn):
		return "invalid_turn", err.Error()
	case errors.Is(err, services.ErrInvalidTransition):
		return "invalid_transition", err.Error()
	case errors.Is(err, services.ErrForbidden):
		return "forbidden", err.Error()
	default:
		return "internal", "internal server error"
	}
}
