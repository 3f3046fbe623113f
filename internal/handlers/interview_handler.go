package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/interview-engine/internal/middleware"
	"alfredoptarigan/interview-engine/internal/models"
	"alfredoptarigan/interview-engine/internal/repositories"
	"alfredoptarigan/interview-engine/internal/services"
)

type InterviewHandler struct {
	engine        services.SessionEngine
	access        services.AccessPolicy
	interviewRepo repositories.InterviewRepository
	jobRepo       repositories.JobRepository
	speech        *services.SpeechService
	maxAudioSize  int64
	log           *zap.Logger
}

func NewInterviewHandler(
	engine services.SessionEngine,
	access services.AccessPolicy,
	interviewRepo repositories.InterviewRepository,
	jobRepo repositories.JobRepository,
	speech *services.SpeechService,
	maxAudioSize int64,
	log *zap.Logger,
) *InterviewHandler {
	return &InterviewHandler{
		engine:        engine,
		access:        access,
		interviewRepo: interviewRepo,
		jobRepo:       jobRepo,
		speech:        speech,
		maxAudioSize:  maxAudioSize,
		log:           log.Named("interview_handler"),
	}
}

// HandleStart handles POST /interviews/start
func (h *InterviewHandler) HandleStart(c *fiber.Ctx) error {
	candidate, ok := h.candidate(c)
	if !ok {
		return respondError(c, fiber.StatusForbidden, "only candidates can start interviews")
	}

	var req models.StartInterviewRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid request payload")
	}
	if req.SubjectID == "" {
		req.SubjectID = candidate.ID
	}
	if req.SubjectID != candidate.ID {
		return respondError(c, fiber.StatusForbidden, services.ErrForbidden.Error())
	}

	start := &services.StartRequest{SubjectID: req.SubjectID, JobID: req.JobID}
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			return respondError(c, fiber.StatusBadRequest, "invalid session ID format")
		}
		if _, err := h.authorize(c, id, services.ActionAnswer); err != nil {
			return handleEngineError(c, h.log, err)
		}
		start.InterviewID = &id
	}

	turn, err := h.engine.Start(c.UserContext(), start)
	if err != nil {
		return handleEngineError(c, h.log, err)
	}

	resp := turnResponse(turn)
	if req.AudioEnabled {
		resp.QuestionAudio = h.speak(c, turn)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// HandleSubmit handles POST /interviews/submit. The answer is either JSON
// text or a multipart form carrying an audio file.
func (h *InterviewHandler) HandleSubmit(c *fiber.Ctx) error {
	var req models.SubmitAnswerRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid session ID format")
	}
	if req.TurnID == 0 {
		return respondError(c, fiber.StatusBadRequest, "turnId is required")
	}

	submit := &services.SubmitRequest{
		InterviewID: id,
		TurnID:      req.TurnID,
		AnswerText:  req.AnswerText,
	}

	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		audio, mimeType, err := h.readAudio(c)
		if err != nil {
			return respondError(c, fiber.StatusBadRequest, err.Error())
		}
		submit.Audio = audio
		submit.AudioMimeType = mimeType
	}

	if submit.AnswerText == nil && len(submit.Audio) == 0 {
		return respondError(c, fiber.StatusBadRequest, "answerText or audio is required")
	}

	if _, err := h.authorize(c, id, services.ActionAnswer); err != nil {
		return handleEngineError(c, h.log, err)
	}

	outcome, err := h.engine.SubmitAnswer(c.UserContext(), submit)
	if err != nil {
		return handleEngineError(c, h.log, err)
	}

	resp := models.SubmitAnswerResponse{
		Done:     outcome.Done,
		Score:    outcome.Score,
		Feedback: outcome.Feedback,
	}
	if outcome.Next != nil {
		resp.NextTurnID = &outcome.Next.TurnID
		resp.QuestionText = &outcome.Next.QuestionText
		resp.IsMandatory = outcome.Next.IsMandatory
		resp.TurnNumber = outcome.Next.TurnNumber
		resp.MaxTurns = outcome.Next.MaxTurns
		if req.AudioEnabled {
			resp.QuestionAudio = h.speak(c, outcome.Next)
		}
	}
	if outcome.Assessment != nil {
		resp.Summary = &outcome.Assessment.Summary
		resp.OverallScore = &outcome.Assessment.OverallScore
	}

	return c.JSON(resp)
}

// HandleFinish handles POST /interviews/finish
func (h *InterviewHandler) HandleFinish(c *fiber.Ctx) error {
	var req models.FinishInterviewRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid request payload")
	}
	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid session ID format")
	}

	if _, err := h.authorize(c, id, services.ActionAnswer); err != nil {
		return handleEngineError(c, h.log, err)
	}

	assessment, err := h.engine.Finish(c.UserContext(), id)
	if err != nil {
		return handleEngineError(c, h.log, err)
	}

	return c.JSON(models.FinishInterviewResponse{
		SessionID:    assessment.InterviewID.String(),
		Summary:      assessment.Summary,
		OverallScore: assessment.OverallScore,
		Transcript:   assessment.Transcript,
	})
}

// HandleSchedule handles POST /interviews/schedule
func (h *InterviewHandler) HandleSchedule(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return respondError(c, fiber.StatusUnauthorized, "missing identity")
	}

	var req models.ScheduleInterviewRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid request payload")
	}
	if req.SubjectID == "" {
		return respondError(c, fiber.StatusBadRequest, "subjectId is required")
	}
	if req.JobID == "" {
		return respondError(c, fiber.StatusBadRequest, "jobId is required")
	}

	draft := &models.Interview{SubjectID: req.SubjectID, JobID: &req.JobID}
	if err := h.access.Authorize(identity, draft, services.ActionSchedule); err != nil {
		return handleEngineError(c, h.log, err)
	}

	interview, err := h.engine.Schedule(c.UserContext(), req.SubjectID, &req.JobID)
	if err != nil {
		return handleEngineError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(models.ScheduleInterviewResponse{
		SessionID: interview.ID.String(),
		Status:    string(interview.Status),
	})
}

// HandleCancel handles POST /interviews/:id/cancel
func (h *InterviewHandler) HandleCancel(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid session ID format")
	}
	if _, err := h.authorize(c, id, services.ActionCancel); err != nil {
		return handleEngineError(c, h.log, err)
	}

	if err := h.engine.Cancel(c.UserContext(), id); err != nil {
		return handleEngineError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"sessionId": id.String(),
		"status":    string(models.StatusCancelled),
	})
}

// HandleCurrent handles GET /interviews/:id/current
func (h *InterviewHandler) HandleCurrent(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid session ID format")
	}
	if _, err := h.authorize(c, id, services.ActionAnswer); err != nil {
		return handleEngineError(c, h.log, err)
	}

	progress, err := h.engine.Current(c.UserContext(), id)
	if err != nil {
		return handleEngineError(c, h.log, err)
	}

	resp := fiber.Map{
		"sessionId": id.String(),
		"status":    string(progress.Status),
	}
	if progress.Turn != nil {
		resp["turn"] = turnResponse(progress.Turn)
	}
	if progress.Assessment != nil {
		resp["summary"] = progress.Assessment.Summary
		resp["overallScore"] = progress.Assessment.OverallScore
	}
	return c.JSON(resp)
}

// HandleList handles GET /interviews
func (h *InterviewHandler) HandleList(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return respondError(c, fiber.StatusUnauthorized, "missing identity")
	}

	var (
		interviews []models.Interview
		err        error
	)
	switch id := identity.(type) {
	case models.Candidate:
		interviews, err = h.interviewRepo.ListBySubject(id.ID)
	case models.Enterprise:
		var jobIDs []string
		jobIDs, err = h.jobRepo.ListIDsByEnterprise(id.ID)
		if err == nil {
			interviews, err = h.interviewRepo.ListByJobIDs(jobIDs)
		}
	}
	if err != nil {
		return handleEngineError(c, h.log, err)
	}

	resp := make([]models.InterviewSummaryResponse, 0, len(interviews))
	for i := range interviews {
		resp = append(resp, models.NewInterviewSummaryResponse(&interviews[i]))
	}
	return c.JSON(fiber.Map{"interviews": resp})
}

// HandleDetail handles GET /interviews/:id
func (h *InterviewHandler) HandleDetail(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid session ID format")
	}
	if _, err := h.authorize(c, id, services.ActionView); err != nil {
		return handleEngineError(c, h.log, err)
	}

	interview, questions, err := h.engine.Get(c.UserContext(), id)
	if err != nil {
		return handleEngineError(c, h.log, err)
	}

	policy, err := interview.PolicySnapshot()
	if err != nil {
		h.log.Warn("interview without policy snapshot", zap.String("interview_id", id.String()), zap.Error(err))
	}

	return c.JSON(models.InterviewDetailResponse{
		InterviewSummaryResponse: models.NewInterviewSummaryResponse(interview),
		Summary:                  interview.Summary,
		Transcript:               interview.Transcript,
		Questions:                models.NewQuestionDetails(questions),
		Policy:                   policy,
	})
}

// authorize loads the interview and checks the caller may perform action on it.
func (h *InterviewHandler) authorize(c *fiber.Ctx, id uuid.UUID, action services.Action) (*models.Interview, error) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return nil, services.ErrForbidden
	}
	interview, err := h.interviewRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, repositories.ErrInterviewNotFound) {
			return nil, services.ErrSessionNotFound
		}
		return nil, err
	}
	if err := h.access.Authorize(identity, interview, action); err != nil {
		return nil, err
	}
	return interview, nil
}

func (h *InterviewHandler) candidate(c *fiber.Ctx) (models.Candidate, bool) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return models.Candidate{}, false
	}
	candidate, ok := identity.(models.Candidate)
	return candidate, ok
}

func (h *InterviewHandler) readAudio(c *fiber.Ctx) ([]byte, string, error) {
	file, err := c.FormFile("audio")
	if err != nil {
		// text-only multipart submission
		return nil, "", nil
	}
	if file.Size > h.maxAudioSize {
		return nil, "", fmt.Errorf("audio file too large. Max size: %d bytes", h.maxAudioSize)
	}

	src, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio file")
	}
	defer src.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return nil, "", fmt.Errorf("failed to read audio file")
	}

	mimeType := file.Header.Get(fiber.HeaderContentType)
	if mimeType == "" || mimeType == fiber.MIMEOctetStream {
		mimeType = "audio/webm"
	}
	return buf.Bytes(), mimeType, nil
}

// speak voices the question for clients that opted into audio. Failures
// leave the response text-only.
func (h *InterviewHandler) speak(c *fiber.Ctx, turn *services.Turn) *models.AudioResponse {
	spoken := h.speech.Speak(c.UserContext(), turn.InterviewID, turn.TurnID, turn.QuestionText)
	if spoken == nil {
		return nil
	}
	return &models.AudioResponse{MimeType: spoken.MimeType, Data: spoken.Data, Ref: spoken.Ref}
}

func turnResponse(turn *services.Turn) models.TurnResponse {
	return models.TurnResponse{
		SessionID:    turn.InterviewID.String(),
		TurnID:       turn.TurnID,
		QuestionText: turn.QuestionText,
		IsMandatory:  turn.IsMandatory,
		TurnNumber:   turn.TurnNumber,
		MaxTurns:     turn.MaxTurns,
	}
}
