package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"alfredoptarigan/interview-engine/internal/metrics"
	"alfredoptarigan/interview-engine/internal/models"
	"alfredoptarigan/interview-engine/internal/repositories"
	"alfredoptarigan/interview-engine/internal/tracing"
)

// Turn is a question handed to the candidate.
type Turn struct {
	InterviewID  uuid.UUID
	TurnID       uint
	QuestionText string
	IsMandatory  bool
	TurnNumber   int
	MaxTurns     int
}

// Assessment is the final result of a completed interview.
type Assessment struct {
	InterviewID  uuid.UUID
	Summary      string
	OverallScore float64
	Transcript   string
	EndedAt      time.Time
}

type StartRequest struct {
	SubjectID string
	JobID     *string
	// InterviewID starts a previously scheduled interview. When nil a new
	// interview is created directly in progress.
	InterviewID *uuid.UUID
}

type SubmitRequest struct {
	InterviewID   uuid.UUID
	TurnID        uint
	AnswerText    *string
	Audio         []byte
	AudioMimeType string
}

// AnswerOutcome is the result of one submitted answer. Exactly one of Next
// and Assessment is set.
type AnswerOutcome struct {
	TurnID     uint
	Score      *float64
	Feedback   string
	Done       bool
	Next       *Turn
	Assessment *Assessment
}

// Progress is the resumable position of an interview.
type Progress struct {
	Status     models.InterviewStatus
	Turn       *Turn
	Assessment *Assessment
}

// SessionEngine drives interviews through the turn protocol. It is shared
// by every transport and serialises transitions per interview.
type SessionEngine interface {
	Schedule(ctx context.Context, subjectID string, jobID *string) (*models.Interview, error)
	Start(ctx context.Context, req *StartRequest) (*Turn, error)
	SubmitAnswer(ctx context.Context, req *SubmitRequest) (*AnswerOutcome, error)
	Finish(ctx context.Context, interviewID uuid.UUID) (*Assessment, error)
	Cancel(ctx context.Context, interviewID uuid.UUID) error
	Expire(ctx context.Context, interviewID uuid.UUID) error
	Current(ctx context.Context, interviewID uuid.UUID) (*Progress, error)
	Get(ctx context.Context, interviewID uuid.UUID) (*models.Interview, []models.InterviewQuestion, error)
	Introduction() string
}

type EngineDeps struct {
	Interviews  repositories.InterviewRepository
	Ledger      repositories.InterviewQuestionRepository
	Jobs        repositories.JobRepository
	Contexts    ContextProvider
	Generator   ContentGenerator
	Evaluator   ResponseEvaluator
	Transcriber TranscriptionProvider
	// Audio is optional; answers are not archived when nil.
	Audio    AudioArchive
	Store    SessionStore
	Locker   Locker
	Defaults *models.PolicyDefaults
	// Timeout bounds each collaborator call. Zero disables the bound.
	Timeout time.Duration
	Logger  *zap.Logger
	Now     func() time.Time
}

type sessionEngine struct {
	interviews  repositories.InterviewRepository
	ledger      repositories.InterviewQuestionRepository
	jobs        repositories.JobRepository
	contexts    ContextProvider
	generator   ContentGenerator
	evaluator   ResponseEvaluator
	transcriber TranscriptionProvider
	audio       AudioArchive
	store       SessionStore
	locker      Locker
	defaults    *models.PolicyDefaults
	timeout     time.Duration
	log         *zap.Logger
	now         func() time.Time
	tracer      trace.Tracer
}

func NewSessionEngine(deps EngineDeps) SessionEngine {
	defaults := deps.Defaults
	if defaults == nil {
		defaults = models.NewPolicyDefaults()
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	locker := deps.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}

	return &sessionEngine{
		interviews:  deps.Interviews,
		ledger:      deps.Ledger,
		jobs:        deps.Jobs,
		contexts:    deps.Contexts,
		generator:   deps.Generator,
		evaluator:   deps.Evaluator,
		transcriber: deps.Transcriber,
		audio:       deps.Audio,
		store:       deps.Store,
		locker:      locker,
		defaults:    defaults,
		timeout:     deps.Timeout,
		log:         log.Named("engine"),
		now:         now,
		tracer:      tracing.Tracer(),
	}
}

func (e *sessionEngine) Introduction() string {
	return e.defaults.Fallbacks.Introduction
}

// Schedule creates an interview that waits for the candidate to start it.
func (e *sessionEngine) Schedule(ctx context.Context, subjectID string, jobID *string) (*models.Interview, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Schedule")
	defer span.End()

	job, err := e.findJob(jobID)
	if err != nil {
		return nil, err
	}

	interview := &models.Interview{
		SubjectID: subjectID,
		JobID:     jobID,
		Kind:      kindFor(jobID),
		Status:    models.StatusScheduled,
	}
	if err := interview.SetPolicy(e.resolvePolicy(job)); err != nil {
		return nil, err
	}
	if err := e.interviews.Create(interview); err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(models.StatusScheduled))
	e.log.Info("interview scheduled",
		zap.String("interview_id", interview.ID.String()),
		zap.String("subject_id", subjectID),
	)
	return interview, nil
}

// Start moves an interview to in progress and produces its first turn. The
// interview row and the first turn are written in one transaction.
func (e *sessionEngine) Start(ctx context.Context, req *StartRequest) (*Turn, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Start")
	defer span.End()

	interview := &models.Interview{
		ID:        uuid.New(),
		SubjectID: req.SubjectID,
		JobID:     req.JobID,
		Kind:      kindFor(req.JobID),
		Status:    models.StatusScheduled,
	}
	if req.InterviewID != nil {
		interview.ID = *req.InterviewID
	}

	unlock, err := e.lock(ctx, interview.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if req.InterviewID != nil {
		existing, err := e.findInterview(*req.InterviewID)
		if err != nil {
			return nil, err
		}
		if existing.Status != models.StatusScheduled {
			return nil, ErrInvalidTransition
		}
		interview = existing
	}
	span.SetAttributes(attribute.String("interview.id", interview.ID.String()))

	job, err := e.findJob(interview.JobID)
	if err != nil {
		return nil, err
	}

	policy := e.resolvePolicy(job)
	state := &SessionState{
		InterviewID: interview.ID,
		SubjectID:   interview.SubjectID,
		JobID:       interview.JobID,
		Policy:      policy,
		Context:     e.buildContext(ctx, interview.ID, interview.SubjectID, job),
	}

	first := &models.InterviewQuestion{}
	if len(policy.MandatoryQuestions) > 0 {
		first.QuestionText = policy.MandatoryQuestions[0]
		first.IsMandatory = true
	} else {
		res := e.generateQuestion(ctx, interview.ID, &QuestionContext{
			Context:           state.Context,
			Difficulty:        policy.Difficulty,
			PersonalityTraits: policy.PersonalityTraits,
			TechnicalFocus:    policy.TechnicalFocus,
			IsFirst:           true,
		})
		first.QuestionText = res.Value
		if res.Degraded != nil {
			first.QuestionText = e.defaults.Fallbacks.FirstQuestion
		}
	}

	startedAt := e.now()
	interview.StartedAt = &startedAt
	if err := interview.SetPolicy(policy); err != nil {
		return nil, err
	}

	if err := e.interviews.StartWithFirstQuestion(interview, first); err != nil {
		if errors.Is(err, repositories.ErrInterviewStateChanged) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	e.saveState(ctx, state)
	metrics.RecordTransition(string(models.StatusInProgress))
	metrics.RecordTurn(first.IsMandatory)
	e.log.Info("interview started",
		zap.String("interview_id", interview.ID.String()),
		zap.String("kind", string(interview.Kind)),
		zap.Int("max_turns", policy.MaxTurns),
		zap.Int("mandatory_questions", len(policy.MandatoryQuestions)),
	)

	return &Turn{
		InterviewID:  interview.ID,
		TurnID:       first.ID,
		QuestionText: first.QuestionText,
		IsMandatory:  first.IsMandatory,
		TurnNumber:   1,
		MaxTurns:     policy.MaxTurns,
	}, nil
}

// SubmitAnswer records the answer to the current turn, scores it and then
// either appends the next turn or completes the interview.
func (e *sessionEngine) SubmitAnswer(ctx context.Context, req *SubmitRequest) (*AnswerOutcome, error) {
	if req.AnswerText == nil && len(req.Audio) == 0 {
		return nil, ErrEmptyAnswer
	}

	ctx, span := e.tracer.Start(ctx, "engine.SubmitAnswer", trace.WithAttributes(
		attribute.String("interview.id", req.InterviewID.String()),
		attribute.Int("turn.id", int(req.TurnID)),
	))
	defer span.End()

	unlock, err := e.lock(ctx, req.InterviewID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	interview, err := e.findInterview(req.InterviewID)
	if err != nil {
		return nil, err
	}
	if interview.Status != models.StatusInProgress {
		return nil, ErrInvalidTurn
	}

	current, err := e.ledger.LatestUnanswered(interview.ID)
	if err != nil {
		return nil, err
	}
	if current == nil || current.ID != req.TurnID {
		return nil, ErrInvalidTurn
	}

	state, err := e.loadState(ctx, interview)
	if err != nil {
		return nil, err
	}

	record := &repositories.AnswerRecord{AnsweredAt: e.now()}
	switch {
	case req.AnswerText != nil:
		record.AnswerText = *req.AnswerText
	default:
		res := e.transcribe(ctx, interview.ID, req.Audio, req.AudioMimeType)
		record.AnswerText = res.Value
	}
	if len(req.Audio) > 0 {
		record.AudioRef = e.archiveAudio(ctx, interview.ID, current.ID, req.Audio, req.AudioMimeType)
	}

	eval := e.evaluate(ctx, interview.ID, current.QuestionText, record.AnswerText, &state.Context)
	if eval.Degraded != nil {
		record.Feedback = e.defaults.Fallbacks.EvaluationFeedback
	} else {
		record.Score = eval.Value.Score
		record.Feedback = eval.Value.Feedback
	}

	if err := e.ledger.RecordAnswer(current.ID, record); err != nil {
		if errors.Is(err, repositories.ErrQuestionAnswered) || errors.Is(err, repositories.ErrQuestionNotFound) {
			return nil, ErrInvalidTurn
		}
		return nil, err
	}

	outcome := &AnswerOutcome{
		TurnID:   current.ID,
		Score:    record.Score,
		Feedback: record.Feedback,
	}

	next, assessment, err := e.advanceLocked(ctx, interview, state)
	if err != nil {
		return nil, err
	}
	outcome.Next = next
	outcome.Assessment = assessment
	outcome.Done = assessment != nil

	return outcome, nil
}

// Finish completes an in-progress interview. Finishing a completed
// interview returns the stored assessment.
func (e *sessionEngine) Finish(ctx context.Context, interviewID uuid.UUID) (*Assessment, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Finish", trace.WithAttributes(
		attribute.String("interview.id", interviewID.String()),
	))
	defer span.End()

	unlock, err := e.lock(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	interview, err := e.findInterview(interviewID)
	if err != nil {
		return nil, err
	}

	switch interview.Status {
	case models.StatusCompleted:
		return assessmentOf(interview), nil
	case models.StatusInProgress:
	default:
		return nil, ErrInvalidTransition
	}

	state, err := e.loadState(ctx, interview)
	if err != nil {
		return nil, err
	}

	turns, err := e.ledger.ListByCreationOrder(interview.ID)
	if err != nil {
		return nil, err
	}
	return e.finalizeLocked(ctx, interview, state, turns)
}

func (e *sessionEngine) Cancel(ctx context.Context, interviewID uuid.UUID) error {
	return e.cancel(ctx, interviewID, models.StatusScheduled, models.StatusInProgress)
}

// Expire cancels an interview only while it is still scheduled.
func (e *sessionEngine) Expire(ctx context.Context, interviewID uuid.UUID) error {
	return e.cancel(ctx, interviewID, models.StatusScheduled)
}

func (e *sessionEngine) cancel(ctx context.Context, interviewID uuid.UUID, from ...models.InterviewStatus) error {
	ctx, span := e.tracer.Start(ctx, "engine.Cancel")
	defer span.End()

	unlock, err := e.lock(ctx, interviewID)
	if err != nil {
		return err
	}
	defer unlock()

	interview, err := e.findInterview(interviewID)
	if err != nil {
		return err
	}
	if interview.Status == models.StatusCancelled {
		return nil
	}
	if interview.IsTerminal() || !slices.Contains(from, interview.Status) {
		return ErrInvalidTransition
	}

	if err := e.interviews.Cancel(interviewID); err != nil {
		if errors.Is(err, repositories.ErrInterviewStateChanged) {
			return ErrInvalidTransition
		}
		return err
	}

	e.dropState(ctx, interviewID)
	metrics.RecordTransition(string(models.StatusCancelled))
	e.log.Info("interview cancelled",
		zap.String("interview_id", interviewID.String()),
		zap.String("previous_status", string(interview.Status)),
	)
	return nil
}

// Current returns where an interview stands. An in-progress interview whose
// turns are all answered, left behind by an interrupted transition, is
// advanced before returning.
func (e *sessionEngine) Current(ctx context.Context, interviewID uuid.UUID) (*Progress, error) {
	unlock, err := e.lock(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	interview, err := e.findInterview(interviewID)
	if err != nil {
		return nil, err
	}

	progress := &Progress{Status: interview.Status}
	switch interview.Status {
	case models.StatusCompleted:
		progress.Assessment = assessmentOf(interview)
		return progress, nil
	case models.StatusInProgress:
	default:
		return progress, nil
	}

	state, err := e.loadState(ctx, interview)
	if err != nil {
		return nil, err
	}

	latest, err := e.ledger.LatestUnanswered(interview.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		count, err := e.ledger.Count(interview.ID)
		if err != nil {
			return nil, err
		}
		progress.Turn = &Turn{
			InterviewID:  interview.ID,
			TurnID:       latest.ID,
			QuestionText: latest.QuestionText,
			IsMandatory:  latest.IsMandatory,
			TurnNumber:   int(count),
			MaxTurns:     state.Policy.MaxTurns,
		}
		return progress, nil
	}

	e.log.Warn("resuming stalled interview", zap.String("interview_id", interview.ID.String()))
	next, assessment, err := e.advanceLocked(ctx, interview, state)
	if err != nil {
		return nil, err
	}
	progress.Turn = next
	progress.Assessment = assessment
	if assessment != nil {
		progress.Status = models.StatusCompleted
	}
	return progress, nil
}

func (e *sessionEngine) Get(_ context.Context, interviewID uuid.UUID) (*models.Interview, []models.InterviewQuestion, error) {
	interview, err := e.findInterview(interviewID)
	if err != nil {
		return nil, nil, err
	}
	turns, err := e.ledger.ListByCreationOrder(interviewID)
	if err != nil {
		return nil, nil, err
	}
	return interview, turns, nil
}

// advanceLocked decides the step after an answered turn. The caller must
// hold the interview lock.
func (e *sessionEngine) advanceLocked(ctx context.Context, interview *models.Interview, state *SessionState) (*Turn, *Assessment, error) {
	turns, err := e.ledger.ListByCreationOrder(interview.ID)
	if err != nil {
		return nil, nil, err
	}
	unanswered, err := e.ledger.CountMandatoryUnanswered(interview.ID)
	if err != nil {
		return nil, nil, err
	}

	policy := state.Policy
	n := len(turns)
	mandatory := policy.MandatoryQuestions

	if n >= policy.MaxTurns || (len(mandatory) > 0 && unanswered == 0 && n > len(mandatory)) {
		assessment, err := e.finalizeLocked(ctx, interview, state, turns)
		return nil, assessment, err
	}

	next := &models.InterviewQuestion{}
	if remaining := UnconsumedMandatory(mandatory, turns); len(remaining) > 0 {
		next.QuestionText = remaining[0]
		next.IsMandatory = true
	} else {
		res := e.generateQuestion(ctx, interview.ID, &QuestionContext{
			Context:           state.Context,
			Difficulty:        policy.Difficulty,
			PersonalityTraits: policy.PersonalityTraits,
			TechnicalFocus:    policy.TechnicalFocus,
			History:           History(turns),
		})
		next.QuestionText = res.Value
		if res.Degraded != nil {
			next.QuestionText = e.defaults.Fallbacks.FollowUpQuestion
		}
	}

	id, err := e.ledger.Append(interview.ID, next)
	if err != nil {
		return nil, nil, err
	}

	state.LastActivity = e.now()
	e.saveState(ctx, state)
	metrics.RecordTurn(next.IsMandatory)

	return &Turn{
		InterviewID:  interview.ID,
		TurnID:       id,
		QuestionText: next.QuestionText,
		IsMandatory:  next.IsMandatory,
		TurnNumber:   n + 1,
		MaxTurns:     policy.MaxTurns,
	}, nil, nil
}

func (e *sessionEngine) finalizeLocked(ctx context.Context, interview *models.Interview, state *SessionState, turns []models.InterviewQuestion) (*Assessment, error) {
	transcript := BuildTranscript(turns)
	scores := AnsweredScores(turns)
	mean := MeanScore(scores)

	assessment := &Assessment{
		InterviewID: interview.ID,
		Transcript:  transcript,
		EndedAt:     e.now(),
	}

	res := e.summarize(ctx, interview.ID, &SummaryContext{
		Context:    state.Context,
		Transcript: transcript,
		Scores:     scores,
	})
	if res.Degraded != nil {
		assessment.OverallScore = mean
		assessment.Summary = FallbackSummary(mean)
	} else {
		assessment.OverallScore = mean
		if ValidScore(res.Value.OverallScore) {
			assessment.OverallScore = *res.Value.OverallScore
		} else {
			e.log.Warn("summary score missing or out of range, using mean",
				zap.String("interview_id", interview.ID.String()),
				zap.Float64("mean", mean),
			)
		}
		assessment.Summary = strings.TrimSpace(res.Value.Summary)
		if assessment.Summary == "" {
			assessment.Summary = FallbackSummary(assessment.OverallScore)
		}
	}

	err := e.interviews.Complete(interview.ID, &repositories.CompletionData{
		Transcript:   assessment.Transcript,
		Summary:      assessment.Summary,
		OverallScore: assessment.OverallScore,
		EndedAt:      assessment.EndedAt,
	})
	if err != nil {
		if !errors.Is(err, repositories.ErrInterviewStateChanged) {
			return nil, err
		}
		current, findErr := e.findInterview(interview.ID)
		if findErr != nil {
			return nil, findErr
		}
		if current.Status != models.StatusCompleted {
			return nil, ErrInvalidTransition
		}
		return assessmentOf(current), nil
	}

	e.dropState(ctx, interview.ID)
	metrics.RecordTransition(string(models.StatusCompleted))
	e.log.Info("interview completed",
		zap.String("interview_id", interview.ID.String()),
		zap.Int("turns", len(turns)),
		zap.Float64("overall_score", assessment.OverallScore),
	)
	return assessment, nil
}

// loadState returns the cached working set, rebuilding it from the policy
// snapshot when the store has no entry.
func (e *sessionEngine) loadState(ctx context.Context, interview *models.Interview) (*SessionState, error) {
	if e.store != nil {
		state, found, err := e.store.Get(ctx, interview.ID)
		if err != nil {
			e.log.Warn("session store read failed", zap.String("interview_id", interview.ID.String()), zap.Error(err))
		} else if found {
			return state, nil
		}
	}

	policy, err := interview.PolicySnapshot()
	if err != nil {
		return nil, err
	}

	var job *models.Job
	if interview.JobID != nil {
		job, err = e.jobs.FindByID(*interview.JobID)
		if err != nil {
			// The policy snapshot still applies; only context is lost.
			e.log.Warn("job unavailable for interview context",
				zap.String("interview_id", interview.ID.String()),
				zap.Error(err),
			)
			job = nil
		}
	}

	state := &SessionState{
		InterviewID:  interview.ID,
		SubjectID:    interview.SubjectID,
		JobID:        interview.JobID,
		Policy:       policy,
		Context:      e.buildContext(ctx, interview.ID, interview.SubjectID, job),
		LastActivity: e.now(),
	}
	e.saveState(ctx, state)
	return state, nil
}

func (e *sessionEngine) saveState(ctx context.Context, state *SessionState) {
	if e.store == nil {
		return
	}
	if state.LastActivity.IsZero() {
		state.LastActivity = e.now()
	}
	if err := e.store.Put(ctx, state); err != nil {
		e.log.Warn("session store write failed", zap.String("interview_id", state.InterviewID.String()), zap.Error(err))
	}
}

func (e *sessionEngine) dropState(ctx context.Context, id uuid.UUID) {
	if e.store == nil {
		return
	}
	if err := e.store.Remove(ctx, id); err != nil {
		e.log.Warn("session store remove failed", zap.String("interview_id", id.String()), zap.Error(err))
	}
}

func (e *sessionEngine) lock(ctx context.Context, id uuid.UUID) (func(), error) {
	unlock, err := e.locker.Lock(ctx, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to lock interview %s: %w", id, err)
	}
	return unlock, nil
}

func (e *sessionEngine) findInterview(id uuid.UUID) (*models.Interview, error) {
	interview, err := e.interviews.FindByID(id)
	if err != nil {
		if errors.Is(err, repositories.ErrInterviewNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return interview, nil
}

func (e *sessionEngine) findJob(jobID *string) (*models.Job, error) {
	if jobID == nil {
		return nil, nil
	}
	job, err := e.jobs.FindByID(*jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (e *sessionEngine) resolvePolicy(job *models.Job) models.InterviewPolicy {
	if job == nil {
		return e.defaults.GeneralPolicy()
	}
	settings, err := job.Settings()
	if err != nil {
		e.log.Warn("ignoring malformed interview settings", zap.String("job_id", job.ID), zap.Error(err))
	}
	return e.defaults.JobPolicy(settings)
}

func (e *sessionEngine) generateQuestion(ctx context.Context, id uuid.UUID, qc *QuestionContext) Result[string] {
	return guard(ctx, e, DegradedGeneration, id, func(ctx context.Context) (string, error) {
		q, err := e.generator.GenerateQuestion(ctx, qc)
		if err != nil {
			return "", err
		}
		q = strings.TrimSpace(q)
		if q == "" {
			return "", errors.New("empty question")
		}
		return q, nil
	})
}

func (e *sessionEngine) summarize(ctx context.Context, id uuid.UUID, sc *SummaryContext) Result[*SummaryResult] {
	return guard(ctx, e, DegradedSummary, id, func(ctx context.Context) (*SummaryResult, error) {
		res, err := e.generator.GenerateSummary(ctx, sc)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, errors.New("empty summary")
		}
		return res, nil
	})
}

func (e *sessionEngine) evaluate(ctx context.Context, id uuid.UUID, question, answer string, ic *InterviewContext) Result[*AnswerEvaluation] {
	return guard(ctx, e, DegradedEvaluation, id, func(ctx context.Context) (*AnswerEvaluation, error) {
		res, err := e.evaluator.EvaluateAnswer(ctx, question, answer, ic)
		if err != nil {
			return nil, err
		}
		if res == nil || !ValidScore(res.Score) {
			return nil, errors.New("score missing or outside 0-100")
		}
		return res, nil
	})
}

func (e *sessionEngine) transcribe(ctx context.Context, id uuid.UUID, audio []byte, mimeType string) Result[string] {
	if e.transcriber == nil {
		return degraded[string](DegradedTranscription, errors.New("no transcription provider configured"))
	}
	return guard(ctx, e, DegradedTranscription, id, func(ctx context.Context) (string, error) {
		text, err := e.transcriber.Transcribe(ctx, audio, mimeType)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil
	})
}

func (e *sessionEngine) archiveAudio(ctx context.Context, id uuid.UUID, turnID uint, audio []byte, mimeType string) *string {
	if e.audio == nil {
		return nil
	}
	ref, err := e.audio.Archive(ctx, id, turnID, audio, mimeType)
	if err != nil {
		e.log.Warn("audio archive failed", zap.String("interview_id", id.String()), zap.Uint("turn_id", turnID), zap.Error(err))
		return nil
	}
	return &ref
}

// buildContext gathers the interview context under the collaborator
// timeout. A provider that overruns yields only the job fields.
func (e *sessionEngine) buildContext(ctx context.Context, id uuid.UUID, subjectID string, job *models.Job) InterviewContext {
	if e.timeout <= 0 {
		return e.contexts.Build(ctx, subjectID, job)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan InterviewContext, 1)
	go func() {
		done <- e.contexts.Build(ctx, subjectID, job)
	}()

	select {
	case ic := <-done:
		return ic
	case <-ctx.Done():
		metrics.RecordDegraded("context")
		e.log.Warn("interview context timed out, continuing without it",
			zap.String("interview_id", id.String()),
			zap.Error(ctx.Err()),
		)
		var ic InterviewContext
		if job != nil {
			ic.JobTitle = job.Title
			ic.JobDescription = job.Description
			ic.JobRequirements = job.Requirements
		}
		return ic
	}
}

// guard runs one collaborator call under the configured timeout and turns a
// failure into a degraded result.
func guard[T any](ctx context.Context, e *sessionEngine, kind DegradedKind, id uuid.UUID, call func(context.Context) (T, error)) Result[T] {
	ctx, span := e.tracer.Start(ctx, "collaborator."+string(kind))
	defer span.End()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	started := time.Now()
	value, err := call(ctx)
	metrics.ObserveCollaborator(string(kind), started)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "degraded")
		metrics.RecordDegraded(string(kind))
		e.log.Warn("collaborator degraded, using fallback",
			zap.String("interview_id", id.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return degraded[T](kind, err)
	}
	return ok(value)
}

func assessmentOf(interview *models.Interview) *Assessment {
	a := &Assessment{InterviewID: interview.ID}
	if interview.Summary != nil {
		a.Summary = *interview.Summary
	}
	if interview.OverallScore != nil {
		a.OverallScore = *interview.OverallScore
	}
	if interview.Transcript != nil {
		a.Transcript = *interview.Transcript
	}
	if interview.EndedAt != nil {
		a.EndedAt = *interview.EndedAt
	}
	return a
}

func kindFor(jobID *string) models.InterviewKind {
	if jobID == nil {
		return models.KindGeneral
	}
	return models.KindJobSpecific
}
