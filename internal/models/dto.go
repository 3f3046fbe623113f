package models

import "time"

type UploadResponse struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	FileType     string `json:"file_type"`
}

type StartInterviewRequest struct {
	SubjectID    string  `json:"subjectId"`
	JobID        *string `json:"jobId,omitempty"`
	SessionID    string  `json:"sessionId,omitempty"`
	AudioEnabled bool    `json:"audioEnabled,omitempty"`
}

type ScheduleInterviewRequest struct {
	SubjectID string `json:"subjectId"`
	JobID     string `json:"jobId"`
}

type ScheduleInterviewResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type TurnResponse struct {
	SessionID     string         `json:"sessionId"`
	TurnID        uint           `json:"turnId"`
	QuestionText  string         `json:"questionText"`
	IsMandatory   bool           `json:"isMandatory"`
	TurnNumber    int            `json:"turnNumber"`
	MaxTurns      int            `json:"maxTurns"`
	QuestionAudio *AudioResponse `json:"questionAudio,omitempty"`
}

// AudioResponse carries synthesized speech. Data is base64 in JSON.
type AudioResponse struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
	Ref      string `json:"ref,omitempty"`
}

type SubmitAnswerRequest struct {
	SessionID    string  `json:"sessionId" form:"sessionId"`
	TurnID       uint    `json:"turnId" form:"turnId"`
	AnswerText   *string `json:"answerText,omitempty" form:"answerText"`
	AudioEnabled bool    `json:"audioEnabled,omitempty" form:"audioEnabled"`
}

type SubmitAnswerResponse struct {
	NextTurnID   *uint    `json:"nextTurnId,omitempty"`
	QuestionText *string  `json:"questionText,omitempty"`
	IsMandatory  bool     `json:"isMandatory,omitempty"`
	TurnNumber   int      `json:"turnNumber,omitempty"`
	MaxTurns     int      `json:"maxTurns,omitempty"`
	Done         bool     `json:"done"`
	Score        *float64 `json:"score,omitempty"`
	Feedback     string   `json:"feedback,omitempty"`
	Summary      *string  `json:"summary,omitempty"`
	OverallScore *float64 `json:"overallScore,omitempty"`

	QuestionAudio *AudioResponse `json:"questionAudio,omitempty"`
}

type FinishInterviewRequest struct {
	SessionID string `json:"sessionId"`
}

type FinishInterviewResponse struct {
	SessionID    string  `json:"sessionId"`
	Summary      string  `json:"summary"`
	OverallScore float64 `json:"overallScore"`
	Transcript   string  `json:"transcript"`
}

type InterviewSummaryResponse struct {
	ID           string     `json:"id"`
	SubjectID    string     `json:"subjectId"`
	JobID        *string    `json:"jobId,omitempty"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	OverallScore *float64   `json:"overallScore,omitempty"`
}

type InterviewDetailResponse struct {
	InterviewSummaryResponse
	Summary    *string          `json:"summary,omitempty"`
	Transcript *string          `json:"transcript,omitempty"`
	Questions  []QuestionDetail `json:"questions"`
	Policy     InterviewPolicy  `json:"policy"`
}

type QuestionDetail struct {
	ID           uint       `json:"id"`
	QuestionText string     `json:"questionText"`
	AnswerText   *string    `json:"answerText,omitempty"`
	IsMandatory  bool       `json:"isMandatory"`
	Score        *float64   `json:"score,omitempty"`
	Feedback     *string    `json:"feedback,omitempty"`
	AnsweredAt   *time.Time `json:"answeredAt,omitempty"`
}

func NewInterviewSummaryResponse(i *Interview) InterviewSummaryResponse {
	return InterviewSummaryResponse{
		ID:           i.ID.String(),
		SubjectID:    i.SubjectID,
		JobID:        i.JobID,
		Kind:         string(i.Kind),
		Status:       string(i.Status),
		StartedAt:    i.StartedAt,
		EndedAt:      i.EndedAt,
		OverallScore: i.OverallScore,
	}
}

func NewQuestionDetails(questions []InterviewQuestion) []QuestionDetail {
	details := make([]QuestionDetail, 0, len(questions))
	for _, q := range questions {
		details = append(details, QuestionDetail{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			AnswerText:   q.AnswerText,
			IsMandatory:  q.IsMandatory,
			Score:        q.Score,
			Feedback:     q.Feedback,
			AnsweredAt:   q.AnsweredAt,
		})
	}
	return details
}
