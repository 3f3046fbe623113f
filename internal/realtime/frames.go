package realtime

import "encoding/json"

const (
	ActionJoin         = "join"
	ActionStart        = "start"
	ActionSubmitAnswer = "submitAnswer"
	ActionEnd          = "end"
)

const (
	EventJoined             = "joined"
	EventInterviewStarted   = "interview_started"
	EventNextQuestion       = "next_question"
	EventInterviewCompleted = "interview_completed"
	EventSpeechData         = "speech_data"
	EventError              = "error"
)

const (
	SpeechIntroduction = "introduction"
	SpeechQuestion     = "question"
)

// InboundFrame is a client action.
type InboundFrame struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// OutboundFrame is a server event.
type OutboundFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type JoinPayload struct {
	SessionID    string  `json:"sessionId,omitempty"`
	JobID        *string `json:"jobId,omitempty"`
	AudioEnabled bool    `json:"audioEnabled,omitempty"`
}

type SubmitPayload struct {
	TurnID     uint    `json:"turnId"`
	AnswerText *string `json:"answerText,omitempty"`
	// Audio is base64 encoded.
	Audio    string `json:"audio,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

type QuestionPayload struct {
	SessionID    string `json:"sessionId"`
	TurnID       uint   `json:"turnId"`
	QuestionText string `json:"questionText"`
	IsMandatory  bool   `json:"isMandatory"`
	TurnNumber   int    `json:"turnNumber"`
	MaxTurns     int    `json:"maxTurns"`
}

type JoinedPayload struct {
	SessionID string           `json:"sessionId"`
	Status    string           `json:"status"`
	Question  *QuestionPayload `json:"question,omitempty"`
}

type StartedPayload struct {
	Introduction string          `json:"introduction"`
	Question     QuestionPayload `json:"question"`
}

type NextQuestionPayload struct {
	AnsweredTurnID uint            `json:"answeredTurnId"`
	Score          *float64        `json:"score,omitempty"`
	Feedback       string          `json:"feedback,omitempty"`
	Question       QuestionPayload `json:"question"`
}

type CompletedPayload struct {
	SessionID      string   `json:"sessionId"`
	AnsweredTurnID uint     `json:"answeredTurnId,omitempty"`
	Score          *float64 `json:"score,omitempty"`
	Feedback       string   `json:"feedback,omitempty"`
	Summary        string   `json:"summary"`
	OverallScore   float64  `json:"overallScore"`
}

// SpeechPayload is sent only to clients that joined with audio enabled.
// TurnID is zero for the introduction.
type SpeechPayload struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	TurnID    uint   `json:"turnId,omitempty"`
	MimeType  string `json:"mimeType"`
	// AudioData is base64 encoded.
	AudioData []byte `json:"audioData"`
	Ref       string `json:"ref,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
