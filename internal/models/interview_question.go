package models

import (
	"time"

	"github.com/google/uuid"
)

// InterviewQuestion is one turn of the ledger. The auto-increment ID doubles
// as the creation sequence within an interview.
type InterviewQuestion struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	InterviewID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"interview_id"`
	QuestionText string     `gorm:"type:text;not null" json:"question_text"`
	AnswerText   *string    `gorm:"type:text" json:"answer_text,omitempty"`
	IsMandatory  bool       `gorm:"not null;default:false" json:"is_mandatory"`
	Score        *float64   `json:"score,omitempty"`
	Feedback     *string    `gorm:"type:text" json:"feedback,omitempty"`
	AudioRef     *string    `gorm:"type:text" json:"audio_ref,omitempty"`
	AnsweredAt   *time.Time `json:"answered_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (InterviewQuestion) TableName() string {
	return "interview_questions"
}

func (q *InterviewQuestion) Answered() bool {
	return q.AnswerText != nil
}
