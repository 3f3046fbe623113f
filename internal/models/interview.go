package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type InterviewKind string

const (
	KindGeneral     InterviewKind = "general"
	KindJobSpecific InterviewKind = "job_specific"
)

type InterviewStatus string

const (
	StatusScheduled  InterviewStatus = "scheduled"
	StatusInProgress InterviewStatus = "in_progress"
	StatusCompleted  InterviewStatus = "completed"
	StatusCancelled  InterviewStatus = "cancelled"
)

// Interview is one interview attempt by one candidate. OverallScore, Summary
// and Transcript are written once, together with the transition to completed.
type Interview struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectID    string          `gorm:"type:varchar(64);not null;index" json:"subject_id"`
	JobID        *string         `gorm:"type:varchar(64);index" json:"job_id,omitempty"`
	Kind         InterviewKind   `gorm:"type:varchar(20);not null" json:"kind"`
	Status       InterviewStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Policy       datatypes.JSON  `json:"policy"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	EndedAt      *time.Time      `json:"ended_at,omitempty"`
	Transcript   *string         `gorm:"type:text" json:"transcript,omitempty"`
	OverallScore *float64        `json:"overall_score,omitempty"`
	Summary      *string         `gorm:"type:text" json:"summary,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	Questions []InterviewQuestion `gorm:"foreignKey:InterviewID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (Interview) TableName() string {
	return "interviews"
}

func (i *Interview) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (i *Interview) PolicySnapshot() (InterviewPolicy, error) {
	var policy InterviewPolicy
	if len(i.Policy) == 0 {
		return policy, fmt.Errorf("interview %s has no policy snapshot", i.ID)
	}
	if err := json.Unmarshal(i.Policy, &policy); err != nil {
		return policy, fmt.Errorf("failed to decode policy snapshot: %w", err)
	}
	return policy, nil
}

func (i *Interview) SetPolicy(policy InterviewPolicy) error {
	raw, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to encode policy snapshot: %w", err)
	}
	i.Policy = datatypes.JSON(raw)
	return nil
}

func (i *Interview) IsTerminal() bool {
	return i.Status == StatusCompleted || i.Status == StatusCancelled
}
