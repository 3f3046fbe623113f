package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Job is read by the interview engine to build context and policy. Jobs are
// created and edited by the job-posting service.
type Job struct {
	ID                string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	EnterpriseID      string         `gorm:"type:varchar(64);not null;index" json:"enterprise_id"`
	Title             string         `gorm:"type:text" json:"title"`
	Description       string         `gorm:"type:text" json:"description"`
	Requirements      string         `gorm:"type:text" json:"requirements"`
	InterviewSettings datatypes.JSON `json:"interview_settings"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}

type InterviewSettings struct {
	MustAskQuestions  []string `json:"must_ask_questions"`
	PersonalityTraits []string `json:"personality_traits"`
	TechnicalFocus    []string `json:"technical_focus"`
	DifficultyLevel   string   `json:"difficulty_level"`
}

func (j *Job) Settings() (InterviewSettings, error) {
	var settings InterviewSettings
	if len(j.InterviewSettings) == 0 {
		return settings, nil
	}
	if err := json.Unmarshal(j.InterviewSettings, &settings); err != nil {
		return settings, fmt.Errorf("failed to decode interview settings for job %s: %w", j.ID, err)
	}
	return settings, nil
}
