package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/interview-engine/internal/models"
)

// InterviewQuestionRepository is the append-only question/answer ledger.
// Rows are only ever updated to fill in the answer of an unanswered turn.
type InterviewQuestionRepository interface {
	Append(interviewID uuid.UUID, question *models.InterviewQuestion) (uint, error)
	FindByID(id uint) (*models.InterviewQuestion, error)
	LatestUnanswered(interviewID uuid.UUID) (*models.InterviewQuestion, error)
	ListByCreationOrder(interviewID uuid.UUID) ([]models.InterviewQuestion, error)
	CountMandatoryUnanswered(interviewID uuid.UUID) (int64, error)
	Count(interviewID uuid.UUID) (int64, error)
	RecordAnswer(id uint, record *AnswerRecord) error
}

// AnswerRecord is written in a single transaction so an answer is never
// stored without its score and feedback.
type AnswerRecord struct {
	AnswerText string
	Score      *float64
	Feedback   string
	AudioRef   *string
	AnsweredAt time.Time
}

type interviewQuestionRepository struct {
	db *gorm.DB
}

func NewInterviewQuestionRepository(db *gorm.DB) InterviewQuestionRepository {
	return &interviewQuestionRepository{db: db}
}

func (r *interviewQuestionRepository) Append(interviewID uuid.UUID, question *models.InterviewQuestion) (uint, error) {
	question.ID = 0
	question.InterviewID = interviewID
	question.AnswerText = nil
	question.Score = nil
	question.Feedback = nil
	question.AnsweredAt = nil

	if err := r.db.Create(question).Error; err != nil {
		return 0, fmt.Errorf("failed to append question: %w", err)
	}
	return question.ID, nil
}

func (r *interviewQuestionRepository) FindByID(id uint) (*models.InterviewQuestion, error) {
	var question models.InterviewQuestion
	if err := r.db.Where("id = ?", id).First(&question).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to find question: %w", err)
	}
	return &question, nil
}

// LatestUnanswered returns the most recently created turn if it has no
// answer yet, or nil when the latest turn is answered or none exist.
func (r *interviewQuestionRepository) LatestUnanswered(interviewID uuid.UUID) (*models.InterviewQuestion, error) {
	var question models.InterviewQuestion
	err := r.db.
		Where("interview_id = ?", interviewID).
		Order("id DESC").
		First(&question).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find latest question: %w", err)
	}

	if question.Answered() {
		return nil, nil
	}
	return &question, nil
}

func (r *interviewQuestionRepository) ListByCreationOrder(interviewID uuid.UUID) ([]models.InterviewQuestion, error) {
	var questions []models.InterviewQuestion
	if err := r.db.Where("interview_id = ?", interviewID).Order("id ASC").Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, nil
}

func (r *interviewQuestionRepository) CountMandatoryUnanswered(interviewID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&models.InterviewQuestion{}).
		Where("interview_id = ? AND is_mandatory = ? AND answer_text IS NULL", interviewID, true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unanswered mandatory questions: %w", err)
	}
	return count, nil
}

func (r *interviewQuestionRepository) Count(interviewID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.Model(&models.InterviewQuestion{}).Where("interview_id = ?", interviewID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return count, nil
}

func (r *interviewQuestionRepository) RecordAnswer(id uint, record *AnswerRecord) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"answer_text": record.AnswerText,
			"score":       record.Score,
			"feedback":    record.Feedback,
			"answered_at": record.AnsweredAt,
		}
		if record.AudioRef != nil {
			updates["audio_ref"] = *record.AudioRef
		}

		result := tx.Model(&models.InterviewQuestion{}).
			Where("id = ? AND answer_text IS NULL", id).
			Updates(updates)

		if result.Error != nil {
			return fmt.Errorf("failed to record answer: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.InterviewQuestion{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check question: %w", err)
			}
			if count == 0 {
				return ErrQuestionNotFound
			}
			return ErrQuestionAnswered
		}
		return nil
	})
}
