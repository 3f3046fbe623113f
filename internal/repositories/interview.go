package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/interview-engine/internal/models"
)

type InterviewRepository interface {
	Create(interview *models.Interview) error
	FindByID(id uuid.UUID) (*models.Interview, error)
	StartWithFirstQuestion(interview *models.Interview, first *models.InterviewQuestion) error
	Complete(id uuid.UUID, data *CompletionData) error
	Cancel(id uuid.UUID) error
	ListBySubject(subjectID string) ([]models.Interview, error)
	ListByJobIDs(jobIDs []string) ([]models.Interview, error)
	FindStaleScheduled(before time.Time, limit int) ([]models.Interview, error)
}

type CompletionData struct {
	Transcript   string
	Summary      string
	OverallScore float64
	EndedAt      time.Time
}

type interviewRepository struct {
	db *gorm.DB
}

func NewInterviewRepository(db *gorm.DB) InterviewRepository {
	return &interviewRepository{db: db}
}

func (r *interviewRepository) Create(interview *models.Interview) error {
	if err := r.db.Create(interview).Error; err != nil {
		return fmt.Errorf("failed to create interview: %w", err)
	}
	return nil
}

func (r *interviewRepository) FindByID(id uuid.UUID) (*models.Interview, error) {
	var interview models.Interview
	if err := r.db.Where("id = ?", id).First(&interview).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInterviewNotFound
		}
		return nil, fmt.Errorf("failed to find interview: %w", err)
	}
	return &interview, nil
}

// StartWithFirstQuestion moves the interview to in_progress and appends its
// first question in one transaction. An interview with a zero CreatedAt is
// inserted; otherwise the existing row must still be scheduled.
func (r *interviewRepository) StartWithFirstQuestion(interview *models.Interview, first *models.InterviewQuestion) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if interview.CreatedAt.IsZero() {
			interview.Status = models.StatusInProgress
			if err := tx.Create(interview).Error; err != nil {
				return fmt.Errorf("failed to create interview: %w", err)
			}
		} else {
			result := tx.Model(&models.Interview{}).
				Where("id = ? AND status = ?", interview.ID, models.StatusScheduled).
				Updates(map[string]interface{}{
					"status":     models.StatusInProgress,
					"started_at": interview.StartedAt,
					"policy":     interview.Policy,
					"updated_at": time.Now(),
				})
			if result.Error != nil {
				return fmt.Errorf("failed to start interview: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return ErrInterviewStateChanged
			}
			interview.Status = models.StatusInProgress
		}

		first.InterviewID = interview.ID
		if err := tx.Create(first).Error; err != nil {
			return fmt.Errorf("failed to append first question: %w", err)
		}
		return nil
	})
}

func (r *interviewRepository) Complete(id uuid.UUID, data *CompletionData) error {
	result := r.db.Model(&models.Interview{}).
		Where("id = ? AND status = ?", id, models.StatusInProgress).
		Updates(map[string]interface{}{
			"status":        models.StatusCompleted,
			"transcript":    data.Transcript,
			"summary":       data.Summary,
			"overall_score": data.OverallScore,
			"ended_at":      data.EndedAt,
			"updated_at":    time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to complete interview: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInterviewStateChanged
	}
	return nil
}

func (r *interviewRepository) Cancel(id uuid.UUID) error {
	result := r.db.Model(&models.Interview{}).
		Where("id = ? AND status IN ?", id, []models.InterviewStatus{models.StatusScheduled, models.StatusInProgress}).
		Updates(map[string]interface{}{
			"status":     models.StatusCancelled,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to cancel interview: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInterviewStateChanged
	}
	return nil
}

func (r *interviewRepository) ListBySubject(subjectID string) ([]models.Interview, error) {
	var interviews []models.Interview
	if err := r.db.Where("subject_id = ?", subjectID).Order("created_at DESC").Find(&interviews).Error; err != nil {
		return nil, fmt.Errorf("failed to list interviews: %w", err)
	}
	return interviews, nil
}

func (r *interviewRepository) ListByJobIDs(jobIDs []string) ([]models.Interview, error) {
	if len(jobIDs) == 0 {
		return []models.Interview{}, nil
	}
	var interviews []models.Interview
	if err := r.db.Where("job_id IN ?", jobIDs).Order("created_at DESC").Find(&interviews).Error; err != nil {
		return nil, fmt.Errorf("failed to list interviews: %w", err)
	}
	return interviews, nil
}

func (r *interviewRepository) FindStaleScheduled(before time.Time, limit int) ([]models.Interview, error) {
	var interviews []models.Interview
	err := r.db.
		Where("status = ? AND created_at < ?", models.StatusScheduled, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&interviews).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find stale scheduled interviews: %w", err)
	}
	return interviews, nil
}
