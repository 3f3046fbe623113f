package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"alfredoptarigan/interview-engine/internal/models"
)

type JobRepository interface {
	FindByID(id string) (*models.Job, error)
	ListIDsByEnterprise(enterpriseID string) ([]string, error)
}

type jobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) FindByID(id string) (*models.Job, error) {
	var job models.Job
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return &job, nil
}

func (r *jobRepository) ListIDsByEnterprise(enterpriseID string) ([]string, error) {
	var ids []string
	if err := r.db.Model(&models.Job{}).Where("enterprise_id = ?", enterpriseID).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return ids, nil
}
