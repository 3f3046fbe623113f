package services

import (
	"errors"

	"alfredoptarigan/interview-engine/internal/models"
	"alfredoptarigan/interview-engine/internal/repositories"
)

type Action string

const (
	ActionView     Action = "view"
	ActionAnswer   Action = "answer"
	ActionCancel   Action = "cancel"
	ActionSchedule Action = "schedule"
)

// AccessPolicy decides which identity may act on an interview. Candidates
// own their interviews; enterprises own the interviews attached to their
// jobs. ActionSchedule is checked against the interview about to be
// created.
type AccessPolicy interface {
	Authorize(identity models.Identity, interview *models.Interview, action Action) error
	AuthorizeJob(identity models.Identity, jobID string) error
}

type accessPolicy struct {
	jobs repositories.JobRepository
}

func NewAccessPolicy(jobs repositories.JobRepository) AccessPolicy {
	return &accessPolicy{jobs: jobs}
}

func (p *accessPolicy) Authorize(identity models.Identity, interview *models.Interview, action Action) error {
	switch id := identity.(type) {
	case models.Candidate:
		if interview.SubjectID != id.ID {
			return ErrForbidden
		}
		switch action {
		case ActionView, ActionAnswer, ActionCancel, ActionSchedule:
			return nil
		}
		return ErrForbidden

	case models.Enterprise:
		switch action {
		case ActionView, ActionCancel, ActionSchedule:
		default:
			return ErrForbidden
		}
		if interview.JobID == nil {
			return ErrForbidden
		}
		return p.AuthorizeJob(identity, *interview.JobID)
	}
	return ErrForbidden
}

// AuthorizeJob allows only the enterprise that posted the job.
func (p *accessPolicy) AuthorizeJob(identity models.Identity, jobID string) error {
	enterprise, ok := identity.(models.Enterprise)
	if !ok {
		return ErrForbidden
	}
	job, err := p.jobs.FindByID(jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrJobNotFound) {
			return ErrJobNotFound
		}
		return err
	}
	if job.EnterpriseID != enterprise.ID {
		return ErrForbidden
	}
	return nil
}
