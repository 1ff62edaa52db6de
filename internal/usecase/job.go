package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/lifecycle"
	"github.com/ErlanBelekov/agent-job-sync/internal/repository"
)

type JobUsecase struct {
	repo repository.JobReader
	now  func() time.Time
}

func NewJobUsecase(repo repository.JobReader) *JobUsecase {
	return &JobUsecase{repo: repo, now: time.Now}
}

type JobStatusView struct {
	Job    *domain.Job
	Status domain.Status
	Latest *domain.JobStatusEvent
}

// GetStatus derives the status from stored state. It does not contact the
// agent or escrow services.
func (u *JobUsecase) GetStatus(ctx context.Context, jobID, userID string) (*JobStatusView, error) {
	job, err := u.repo.GetSnapshot(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.UserID != userID {
		return nil, fmt.Errorf("get job: %w", domain.ErrJobNotFound)
	}
	return &JobStatusView{
		Job:    job,
		Status: lifecycle.ComputeStatus(job, u.now()),
		Latest: job.LatestEvent(),
	}, nil
}
