package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/lifecycle"
	"github.com/ErlanBelekov/agent-job-sync/internal/metrics"
	"github.com/ErlanBelekov/agent-job-sync/internal/repository"
	"github.com/ErlanBelekov/agent-job-sync/internal/requestid"
	"github.com/robfig/cron/v3"
)

// Sweeper re-syncs paid jobs that look final but whose escrow can still move
// (late disputes and refunds before the unlock time).
type Sweeper struct {
	lister   CandidateLister
	syncer   Syncer
	logger   *slog.Logger
	schedule string
	batch    int
	now      func() time.Time
}

func NewSweeper(lister CandidateLister, syncer Syncer, logger *slog.Logger, schedule string, batch int) (*Sweeper, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		lister:   lister,
		syncer:   syncer,
		logger:   logger.With("component", "sweeper"),
		schedule: schedule,
		batch:    batch,
		now:      time.Now,
	}, nil
}

func (s *Sweeper) Start(ctx context.Context) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.Sweep(ctx) }); err != nil {
		// unreachable: schedule validated in NewSweeper
		s.logger.Error("schedule sweep", "schedule", s.schedule, "error", err)
		return
	}
	c.Start()
	s.logger.Info("sweeper started", "schedule", s.schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("sweeper shut down")
}

// Sweep runs one pass, syncing candidates one at a time.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()
	unlockAfter := now.Add(-lifecycle.GracePeriod)

	ids, err := s.lister.ListSyncCandidates(ctx, repository.ListCandidatesInput{
		Statuses:     lifecycle.FinalStatuses(),
		SyncedBefore: now,
		PaidOnly:     true,
		UnlockAfter:  &unlockAfter,
		Limit:        s.batch,
	})
	if err != nil {
		s.logger.Error("list sweep candidates", "error", err)
		return
	}

	changed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		status, err := s.syncer.Sync(requestid.WithRequestID(ctx, requestid.New()), id)
		switch {
		case err == nil:
			metrics.SweptJobsTotal.WithLabelValues("ok").Inc()
			if !lifecycle.IsFinal(status) {
				changed++
			}
		case errors.Is(err, domain.ErrSyncInProgress):
			metrics.SweptJobsTotal.WithLabelValues("locked").Inc()
		default:
			metrics.SweptJobsTotal.WithLabelValues("error").Inc()
			s.logger.Error("sweep sync", "job_id", id, "error", err)
		}
	}

	if len(ids) > 0 {
		s.logger.Info("sweep finished", "candidates", len(ids), "reopened", changed)
	}
}
