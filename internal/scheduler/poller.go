package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/lifecycle"
	"github.com/ErlanBelekov/agent-job-sync/internal/metrics"
	"github.com/ErlanBelekov/agent-job-sync/internal/repository"
	"github.com/ErlanBelekov/agent-job-sync/internal/requestid"
)

type Syncer interface {
	Sync(ctx context.Context, jobID string) (domain.Status, error)
}

type CandidateLister interface {
	ListSyncCandidates(ctx context.Context, input repository.ListCandidatesInput) ([]string, error)
}

// Poller periodically syncs jobs whose cached status can still change.
type Poller struct {
	id           string
	lister       CandidateLister
	syncer       Syncer
	logger       *slog.Logger
	pollInterval time.Duration
	concurrency  int
	sem          chan struct{}

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

func NewPoller(
	lister CandidateLister,
	syncer Syncer,
	logger *slog.Logger,
	pollInterval time.Duration,
	concurrency int,
) *Poller {
	hostname, _ := os.Hostname()
	id := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	return &Poller{
		id:           id,
		lister:       lister,
		syncer:       syncer,
		logger:       logger.With("component", "poller", "poller_id", id),
		pollInterval: pollInterval,
		concurrency:  concurrency,
		sem:          make(chan struct{}, concurrency),
		inFlight:     make(map[string]struct{}),
	}
}

// Start blocks until ctx is cancelled, then waits for running syncs.
func (p *Poller) Start(ctx context.Context) {
	metrics.SyncerStartTime.SetToCurrentTime()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.logger.Info("poller started", "concurrency", p.concurrency, "interval", p.pollInterval)

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			metrics.SyncerShutdownsTotal.Inc()
			p.logger.Info("poller shut down")
			return
		case <-ticker.C:
			p.processBatch(ctx)
		}
	}
}

func (p *Poller) processBatch(ctx context.Context) {
	available := cap(p.sem) - len(p.sem)
	if available == 0 {
		return
	}

	start := time.Now()
	ids, err := p.lister.ListSyncCandidates(ctx, repository.ListCandidatesInput{
		Statuses:     lifecycle.NonFinalStatuses(),
		SyncedBefore: start.Add(-p.pollInterval),
		Limit:        available,
	})
	metrics.PollCycleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.logger.Error("list sync candidates", "error", err)
		return
	}

	dispatched := 0
	for _, id := range ids {
		if !p.claim(id) {
			continue
		}
		p.sem <- struct{}{}
		p.wg.Add(1)
		dispatched++
		go func(jobID string) {
			metrics.SyncsInFlight.Inc()
			defer metrics.SyncsInFlight.Dec()
			defer p.wg.Done()
			defer func() { <-p.sem }()
			defer p.release(jobID)
			p.runSync(ctx, jobID)
		}(id)
	}

	if dispatched > 0 {
		p.logger.Debug("dispatched syncs", "count", dispatched, "slots_used", len(p.sem), "slots_total", cap(p.sem))
	}
}

// claim keeps a job that is still syncing from being picked up again by the
// next tick, since its last_synced_at has not moved yet.
func (p *Poller) claim(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[jobID]; busy {
		return false
	}
	p.inFlight[jobID] = struct{}{}
	return true
}

func (p *Poller) release(jobID string) {
	p.mu.Lock()
	delete(p.inFlight, jobID)
	p.mu.Unlock()
}

func (p *Poller) runSync(ctx context.Context, jobID string) {
	ctx = requestid.Ensure(ctx)
	status, err := p.syncer.Sync(ctx, jobID)
	switch {
	case err == nil:
		p.logger.Debug("job synced", "job_id", jobID, "status", status)
	case errors.Is(err, domain.ErrSyncInProgress):
		p.logger.Debug("job already syncing elsewhere", "job_id", jobID)
	case errors.Is(err, context.Canceled):
	default:
		// Retried on a later tick; last_synced_at was not advanced.
		p.logger.Error("sync job", "job_id", jobID, "error", err)
	}
}
