package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/lifecycle"
	applog "github.com/ErlanBelekov/agent-job-sync/internal/log"
	"github.com/ErlanBelekov/agent-job-sync/internal/metrics"
	"github.com/ErlanBelekov/agent-job-sync/internal/repository"
	"golang.org/x/sync/errgroup"
)

type AgentClient interface {
	FetchJobStatus(ctx context.Context, ref domain.AgentRef, externalJobID string) (*domain.AgentJobStatus, error)
}

type EscrowClient interface {
	GetPurchaseByBlockchainID(ctx context.Context, blockchainID string) (*domain.PurchaseSnapshot, error)
	GetPurchaseByID(ctx context.Context, purchaseID string) (*domain.PurchaseSnapshot, error)
}

// Notifier must not block: delivery happens after Sync has returned.
type Notifier interface {
	SendFinalStatus(ctx context.Context, job *domain.Job, status domain.Status)
	SendFailureNotification(ctx context.Context, job *domain.Job, status domain.Status)
}

// Locker serialises syncs of the same job across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// result holds the outcome of one collaborator call. A failed call means
// "nothing new this round".
type result[T any] struct {
	val T
	err error
}

func (r result[T]) ok() bool { return r.err == nil }

type SyncConfig struct {
	LockTTL time.Duration
	Now     func() time.Time
}

type SyncUsecase struct {
	store    repository.JobStore
	agent    AgentClient
	escrow   EscrowClient
	notifier Notifier
	locker   Locker
	lockTTL  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewSyncUsecase(
	store repository.JobStore,
	agent AgentClient,
	escrow EscrowClient,
	notifier Notifier,
	locker Locker,
	logger *slog.Logger,
	cfg SyncConfig,
) *SyncUsecase {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SyncUsecase{
		store:    store,
		agent:    agent,
		escrow:   escrow,
		notifier: notifier,
		locker:   locker,
		lockTTL:  cfg.LockTTL,
		now:      cfg.Now,
		logger:   logger.With("component", "sync"),
	}
}

// Sync pulls fresh agent and escrow state for the job, persists it in one
// transaction and fires notifications when the derived status changed.
// Collaborator failures are logged and skipped; persistence failures abort the
// round and are returned.
func (u *SyncUsecase) Sync(ctx context.Context, jobID string) (domain.Status, error) {
	ctx = applog.WithJobID(ctx, jobID)
	start := time.Now()

	token, err := u.locker.TryLock(ctx, jobID, u.lockTTL)
	switch {
	case errors.Is(err, domain.ErrSyncInProgress):
		metrics.SyncsTotal.WithLabelValues("locked").Inc()
		return "", err
	case err != nil:
		// Backend down: proceed unlocked, same as running without Redis.
		metrics.SyncLockErrorsTotal.Inc()
		u.logger.WarnContext(ctx, "sync lock unavailable, syncing unlocked", "error", err)
	default:
		defer func() {
			if err := u.locker.Unlock(context.WithoutCancel(ctx), jobID, token); err != nil {
				u.logger.WarnContext(ctx, "release sync lock", "error", err)
			}
		}()
	}

	status, err := u.sync(ctx, jobID)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.SyncsTotal.WithLabelValues(outcome).Inc()
	metrics.SyncDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return status, err
}

func (u *SyncUsecase) sync(ctx context.Context, jobID string) (domain.Status, error) {
	job, err := u.store.GetSnapshot(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("load job: %w", err)
	}
	// One clock reading per round: deadlines crossed mid-sync surface on the next round.
	now := u.now()
	oldStatus := lifecycle.ComputeStatus(job, now)

	discovered := false
	if lifecycle.ShouldLookupPurchase(job) {
		job, discovered, err = u.lookupPurchase(ctx, job)
		if err != nil {
			return "", err
		}
	}

	agentRes, escrowRes := u.fetch(ctx, job, now, !discovered)

	var newStatus domain.Status
	err = u.store.WithTx(ctx, func(ctx context.Context, tx repository.JobTx) error {
		current, err := tx.GetSnapshot(ctx, jobID)
		if err != nil {
			return fmt.Errorf("lock job: %w", err)
		}

		dirty := false
		if escrowRes.ok() && escrowRes.val != nil {
			if err := tx.UpsertPurchase(ctx, jobID, escrowRes.val); err != nil {
				return fmt.Errorf("upsert purchase: %w", err)
			}
			dirty = true
		}
		if agentRes.ok() && agentRes.val != nil && !agentRes.val.SameAs(current.LatestEvent()) {
			if err := tx.AppendStatusEvent(ctx, jobID, agentRes.val); err != nil {
				return fmt.Errorf("append status event: %w", err)
			}
			dirty = true
		}
		if dirty {
			if current, err = tx.GetSnapshot(ctx, jobID); err != nil {
				return fmt.Errorf("reload job: %w", err)
			}
		}

		newStatus = lifecycle.ComputeStatus(current, now)

		if lifecycle.ImpliesRefund(newStatus) && !current.Refunded() {
			settled, err := tx.SettleRefund(ctx, jobID)
			if err != nil {
				return fmt.Errorf("settle refund: %w", err)
			}
			if settled {
				metrics.RefundsSettledTotal.Inc()
				u.logger.InfoContext(ctx, "refund settled", "status", newStatus, "credits", current.CreditCost)
			}
		}

		if err := tx.SaveStatus(ctx, jobID, newStatus, now); err != nil {
			return fmt.Errorf("save status: %w", err)
		}
		job = current
		return nil
	})
	if err != nil {
		return "", err
	}

	if newStatus != oldStatus {
		u.onTransition(ctx, job, oldStatus, newStatus)
	}
	return newStatus, nil
}

// lookupPurchase asks escrow whether the purchase for a freshly started paid job
// exists yet and persists it when it does. The reloaded snapshot is returned.
func (u *SyncUsecase) lookupPurchase(ctx context.Context, job *domain.Job) (*domain.Job, bool, error) {
	snap, err := u.escrow.GetPurchaseByBlockchainID(ctx, *job.BlockchainIdentifier)
	switch {
	case errors.Is(err, domain.ErrPurchaseNotFound):
		return job, false, nil
	case err != nil:
		u.collaboratorFailed(ctx, "escrow_lookup", err)
		return job, false, nil
	}

	err = u.store.WithTx(ctx, func(ctx context.Context, tx repository.JobTx) error {
		if _, err := tx.GetSnapshot(ctx, job.ID); err != nil {
			return fmt.Errorf("lock job: %w", err)
		}
		if err := tx.UpsertPurchase(ctx, job.ID, snap); err != nil {
			return fmt.Errorf("upsert purchase: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("persist discovered purchase: %w", err)
	}

	reloaded, err := u.store.GetSnapshot(ctx, job.ID)
	if err != nil {
		return nil, false, fmt.Errorf("reload job: %w", err)
	}
	u.logger.InfoContext(ctx, "purchase discovered", "purchase_id", snap.ExternalID)
	return reloaded, true, nil
}

// fetch queries the agent and escrow services concurrently. Neither call can
// fail the sync.
func (u *SyncUsecase) fetch(ctx context.Context, job *domain.Job, now time.Time, escrowAllowed bool) (result[*domain.AgentJobStatus], result[*domain.PurchaseSnapshot]) {
	var (
		agentRes  result[*domain.AgentJobStatus]
		escrowRes result[*domain.PurchaseSnapshot]
		g         errgroup.Group
	)
	agentRes.err = errSkipped
	escrowRes.err = errSkipped

	if lifecycle.ShouldFetchAgent(job, now) {
		g.Go(func() error {
			st, err := u.agent.FetchJobStatus(ctx, job.Agent, *job.AgentJobID)
			agentRes = result[*domain.AgentJobStatus]{val: st, err: err}
			if err != nil {
				u.collaboratorFailed(ctx, "agent", err)
			}
			return nil
		})
	}

	if escrowAllowed && lifecycle.ShouldFetchEscrow(job) {
		g.Go(func() error {
			snap, err := u.escrow.GetPurchaseByID(ctx, job.Purchase.ExternalID)
			escrowRes = result[*domain.PurchaseSnapshot]{val: snap, err: err}
			if err != nil {
				u.collaboratorFailed(ctx, "escrow", err)
			}
			return nil
		})
	}

	_ = g.Wait()
	return agentRes, escrowRes
}

var errSkipped = errors.New("fetch skipped")

func (u *SyncUsecase) collaboratorFailed(ctx context.Context, name string, err error) {
	metrics.CollaboratorFailuresTotal.WithLabelValues(name).Inc()
	u.logger.WarnContext(ctx, "collaborator unavailable, using stored state", "collaborator", name, "error", err)
}

func (u *SyncUsecase) onTransition(ctx context.Context, job *domain.Job, from, to domain.Status) {
	metrics.StatusTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	u.logger.InfoContext(ctx, "job status changed", "from", from, "to", to)

	if lifecycle.IsFinal(to) {
		u.notifier.SendFinalStatus(ctx, job, to)
	}
	if lifecycle.IsFailure(to) {
		u.notifier.SendFailureNotification(ctx, job, to)
	}
}
