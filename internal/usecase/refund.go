package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/lifecycle"
	"github.com/ErlanBelekov/agent-job-sync/internal/repository"
)

type RefundRequester interface {
	RequestRefund(ctx context.Context, blockchainID string) (*domain.PurchaseSnapshot, error)
}

type RefundUsecase struct {
	store  repository.JobStore
	escrow RefundRequester
	now    func() time.Time
	logger *slog.Logger
}

func NewRefundUsecase(store repository.JobStore, escrow RefundRequester, logger *slog.Logger) *RefundUsecase {
	return &RefundUsecase{
		store:  store,
		escrow: escrow,
		now:    time.Now,
		logger: logger.With("component", "refund"),
	}
}

// RequestRefund asks escrow to refund a paid job on behalf of its owner and
// records the in-flight request. The returned status is normally REFUND_PENDING;
// credits move only once a later sync sees the refund settle.
func (u *RefundUsecase) RequestRefund(ctx context.Context, jobID, userID string) (domain.Status, error) {
	job, err := u.store.GetSnapshot(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("load job: %w", err)
	}
	if job.UserID != userID {
		return "", domain.ErrJobNotFound
	}
	if !lifecycle.CanRequestRefund(job) {
		return "", domain.ErrJobNotRefundable
	}

	snap, err := u.escrow.RequestRefund(ctx, *job.BlockchainIdentifier)
	if err != nil {
		u.logger.WarnContext(ctx, "escrow refund request failed", "job_id", jobID, "error", err)
		return "", fmt.Errorf("%w: %v", domain.ErrRefundRequestFailed, err)
	}

	var status domain.Status
	err = u.store.WithTx(ctx, func(ctx context.Context, tx repository.JobTx) error {
		if _, err := tx.GetSnapshot(ctx, jobID); err != nil {
			return fmt.Errorf("lock job: %w", err)
		}
		if err := tx.UpsertPurchase(ctx, jobID, snap); err != nil {
			return fmt.Errorf("upsert purchase: %w", err)
		}
		current, err := tx.GetSnapshot(ctx, jobID)
		if err != nil {
			return fmt.Errorf("reload job: %w", err)
		}
		now := u.now()
		status = lifecycle.ComputeStatus(current, now)
		return tx.SaveStatus(ctx, jobID, status, now)
	})
	if err != nil {
		return "", err
	}

	u.logger.InfoContext(ctx, "refund requested", "job_id", jobID, "status", status)
	return status, nil
}
