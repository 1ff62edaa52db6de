package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
)

type ListCandidatesInput struct {
	Statuses     []domain.Status // cached status must be one of these; nil cached status always matches
	SyncedBefore time.Time       // last sync older than this (or never synced)
	PaidOnly     bool
	UnlockAfter  *time.Time // paid jobs whose unlock time is still after this
	Limit        int
}

// JobReader is the read side used outside the reconciliation transaction.
type JobReader interface {
	// GetSnapshot loads the job aggregate: job row, purchase and the status
	// event log ordered most-recent-first.
	GetSnapshot(ctx context.Context, jobID string) (*domain.Job, error)
}

// JobStore is what the sync and refund use cases need from persistence.
// UseCase depends on interface, not concrete implementation, so tests can pass fakes.
type JobStore interface {
	JobReader

	// ListSyncCandidates returns ids of jobs due for a sync, oldest sync first.
	ListSyncCandidates(ctx context.Context, input ListCandidatesInput) ([]string, error)

	// WithTx runs fn in one transaction. If fn returns an error nothing is written.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx JobTx) error) error
}

// JobTx is the set of writes allowed inside the reconciliation transaction.
type JobTx interface {
	JobReader

	// UpsertPurchase creates or updates the job's single purchase row.
	UpsertPurchase(ctx context.Context, jobID string, p *domain.PurchaseSnapshot) error

	// AppendStatusEvent adds a new head to the status event log. Appending an
	// event whose external id already exists for the job is a no-op.
	AppendStatusEvent(ctx context.Context, jobID string, ev *domain.AgentJobStatus) error

	// SettleRefund credits the job's cost back to its owner and records the
	// credit transaction on the job. Returns false when the job was already refunded.
	SettleRefund(ctx context.Context, jobID string) (bool, error)

	// SaveStatus caches the derived status on the job row.
	SaveStatus(ctx context.Context, jobID string, status domain.Status, syncedAt time.Time) error
}
