package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/repository"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TxConfig bounds the reconciliation transaction. The limits guard against lock
// starvation when the same job is synced concurrently; they are not what makes
// the sync correct.
type TxConfig struct {
	AcquireTimeout time.Duration // wait for a pooled connection
	LockTimeout    time.Duration // wait for row locks
	Timeout        time.Duration // whole transaction
}

func (c TxConfig) withDefaults() TxConfig {
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// WithTx opens a transaction, passes it to fn and commits when fn returns nil.
// Any error rolls back every write made through the tx.
func (r *JobRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.JobTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.tx.Timeout)
	defer cancel()

	acquireCtx, cancelAcquire := context.WithTimeout(ctx, r.tx.AcquireTimeout)
	conn, err := r.pool.Acquire(acquireCtx)
	cancelAcquire()
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockTimeout := fmt.Sprintf("%dms", r.tx.LockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, lockTimeout); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	if err := fn(ctx, &jobTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type jobTx struct {
	tx pgx.Tx
}

// GetSnapshot locks the job row for the rest of the transaction.
func (t *jobTx) GetSnapshot(ctx context.Context, jobID string) (*domain.Job, error) {
	return loadSnapshot(ctx, t.tx, jobID, true)
}

func (t *jobTx) UpsertPurchase(ctx context.Context, jobID string, p *domain.PurchaseSnapshot) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO purchases (
			job_id, external_id, on_chain_status, next_action,
			next_action_error_type, next_action_error_note,
			tx_hash, tx_status, result_submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id) DO UPDATE
		SET external_id            = EXCLUDED.external_id,
		    on_chain_status        = EXCLUDED.on_chain_status,
		    next_action            = EXCLUDED.next_action,
		    next_action_error_type = EXCLUDED.next_action_error_type,
		    next_action_error_note = EXCLUDED.next_action_error_note,
		    tx_hash                = EXCLUDED.tx_hash,
		    tx_status              = EXCLUDED.tx_status,
		    result_submitted_at    = EXCLUDED.result_submitted_at,
		    updated_at             = NOW()`,
		jobID, p.ExternalID, optString(p.OnChainStatus), string(p.NextAction),
		p.NextActionErrorType, p.NextActionErrorNote,
		p.TxHash, p.TxStatus, p.ResultSubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert purchase: %w", err)
	}
	return nil
}

func (t *jobTx) AppendStatusEvent(ctx context.Context, jobID string, ev *domain.AgentJobStatus) error {
	// Savepoint so a duplicate external id does not abort the outer transaction.
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	defer func() { _ = sp.Rollback(ctx) }()

	_, err = sp.Exec(ctx, `
		INSERT INTO job_status_events (job_id, external_id, status, result)
		VALUES ($1, $2, $3, $4)`,
		jobID, ev.ExternalID, string(ev.Status), ev.Result,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil
		}
		return fmt.Errorf("append status event: %w", err)
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (t *jobTx) SettleRefund(ctx context.Context, jobID string) (bool, error) {
	var (
		userID   string
		cost     int64
		refunded bool
	)
	err := t.tx.QueryRow(ctx, `
		SELECT user_id, credit_cost, refunded_transaction_id IS NOT NULL
		FROM jobs
		WHERE id = $1
		FOR UPDATE`, jobID,
	).Scan(&userID, &cost, &refunded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrJobNotFound
		}
		return false, fmt.Errorf("lock job for refund: %w", err)
	}
	if refunded {
		return false, nil
	}

	var creditTxID string
	err = t.tx.QueryRow(ctx, `
		INSERT INTO credit_transactions (user_id, job_id, amount, reason)
		VALUES ($1, $2, $3, 'job_refund')
		RETURNING id::text`,
		userID, jobID, cost,
	).Scan(&creditTxID)
	if err != nil {
		return false, fmt.Errorf("insert refund credit transaction: %w", err)
	}

	if _, err := t.tx.Exec(ctx,
		`UPDATE jobs SET refunded_transaction_id = $2, updated_at = NOW() WHERE id = $1`,
		jobID, creditTxID,
	); err != nil {
		return false, fmt.Errorf("mark job refunded: %w", err)
	}
	return true, nil
}

func (t *jobTx) SaveStatus(ctx context.Context, jobID string, status domain.Status, syncedAt time.Time) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE jobs SET last_status = $2, last_synced_at = $3, updated_at = NOW() WHERE id = $1`,
		jobID, string(status), syncedAtOrNow(syncedAt),
	)
	if err != nil {
		return fmt.Errorf("save status: %w", err)
	}
	return nil
}
