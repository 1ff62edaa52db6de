package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/repository"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type JobRepository struct {
	pool *pgxpool.Pool
	tx   TxConfig
}

var _ repository.JobStore = (*JobRepository)(nil)

func NewJobRepository(pool *pgxpool.Pool, txCfg TxConfig) *JobRepository {
	return &JobRepository{pool: pool, tx: txCfg.withDefaults()}
}

func (r *JobRepository) GetSnapshot(ctx context.Context, jobID string) (*domain.Job, error) {
	return loadSnapshot(ctx, r.pool, jobID, false)
}

func (r *JobRepository) ListSyncCandidates(ctx context.Context, input repository.ListCandidatesInput) ([]string, error) {
	args := []any{input.SyncedBefore}
	where := []string{
		"refunded_transaction_id IS NULL",
		"(last_synced_at IS NULL OR last_synced_at < $1)",
	}

	if len(input.Statuses) > 0 {
		statuses := make([]string, len(input.Statuses))
		for i, s := range input.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("(last_status IS NULL OR last_status = ANY($%d))", len(args)))
	}
	if input.PaidOnly {
		where = append(where, "job_type = 'paid'")
	}
	if input.UnlockAfter != nil {
		args = append(args, *input.UnlockAfter)
		where = append(where, fmt.Sprintf("unlock_time > $%d", len(args)))
	}
	args = append(args, input.Limit)

	query := fmt.Sprintf(`
		SELECT id::text
		FROM jobs
		WHERE %s
		ORDER BY last_synced_at ASC NULLS FIRST, created_at ASC
		LIMIT $%d`,
		strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sync candidates: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect sync candidates: %w", err)
	}
	return ids, nil
}

const snapshotColumns = `
	j.id::text, j.user_id, u.email, u.webhook_url, j.name, j.job_type,
	j.agent_id, a.base_url, j.agent_job_id, j.credit_cost,
	j.created_at, j.pay_by_time, j.submit_result_time, j.unlock_time,
	j.external_dispute_unlock_time, j.blockchain_identifier,
	j.refunded_transaction_id::text, j.last_status, j.last_synced_at`

func loadSnapshot(ctx context.Context, q querier, jobID string, forUpdate bool) (*domain.Job, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM jobs j
		JOIN users u  ON u.id = j.user_id
		JOIN agents a ON a.id = j.agent_id
		WHERE j.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF j`
	}

	job, err := scanJob(q.QueryRow(ctx, query, jobID))
	if err != nil {
		return nil, err
	}

	if job.Purchase, err = loadPurchase(ctx, q, job.ID); err != nil {
		return nil, err
	}
	if job.Events, err = loadEvents(ctx, q, job.ID); err != nil {
		return nil, err
	}
	return job, nil
}

func loadPurchase(ctx context.Context, q querier, jobID string) (*domain.Purchase, error) {
	row := q.QueryRow(ctx, `
		SELECT id::text, job_id::text, external_id, on_chain_status, next_action,
		       next_action_error_type, next_action_error_note, tx_hash, tx_status,
		       result_submitted_at, created_at, updated_at
		FROM purchases
		WHERE job_id = $1`, jobID)

	var (
		p          domain.Purchase
		onChain    *string
		nextAction string
	)
	err := row.Scan(
		&p.ID, &p.JobID, &p.ExternalID, &onChain, &nextAction,
		&p.NextActionErrorType, &p.NextActionErrorNote, &p.TxHash, &p.TxStatus,
		&p.ResultSubmittedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan purchase: %w", err)
	}

	if onChain != nil {
		st, err := domain.ParseOnChainStatus(*onChain)
		if err != nil {
			return nil, fmt.Errorf("purchase %s: %w", p.ID, err)
		}
		p.OnChainStatus = &st
	}
	if p.NextAction, err = domain.ParseNextAction(nextAction); err != nil {
		return nil, fmt.Errorf("purchase %s: %w", p.ID, err)
	}
	return &p, nil
}

func loadEvents(ctx context.Context, q querier, jobID string) ([]domain.JobStatusEvent, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, job_id::text, external_id, status, result, created_at
		FROM job_status_events
		WHERE job_id = $1
		ORDER BY created_at DESC, id DESC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}
	defer rows.Close()

	var events []domain.JobStatusEvent
	for rows.Next() {
		var (
			ev     domain.JobStatusEvent
			status string
		)
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.ExternalID, &status, &ev.Result, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		// Stored as reported; unknown agent values stay visible to the status
		// computer, which treats them as failures.
		ev.Status = domain.AgentStatus(status)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status events: %w", err)
	}
	return events, nil
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

// isMalformedID reports a job id that is not a UUID. No such job can exist.
func isMalformedID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		j          domain.Job
		jobType    string
		lastStatus *string
	)
	err := row.Scan(
		&j.ID, &j.UserID, &j.UserEmail, &j.WebhookURL, &j.Name, &jobType,
		&j.Agent.ID, &j.Agent.BaseURL, &j.AgentJobID, &j.CreditCost,
		&j.CreatedAt, &j.PayByTime, &j.SubmitResultTime, &j.UnlockTime,
		&j.ExternalDisputeUnlockTime, &j.BlockchainIdentifier,
		&j.RefundedTransactionRef, &lastStatus, &j.LastSyncedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isMalformedID(err) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if j.Type, err = domain.ParseJobType(jobType); err != nil {
		return nil, fmt.Errorf("job %s: %w", j.ID, err)
	}
	if lastStatus != nil {
		st, err := domain.ParseStatus(*lastStatus)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", j.ID, err)
		}
		j.LastStatus = &st
	}
	return &j, nil
}

func optString[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func syncedAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
