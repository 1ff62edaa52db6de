// seed inserts a test user, an agent and a handful of jobs into the local dev database.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/infrastructure/postgres"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
)

const (
	seedUserID  = "seed-user"
	seedEmail   = "seed@test.local"
	seedAgentID = "seed-agent"
)

type seedJob struct {
	id         string
	name       string
	jobType    string
	agentJobID *string
	cost       int64
	chainID    *string
	payBy      *time.Time
	submitBy   *time.Time
	unlock     *time.Time
	disputeEnd *time.Time
	comment    string
}

func ptr[T any](v T) *T { return &v }

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set, run: direnv allow")
	}

	pool, err := postgres.NewPool(ctx, dbURL, postgres.PoolConfig{MaxConns: 2})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, email) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, updated_at = NOW()`,
		seedUserID, seedEmail,
	)
	if err != nil {
		log.Fatalf("upsert user: %v", err)
	}

	agentURL := os.Getenv("SEED_AGENT_URL")
	if agentURL == "" {
		agentURL = "http://localhost:8081"
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO agents (id, name, base_url) VALUES ($1, 'Seed Agent', $2)
		ON CONFLICT (id) DO UPDATE SET base_url = EXCLUDED.base_url`,
		seedAgentID, agentURL,
	)
	if err != nil {
		log.Fatalf("upsert agent: %v", err)
	}

	now := time.Now().UTC()
	jobs := []seedJob{
		{
			id: "00000000-0000-4000-8000-000000000001", name: "free, waiting on agent",
			jobType: "free", agentJobID: ptr("agent-job-1"),
			comment: "pending until the agent reports a status",
		},
		{
			id: "00000000-0000-4000-8000-000000000002", name: "free, never started",
			jobType: "free",
			comment: "pending forever, no agent job id",
		},
		{
			id: "00000000-0000-4000-8000-000000000003", name: "paid, awaiting payment",
			jobType: "paid", agentJobID: ptr("agent-job-3"), cost: 500, chainID: ptr("chain-seed-3"),
			payBy: ptr(now.Add(time.Hour)), submitBy: ptr(now.Add(2 * time.Hour)),
			unlock: ptr(now.Add(3 * time.Hour)), disputeEnd: ptr(now.Add(4 * time.Hour)),
			comment: "payment_pending until escrow reports FundsLocked",
		},
		{
			id: "00000000-0000-4000-8000-000000000004", name: "paid, payment window missed",
			jobType: "paid", agentJobID: ptr("agent-job-4"), cost: 500, chainID: ptr("chain-seed-4"),
			payBy: ptr(now.Add(-time.Hour)), submitBy: ptr(now.Add(time.Hour)),
			unlock: ptr(now.Add(2 * time.Hour)), disputeEnd: ptr(now.Add(3 * time.Hour)),
			comment: "payment_failed on first sync if escrow has no purchase",
		},
		{
			id: "00000000-0000-4000-8000-000000000005", name: "demo",
			jobType: "demo", agentJobID: ptr("agent-job-5"),
			comment: "follows the agent like a free job",
		},
	}

	var inserted, skipped int
	for _, j := range jobs {
		var id string
		err := pool.QueryRow(ctx, `
			INSERT INTO jobs (
				id, user_id, agent_id, name, job_type, agent_job_id, credit_cost,
				blockchain_identifier, pay_by_time, submit_result_time,
				unlock_time, external_dispute_unlock_time
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO NOTHING
			RETURNING id`,
			j.id, seedUserID, seedAgentID, j.name, j.jobType, j.agentJobID, j.cost,
			j.chainID, j.payBy, j.submitBy, j.unlock, j.disputeEnd,
		).Scan(&id)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			skipped++
		case err != nil:
			log.Fatalf("insert job %s: %v", j.id, err)
		default:
			inserted++
		}
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  User:         %s (%s)\n", seedUserID, seedEmail)
	fmt.Printf("  Agent:        %s -> %s\n", seedAgentID, agentURL)
	fmt.Printf("  Jobs created: %d  (skipped %d already existing)\n", inserted, skipped)
	fmt.Println()
	for _, j := range jobs {
		fmt.Printf("    %s  %-28s %s\n", j.id, j.name, j.comment)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Println()
		fmt.Println("JWT_SECRET is not set, skipping token generation")
		return
	}

	userToken, err := sign(secret, jwt.MapClaims{"sub": seedUserID})
	if err != nil {
		log.Fatalf("sign user token: %v", err)
	}
	serviceToken, err := sign(secret, jwt.MapClaims{"sub": "seed-service", "scope": "sync"})
	if err != nil {
		log.Fatalf("sign service token: %v", err)
	}

	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Printf("  export JWT=%s\n", userToken)
	fmt.Printf("  export SVC=%s\n", serviceToken)
	fmt.Println()
	fmt.Println("  Read a job's status:")
	fmt.Println("    curl -s http://localhost:8080/jobs/JOB_ID/status -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  Force a sync (what agent and escrow webhooks do):")
	fmt.Println("    curl -s -X POST http://localhost:8080/internal/jobs/JOB_ID/sync -H \"Authorization: Bearer $SVC\"")
	fmt.Println()
	fmt.Println("  Ask for a refund on a paid job:")
	fmt.Println("    curl -s -X POST http://localhost:8080/jobs/JOB_ID/refund -H \"Authorization: Bearer $JWT\"")
}

func sign(secret string, claims jwt.MapClaims) (string, error) {
	claims["exp"] = time.Now().Add(24 * time.Hour).Unix()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
