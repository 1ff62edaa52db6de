// Package notify delivers job status notifications to users and operators.
package notify

import (
	"context"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
)

type Kind string

const (
	KindFinalStatus Kind = "job.final_status"
	KindFailure     Kind = "job.failure"
)

// Event is the payload handed to every sink.
type Event struct {
	Kind       Kind          `json:"kind"`
	JobID      string        `json:"job_id"`
	JobName    string        `json:"job_name"`
	JobType    string        `json:"job_type"`
	AgentID    string        `json:"agent_id"`
	UserID     string        `json:"user_id"`
	Status     domain.Status `json:"status"`
	OccurredAt time.Time     `json:"occurred_at"`

	UserEmail  string  `json:"-"`
	WebhookURL *string `json:"-"`
}

func newEvent(kind Kind, job *domain.Job, status domain.Status) Event {
	return Event{
		Kind:       kind,
		JobID:      job.ID,
		JobName:    job.Name,
		JobType:    string(job.Type),
		AgentID:    job.Agent.ID,
		UserID:     job.UserID,
		Status:     status,
		OccurredAt: time.Now().UTC(),
		UserEmail:  job.UserEmail,
		WebhookURL: job.WebhookURL,
	}
}

// Sink is a destination for notification events.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Deliver(ctx context.Context, ev Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, ev)
}
