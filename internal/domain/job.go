package domain

import (
	"fmt"
	"time"
)

type JobType string

const (
	JobTypeFree JobType = "free"
	JobTypePaid JobType = "paid"
	JobTypeDemo JobType = "demo"
)

func ParseJobType(s string) (JobType, error) {
	switch t := JobType(s); t {
	case JobTypeFree, JobTypePaid, JobTypeDemo:
		return t, nil
	}
	return "", fmt.Errorf("%w: job type %q", ErrUnknownEnumValue, s)
}

// AgentRef identifies the agent service a job runs on.
type AgentRef struct {
	ID      string
	BaseURL string
}

// Job is the aggregate root: the job row plus its purchase and status event log.
// Escrow timestamps are fixed at creation and set only for paid jobs.
type Job struct {
	ID         string
	UserID     string
	UserEmail  string
	WebhookURL *string // nil means the user has no notification webhook
	Name       string
	Type       JobType
	Agent      AgentRef
	AgentJobID *string
	CreditCost int64

	CreatedAt                 time.Time
	PayByTime                 *time.Time
	SubmitResultTime          *time.Time
	UnlockTime                *time.Time
	ExternalDisputeUnlockTime *time.Time

	BlockchainIdentifier   *string
	RefundedTransactionRef *string

	Purchase *Purchase       // nil until escrow creation is observed
	Events   []JobStatusEvent // most recent first

	// Cache of the last derived status. Only used to pick sync candidates.
	LastStatus   *Status
	LastSyncedAt *time.Time
}

// LatestEvent returns the head of the status event log, or nil when the agent
// has not reported anything yet.
func (j *Job) LatestEvent() *JobStatusEvent {
	if len(j.Events) == 0 {
		return nil
	}
	return &j.Events[0]
}

func (j *Job) Refunded() bool {
	return j.RefundedTransactionRef != nil
}

// JobStatusEvent is one agent-reported state. Rows are append-only.
type JobStatusEvent struct {
	ID         string
	JobID      string
	ExternalID *string
	Status     AgentStatus
	Result     *string
	CreatedAt  time.Time
}

// AgentJobStatus is what the agent service reports for a job.
type AgentJobStatus struct {
	ExternalID *string
	Status     AgentStatus
	Result     *string
}

// SameAs reports whether the report carries nothing new relative to head.
// Reports with an id are compared by id; reports without one by status.
func (s *AgentJobStatus) SameAs(head *JobStatusEvent) bool {
	if head == nil {
		return false
	}
	if s.ExternalID != nil && head.ExternalID != nil && *s.ExternalID == *head.ExternalID {
		return true
	}
	return s.ExternalID == nil && s.Status == head.Status
}
