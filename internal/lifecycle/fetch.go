package lifecycle

import (
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
)

// ShouldLookupPurchase reports whether a paid job still waits for its purchase
// to show up at the escrow service.
func ShouldLookupPurchase(job *domain.Job) bool {
	return job.Type == domain.JobTypePaid &&
		job.Purchase == nil &&
		!job.Refunded() &&
		job.BlockchainIdentifier != nil
}

// ShouldFetchAgent reports whether the agent service can tell us anything new.
// Once the result is submitted on chain and the job already derives to
// completed, the agent has nothing left to report.
func ShouldFetchAgent(job *domain.Job, now time.Time) bool {
	if job.Type == domain.JobTypeDemo || job.Refunded() || job.AgentJobID == nil {
		return false
	}
	if p := job.Purchase; p != nil && p.OnChainStatus != nil && *p.OnChainStatus == domain.OnChainResultSubmitted {
		return ComputeStatus(job, now) != domain.StatusCompleted
	}
	return true
}

// ShouldFetchEscrow reports whether the escrow purchase should be refreshed.
func ShouldFetchEscrow(job *domain.Job) bool {
	return job.Type == domain.JobTypePaid && !job.Refunded() && job.Purchase != nil
}

// CanRequestRefund reports whether the owner may ask the escrow to refund a
// paid job: payment is locked or the result is submitted, and no refund toggle
// or funds locking is already in flight.
func CanRequestRefund(job *domain.Job) bool {
	if job.Type != domain.JobTypePaid || job.Refunded() || job.BlockchainIdentifier == nil {
		return false
	}
	p := job.Purchase
	if p == nil || p.OnChainStatus == nil {
		return false
	}
	if *p.OnChainStatus != domain.OnChainFundsLocked && *p.OnChainStatus != domain.OnChainResultSubmitted {
		return false
	}
	switch p.NextAction {
	case domain.NextActionNone, domain.NextActionIgnore,
		domain.NextActionWaitingForExternalAction, domain.NextActionWaitingForManualAction:
		return true
	}
	return false
}
