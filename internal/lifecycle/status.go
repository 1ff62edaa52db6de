// Package lifecycle derives a job's lifecycle status from its agent reports,
// escrow state and local next-action bookkeeping. Everything here is pure.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
)

// ComputeStatus maps a job snapshot to exactly one status. It reads nothing but
// job and now, so calling it twice on the same snapshot gives the same answer.
//
// Enum values are validated where they enter the system (DB scan, HTTP decode).
// An undeclared value reaching this function is a programming error and panics.
func ComputeStatus(job *domain.Job, now time.Time) domain.Status {
	switch job.Type {
	case domain.JobTypeDemo:
		return domain.StatusCompleted
	case domain.JobTypeFree:
		return freeStatus(job)
	case domain.JobTypePaid:
		return paidStatus(job, now)
	default:
		panic(fmt.Sprintf("lifecycle: unhandled job type %q", job.Type))
	}
}

func freeStatus(job *domain.Job) domain.Status {
	head := job.LatestEvent()
	if head == nil {
		return domain.StatusPaymentPending
	}
	switch head.Status {
	case domain.AgentStatusAwaitingPayment:
		return domain.StatusFailed
	case domain.AgentStatusAwaitingInput:
		return domain.StatusInputRequired
	case domain.AgentStatusCompleted:
		return domain.StatusCompleted
	case domain.AgentStatusFailed:
		return domain.StatusFailed
	case domain.AgentStatusRunning:
		return domain.StatusProcessing
	default:
		return domain.StatusFailed
	}
}

// guard returns a status and true when it decides the outcome.
type guard func(job *domain.Job, now time.Time) (domain.Status, bool)

// paidGuards run in priority order; the first one that decides wins.
var paidGuards = []guard{
	refundedGuard,
	paymentNotStartedGuard,
	nextActionGuard,
}

func paidStatus(job *domain.Job, now time.Time) domain.Status {
	for _, g := range paidGuards {
		if st, ok := g(job, now); ok {
			return st
		}
	}
	return onChainStatus(job, now)
}

func refundedGuard(job *domain.Job, _ time.Time) (domain.Status, bool) {
	if job.Refunded() {
		return domain.StatusRefundResolved, true
	}
	return "", false
}

func paymentNotStartedGuard(job *domain.Job, now time.Time) (domain.Status, bool) {
	p := job.Purchase
	if p == nil {
		if Elapsed(job.CreatedAt, now) {
			return domain.StatusPaymentFailed, true
		}
		return domain.StatusPaymentPending, true
	}
	if p.OnChainStatus == nil && p.NextActionErrorType != nil {
		return domain.StatusPaymentFailed, true
	}
	return "", false
}

func nextActionGuard(job *domain.Job, _ time.Time) (domain.Status, bool) {
	switch job.Purchase.NextAction {
	case domain.NextActionFundsLockingRequested, domain.NextActionFundsLockingInitiated:
		return domain.StatusPaymentPending, true
	case domain.NextActionSetRefundRequestedRequested, domain.NextActionSetRefundRequestedInitiated,
		domain.NextActionUnSetRefundRequestedRequested, domain.NextActionUnSetRefundRequestedInitiated:
		return domain.StatusRefundPending, true
	case domain.NextActionWithdrawRefundRequested, domain.NextActionWithdrawRefundInitiated,
		domain.NextActionWaitingForManualAction, domain.NextActionWaitingForExternalAction,
		domain.NextActionNone, domain.NextActionIgnore:
		return "", false
	default:
		panic(fmt.Sprintf("lifecycle: unhandled next action %q", job.Purchase.NextAction))
	}
}

func onChainStatus(job *domain.Job, now time.Time) domain.Status {
	head := job.LatestEvent()
	if head == nil {
		return domain.StatusFailed
	}

	state := job.Purchase.OnChainStatus
	if state == nil {
		if ElapsedPtr(job.PayByTime, now) {
			return domain.StatusFailed
		}
		return domain.StatusPaymentPending
	}

	switch *state {
	case domain.OnChainFundsLocked:
		return fundsLockedStatus(head.Status, job.ExternalDisputeUnlockTime, job.SubmitResultTime, now)
	case domain.OnChainResultSubmitted:
		if head.Status == domain.AgentStatusCompleted {
			return domain.StatusCompleted
		}
		return domain.StatusResultPending
	case domain.OnChainFundsWithdrawn:
		if head.Status == domain.AgentStatusCompleted {
			return domain.StatusCompleted
		}
		return domain.StatusFailed
	case domain.OnChainFundsOrDatumInvalid:
		return domain.StatusPaymentFailed
	case domain.OnChainRefundRequested:
		return domain.StatusRefundPending
	case domain.OnChainRefundWithdrawn:
		return domain.StatusRefundResolved
	case domain.OnChainDisputed:
		return domain.StatusDisputePending
	case domain.OnChainDisputedWithdrawn:
		return domain.StatusDisputeResolved
	default:
		panic(fmt.Sprintf("lifecycle: unhandled on-chain status %q", *state))
	}
}

// fundsLockedStatus resolves a job whose payment is locked in escrow.
func fundsLockedStatus(agent domain.AgentStatus, disputeUnlock, submitResult *time.Time, now time.Time) domain.Status {
	switch agent {
	case domain.AgentStatusAwaitingInput:
		return domain.StatusInputRequired
	case domain.AgentStatusCompleted:
		return domain.StatusCompleted
	case domain.AgentStatusFailed:
		return domain.StatusFailed
	}
	switch {
	case ElapsedPtr(disputeUnlock, now):
		return domain.StatusFailed
	case ElapsedPtr(submitResult, now):
		return domain.StatusResultPending
	default:
		return domain.StatusProcessing
	}
}

// IsFinal reports whether no further transition is expected from s.
func IsFinal(s domain.Status) bool {
	switch s {
	case domain.StatusCompleted, domain.StatusFailed, domain.StatusRefundResolved,
		domain.StatusDisputeResolved, domain.StatusPaymentFailed:
		return true
	}
	return false
}

// IsFailure reports whether s should trigger the failure notification.
func IsFailure(s domain.Status) bool {
	return s == domain.StatusFailed || s == domain.StatusPaymentFailed
}

// ImpliesRefund reports whether reaching s means the user's credits go back.
func ImpliesRefund(s domain.Status) bool {
	return s == domain.StatusPaymentFailed || s == domain.StatusRefundResolved
}

// FinalStatuses lists every status for which IsFinal is true.
func FinalStatuses() []domain.Status {
	return []domain.Status{
		domain.StatusCompleted, domain.StatusFailed, domain.StatusRefundResolved,
		domain.StatusDisputeResolved, domain.StatusPaymentFailed,
	}
}

// NonFinalStatuses lists every status a job can still leave on its own.
func NonFinalStatuses() []domain.Status {
	return []domain.Status{
		domain.StatusPaymentPending, domain.StatusProcessing, domain.StatusInputRequired,
		domain.StatusResultPending, domain.StatusRefundPending, domain.StatusDisputePending,
	}
}
