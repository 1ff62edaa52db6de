package domain

import "fmt"

// Status is the single derived lifecycle status shown to users.
type Status string

const (
	StatusPaymentPending  Status = "payment_pending"
	StatusPaymentFailed   Status = "payment_failed"
	StatusProcessing      Status = "processing"
	StatusInputRequired   Status = "input_required"
	StatusResultPending   Status = "result_pending"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusRefundPending   Status = "refund_pending"
	StatusRefundResolved  Status = "refund_resolved"
	StatusDisputePending  Status = "dispute_pending"
	StatusDisputeResolved Status = "dispute_resolved"
)

var allStatuses = []Status{
	StatusPaymentPending, StatusPaymentFailed, StatusProcessing, StatusInputRequired,
	StatusResultPending, StatusCompleted, StatusFailed, StatusRefundPending,
	StatusRefundResolved, StatusDisputePending, StatusDisputeResolved,
}

func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: status %q", ErrUnknownEnumValue, s)
}

// AgentStatus is the execution status reported by the agent service.
type AgentStatus string

const (
	AgentStatusAwaitingPayment AgentStatus = "awaiting_payment"
	AgentStatusAwaitingInput   AgentStatus = "awaiting_input"
	AgentStatusRunning         AgentStatus = "running"
	AgentStatusCompleted       AgentStatus = "completed"
	AgentStatusFailed          AgentStatus = "failed"
)

func ParseAgentStatus(s string) (AgentStatus, error) {
	switch st := AgentStatus(s); st {
	case AgentStatusAwaitingPayment, AgentStatusAwaitingInput, AgentStatusRunning,
		AgentStatusCompleted, AgentStatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: agent status %q", ErrUnknownEnumValue, s)
}

// OnChainStatus is the escrow lifecycle state of a purchase.
type OnChainStatus string

const (
	OnChainFundsLocked         OnChainStatus = "FundsLocked"
	OnChainResultSubmitted     OnChainStatus = "ResultSubmitted"
	OnChainFundsWithdrawn      OnChainStatus = "Withdrawn"
	OnChainFundsOrDatumInvalid OnChainStatus = "FundsOrDatumInvalid"
	OnChainRefundRequested     OnChainStatus = "RefundRequested"
	OnChainRefundWithdrawn     OnChainStatus = "RefundWithdrawn"
	OnChainDisputed            OnChainStatus = "Disputed"
	OnChainDisputedWithdrawn   OnChainStatus = "DisputedWithdrawn"
)

func ParseOnChainStatus(s string) (OnChainStatus, error) {
	switch st := OnChainStatus(s); st {
	case OnChainFundsLocked, OnChainResultSubmitted, OnChainFundsWithdrawn,
		OnChainFundsOrDatumInvalid, OnChainRefundRequested, OnChainRefundWithdrawn,
		OnChainDisputed, OnChainDisputedWithdrawn:
		return st, nil
	}
	return "", fmt.Errorf("%w: on-chain status %q", ErrUnknownEnumValue, s)
}

// NextAction is a local mutation against the escrow not yet confirmed on-chain.
type NextAction string

const (
	NextActionNone                          NextAction = "None"
	NextActionIgnore                        NextAction = "Ignore"
	NextActionWaitingForManualAction        NextAction = "WaitingForManualAction"
	NextActionWaitingForExternalAction      NextAction = "WaitingForExternalAction"
	NextActionFundsLockingRequested         NextAction = "FundsLockingRequested"
	NextActionFundsLockingInitiated         NextAction = "FundsLockingInitiated"
	NextActionSetRefundRequestedRequested   NextAction = "SetRefundRequestedRequested"
	NextActionSetRefundRequestedInitiated   NextAction = "SetRefundRequestedInitiated"
	NextActionUnSetRefundRequestedRequested NextAction = "UnSetRefundRequestedRequested"
	NextActionUnSetRefundRequestedInitiated NextAction = "UnSetRefundRequestedInitiated"
	NextActionWithdrawRefundRequested       NextAction = "WithdrawRefundRequested"
	NextActionWithdrawRefundInitiated       NextAction = "WithdrawRefundInitiated"
)

func ParseNextAction(s string) (NextAction, error) {
	switch a := NextAction(s); a {
	case NextActionNone, NextActionIgnore, NextActionWaitingForManualAction,
		NextActionWaitingForExternalAction, NextActionFundsLockingRequested,
		NextActionFundsLockingInitiated, NextActionSetRefundRequestedRequested,
		NextActionSetRefundRequestedInitiated, NextActionUnSetRefundRequestedRequested,
		NextActionUnSetRefundRequestedInitiated, NextActionWithdrawRefundRequested,
		NextActionWithdrawRefundInitiated:
		return a, nil
	case "":
		return NextActionNone, nil
	}
	return "", fmt.Errorf("%w: next action %q", ErrUnknownEnumValue, s)
}
