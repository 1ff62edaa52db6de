package lifecycle_test

import (
	"testing"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/lifecycle"
	"github.com/stretchr/testify/assert"
)

func TestShouldFetchAgent(t *testing.T) {
	t.Run("demo", func(t *testing.T) {
		job := &domain.Job{Type: domain.JobTypeDemo, AgentJobID: ptr("a-1")}
		assert.False(t, lifecycle.ShouldFetchAgent(job, now))
	})

	t.Run("free", func(t *testing.T) {
		job := &domain.Job{Type: domain.JobTypeFree, AgentJobID: ptr("a-1")}
		assert.True(t, lifecycle.ShouldFetchAgent(job, now))
	})

	t.Run("no agent job id", func(t *testing.T) {
		job := &domain.Job{Type: domain.JobTypeFree}
		assert.False(t, lifecycle.ShouldFetchAgent(job, now))
	})

	t.Run("refunded", func(t *testing.T) {
		job := paidJob(ptr(domain.OnChainFundsLocked), event(domain.AgentStatusRunning))
		job.AgentJobID = ptr("a-1")
		job.RefundedTransactionRef = ptr("ctx-1")
		assert.False(t, lifecycle.ShouldFetchAgent(job, now))
	})

	t.Run("result submitted and completed", func(t *testing.T) {
		job := paidJob(ptr(domain.OnChainResultSubmitted), event(domain.AgentStatusCompleted))
		job.AgentJobID = ptr("a-1")
		assert.False(t, lifecycle.ShouldFetchAgent(job, now))
	})

	t.Run("result submitted and completed but refund in flight", func(t *testing.T) {
		job := paidJob(ptr(domain.OnChainResultSubmitted), event(domain.AgentStatusCompleted))
		job.AgentJobID = ptr("a-1")
		job.Purchase.NextAction = domain.NextActionSetRefundRequestedRequested
		assert.Equal(t, domain.StatusRefundPending, lifecycle.ComputeStatus(job, now))
		assert.True(t, lifecycle.ShouldFetchAgent(job, now))
	})

	t.Run("result submitted but still running", func(t *testing.T) {
		job := paidJob(ptr(domain.OnChainResultSubmitted), event(domain.AgentStatusRunning))
		job.AgentJobID = ptr("a-1")
		assert.True(t, lifecycle.ShouldFetchAgent(job, now))
	})
}

func TestShouldFetchEscrow(t *testing.T) {
	assert.False(t, lifecycle.ShouldFetchEscrow(&domain.Job{Type: domain.JobTypeFree}))
	assert.False(t, lifecycle.ShouldFetchEscrow(&domain.Job{Type: domain.JobTypeDemo}))

	job := paidJob(ptr(domain.OnChainFundsLocked))
	assert.True(t, lifecycle.ShouldFetchEscrow(job))

	job.RefundedTransactionRef = ptr("ctx-1")
	assert.False(t, lifecycle.ShouldFetchEscrow(job))

	job.RefundedTransactionRef = nil
	job.Purchase = nil
	assert.False(t, lifecycle.ShouldFetchEscrow(job))
}

func TestShouldLookupPurchase(t *testing.T) {
	job := paidJob(nil)
	assert.False(t, lifecycle.ShouldLookupPurchase(job), "purchase already known")

	job.Purchase = nil
	assert.True(t, lifecycle.ShouldLookupPurchase(job))

	job.BlockchainIdentifier = nil
	assert.False(t, lifecycle.ShouldLookupPurchase(job))

	assert.False(t, lifecycle.ShouldLookupPurchase(&domain.Job{Type: domain.JobTypeFree, BlockchainIdentifier: ptr("x")}))
}

func TestCanRequestRefund(t *testing.T) {
	job := paidJob(ptr(domain.OnChainFundsLocked), event(domain.AgentStatusRunning))
	assert.True(t, lifecycle.CanRequestRefund(job))

	job.Purchase.OnChainStatus = ptr(domain.OnChainResultSubmitted)
	assert.True(t, lifecycle.CanRequestRefund(job))

	job.Purchase.NextAction = domain.NextActionSetRefundRequestedRequested
	assert.False(t, lifecycle.CanRequestRefund(job), "refund already in flight")

	job.Purchase.NextAction = domain.NextActionNone
	job.Purchase.OnChainStatus = ptr(domain.OnChainDisputed)
	assert.False(t, lifecycle.CanRequestRefund(job))

	job.Purchase.OnChainStatus = ptr(domain.OnChainFundsLocked)
	job.RefundedTransactionRef = ptr("ctx-1")
	assert.False(t, lifecycle.CanRequestRefund(job))

	assert.False(t, lifecycle.CanRequestRefund(paidJob(nil)))
	assert.False(t, lifecycle.CanRequestRefund(&domain.Job{Type: domain.JobTypeFree}))
}
