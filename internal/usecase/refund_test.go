package usecase_test

import (
	"context"
	"testing"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refundableEscrow(calls *int) *fakeEscrow {
	e := escrowDown()
	e.requestRefund = func(_ context.Context, id string) (*domain.PurchaseSnapshot, error) {
		*calls++
		return &domain.PurchaseSnapshot{
			ExternalID:           "pur-1",
			BlockchainIdentifier: id,
			OnChainStatus:        ptr(domain.OnChainFundsLocked),
			NextAction:           domain.NextActionSetRefundRequestedRequested,
		}, nil
	}
	return e
}

func TestRequestRefund_Success(t *testing.T) {
	store := newMemStore(paidJob(ptr(domain.OnChainFundsLocked), event("ev-1", domain.AgentStatusRunning)))
	var calls int
	uc := usecase.NewRefundUsecase(store, refundableEscrow(&calls), discardLogger())

	status, err := uc.RequestRefund(context.Background(), "job-paid", "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefundPending, status)
	assert.Equal(t, 1, calls)

	stored := store.job("job-paid")
	assert.Equal(t, domain.NextActionSetRefundRequestedRequested, stored.Purchase.NextAction)
	require.NotNil(t, stored.LastStatus)
	assert.Equal(t, domain.StatusRefundPending, *stored.LastStatus)
	assert.False(t, stored.Refunded(), "credits move only when escrow settles")
}

func TestRequestRefund_OtherUsersJob(t *testing.T) {
	store := newMemStore(paidJob(ptr(domain.OnChainFundsLocked), event("ev-1", domain.AgentStatusRunning)))
	var calls int
	uc := usecase.NewRefundUsecase(store, refundableEscrow(&calls), discardLogger())

	_, err := uc.RequestRefund(context.Background(), "job-paid", "user-2")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	assert.Equal(t, 0, calls)
}

func TestRequestRefund_NotRefundable(t *testing.T) {
	tests := []struct {
		name string
		job  *domain.Job
	}{
		{"free job", freeJob(event("ev-1", domain.AgentStatusRunning))},
		{"no purchase", paidJob(nil)},
		{"disputed", paidJob(ptr(domain.OnChainDisputed), event("ev-1", domain.AgentStatusRunning))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(tt.job)
			var calls int
			uc := usecase.NewRefundUsecase(store, refundableEscrow(&calls), discardLogger())

			_, err := uc.RequestRefund(context.Background(), tt.job.ID, "user-1")
			assert.ErrorIs(t, err, domain.ErrJobNotRefundable)
			assert.Equal(t, 0, calls)
		})
	}
}

func TestRequestRefund_EscrowFailure(t *testing.T) {
	store := newMemStore(paidJob(ptr(domain.OnChainFundsLocked), event("ev-1", domain.AgentStatusRunning)))
	uc := usecase.NewRefundUsecase(store, escrowDown(), discardLogger())

	_, err := uc.RequestRefund(context.Background(), "job-paid", "user-1")
	assert.ErrorIs(t, err, domain.ErrRefundRequestFailed)
	assert.Equal(t, domain.NextActionNone, store.job("job-paid").Purchase.NextAction)
}

func TestGetStatus(t *testing.T) {
	store := newMemStore(freeJob(event("ev-1", domain.AgentStatusRunning)))
	uc := usecase.NewJobUsecase(store)

	view, err := uc.GetStatus(context.Background(), "job-free", "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, view.Status)
	require.NotNil(t, view.Latest)
	assert.Equal(t, "ev-1", *view.Latest.ExternalID)

	_, err = uc.GetStatus(context.Background(), "job-free", "user-2")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	_, err = uc.GetStatus(context.Background(), "missing", "user-1")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
