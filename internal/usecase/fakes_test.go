package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/repository"
)

// ---- store ----

// memStore keeps committed jobs in memory. WithTx hands fn a copy of the state
// and only publishes it when fn succeeds.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job

	failUpsert error
	failAppend error
	failSave   error

	appends int
	settles int
}

func newMemStore(jobs ...*domain.Job) *memStore {
	s := &memStore{jobs: make(map[string]*domain.Job)}
	for _, j := range jobs {
		s.jobs[j.ID] = cloneJob(j)
	}
	return s
}

func (s *memStore) job(id string) *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneJob(s.jobs[id])
}

func (s *memStore) GetSnapshot(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(j), nil
}

func (s *memStore) ListSyncCandidates(context.Context, repository.ListCandidatesInput) ([]string, error) {
	return nil, errors.New("not used")
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.JobTx) error) error {
	s.mu.Lock()
	staged := make(map[string]*domain.Job, len(s.jobs))
	for id, j := range s.jobs {
		staged[id] = cloneJob(j)
	}
	s.mu.Unlock()

	tx := &memTx{store: s, jobs: staged}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.jobs = staged
	s.appends += tx.appends
	s.settles += tx.settles
	s.mu.Unlock()
	return nil
}

type memTx struct {
	store   *memStore
	jobs    map[string]*domain.Job
	appends int
	settles int
}

func (t *memTx) GetSnapshot(_ context.Context, jobID string) (*domain.Job, error) {
	j, ok := t.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(j), nil
}

func (t *memTx) UpsertPurchase(_ context.Context, jobID string, p *domain.PurchaseSnapshot) error {
	if t.store.failUpsert != nil {
		return t.store.failUpsert
	}
	j := t.jobs[jobID]
	if j.Purchase == nil {
		j.Purchase = &domain.Purchase{ID: "purchase-" + jobID, JobID: jobID}
	}
	j.Purchase.Apply(p)
	return nil
}

func (t *memTx) AppendStatusEvent(_ context.Context, jobID string, ev *domain.AgentJobStatus) error {
	if t.store.failAppend != nil {
		return t.store.failAppend
	}
	j := t.jobs[jobID]
	if ev.ExternalID != nil {
		for _, e := range j.Events {
			if e.ExternalID != nil && *e.ExternalID == *ev.ExternalID {
				return nil
			}
		}
	}
	j.Events = append([]domain.JobStatusEvent{{
		ID:         fmt.Sprintf("event-%d", len(j.Events)+1),
		JobID:      jobID,
		ExternalID: ev.ExternalID,
		Status:     ev.Status,
		Result:     ev.Result,
	}}, j.Events...)
	t.appends++
	return nil
}

func (t *memTx) SettleRefund(_ context.Context, jobID string) (bool, error) {
	j := t.jobs[jobID]
	if j.RefundedTransactionRef != nil {
		return false, nil
	}
	ref := "credit-tx-" + jobID
	j.RefundedTransactionRef = &ref
	t.settles++
	return true, nil
}

func (t *memTx) SaveStatus(_ context.Context, jobID string, status domain.Status, syncedAt time.Time) error {
	if t.store.failSave != nil {
		return t.store.failSave
	}
	j := t.jobs[jobID]
	j.LastStatus = &status
	j.LastSyncedAt = &syncedAt
	return nil
}

func cloneJob(j *domain.Job) *domain.Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Purchase != nil {
		p := *j.Purchase
		c.Purchase = &p
	}
	c.Events = append([]domain.JobStatusEvent(nil), j.Events...)
	return &c
}

// ---- collaborators ----

type fakeAgent struct {
	mu    sync.Mutex
	calls int
	fetch func(ctx context.Context, ref domain.AgentRef, externalJobID string) (*domain.AgentJobStatus, error)
}

func (a *fakeAgent) FetchJobStatus(ctx context.Context, ref domain.AgentRef, externalJobID string) (*domain.AgentJobStatus, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return a.fetch(ctx, ref, externalJobID)
}

type fakeEscrow struct {
	mu             sync.Mutex
	byIDCalls      int
	byBlockchainID func(ctx context.Context, id string) (*domain.PurchaseSnapshot, error)
	byID           func(ctx context.Context, id string) (*domain.PurchaseSnapshot, error)
	requestRefund  func(ctx context.Context, id string) (*domain.PurchaseSnapshot, error)
}

func (e *fakeEscrow) GetPurchaseByBlockchainID(ctx context.Context, id string) (*domain.PurchaseSnapshot, error) {
	return e.byBlockchainID(ctx, id)
}

func (e *fakeEscrow) GetPurchaseByID(ctx context.Context, id string) (*domain.PurchaseSnapshot, error) {
	e.mu.Lock()
	e.byIDCalls++
	e.mu.Unlock()
	return e.byID(ctx, id)
}

func (e *fakeEscrow) RequestRefund(ctx context.Context, id string) (*domain.PurchaseSnapshot, error) {
	return e.requestRefund(ctx, id)
}

type sentNotification struct {
	kind   string
	jobID  string
	status domain.Status
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) SendFinalStatus(_ context.Context, job *domain.Job, status domain.Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: "final", jobID: job.ID, status: status})
}

func (n *fakeNotifier) SendFailureNotification(_ context.Context, job *domain.Job, status domain.Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: "failure", jobID: job.ID, status: status})
}

func (n *fakeNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.kind == kind {
			c++
		}
	}
	return c
}

type fakeLocker struct {
	tryLock  func(ctx context.Context, key string, ttl time.Duration) (string, error)
	unlocked []string
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l.tryLock == nil {
		return "token", nil
	}
	return l.tryLock(ctx, key, ttl)
}

func (l *fakeLocker) Unlock(_ context.Context, key, _ string) error {
	l.unlocked = append(l.unlocked, key)
	return nil
}

// ---- helpers ----

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func agentReports(id string, status domain.AgentStatus) *fakeAgent {
	return &fakeAgent{fetch: func(context.Context, domain.AgentRef, string) (*domain.AgentJobStatus, error) {
		return &domain.AgentJobStatus{ExternalID: ptr(id), Status: status}, nil
	}}
}

func agentDown() *fakeAgent {
	return &fakeAgent{fetch: func(context.Context, domain.AgentRef, string) (*domain.AgentJobStatus, error) {
		return nil, domain.ErrCollaboratorUnavailable
	}}
}

func escrowDown() *fakeEscrow {
	fail := func(context.Context, string) (*domain.PurchaseSnapshot, error) {
		return nil, domain.ErrCollaboratorUnavailable
	}
	return &fakeEscrow{byBlockchainID: fail, byID: fail, requestRefund: fail}
}

func escrowReports(onChain domain.OnChainStatus) *fakeEscrow {
	e := escrowDown()
	e.byID = func(_ context.Context, id string) (*domain.PurchaseSnapshot, error) {
		return &domain.PurchaseSnapshot{ExternalID: id, BlockchainIdentifier: "bc-1", OnChainStatus: ptr(onChain), NextAction: domain.NextActionNone}, nil
	}
	return e
}

func freeJob(events ...domain.JobStatusEvent) *domain.Job {
	return &domain.Job{
		ID:         "job-free",
		UserID:     "user-1",
		Type:       domain.JobTypeFree,
		Agent:      domain.AgentRef{ID: "agent-1", BaseURL: "http://agent.invalid"},
		AgentJobID: ptr("agent-job-1"),
		CreatedAt:  now.Add(-time.Hour),
		Events:     events,
	}
}

func paidJob(onChain *domain.OnChainStatus, events ...domain.JobStatusEvent) *domain.Job {
	j := &domain.Job{
		ID:                   "job-paid",
		UserID:               "user-1",
		Type:                 domain.JobTypePaid,
		Agent:                domain.AgentRef{ID: "agent-1", BaseURL: "http://agent.invalid"},
		AgentJobID:           ptr("agent-job-1"),
		CreditCost:           50,
		CreatedAt:            now.Add(-time.Hour),
		PayByTime:            ptr(now.Add(time.Hour)),
		SubmitResultTime:     ptr(now.Add(2 * time.Hour)),
		UnlockTime:           ptr(now.Add(3 * time.Hour)),
		BlockchainIdentifier: ptr("bc-1"),
		Events:               events,
	}
	if onChain != nil {
		j.Purchase = &domain.Purchase{ID: "purchase-job-paid", JobID: j.ID, ExternalID: "pur-1", OnChainStatus: onChain, NextAction: domain.NextActionNone}
	}
	return j
}

func event(id string, status domain.AgentStatus) domain.JobStatusEvent {
	return domain.JobStatusEvent{ID: "row-" + id, ExternalID: ptr(id), Status: status}
}
