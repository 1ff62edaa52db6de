package agent_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/agent"
	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(timeout time.Duration) *agent.Client {
	return agent.NewClient("secret", timeout, slog.Default())
}

func TestFetchJobStatus_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		assert.Equal(t, "agent-job-1", r.URL.Query().Get("job_id"))
		assert.Equal(t, "secret", r.Header.Get("token"))
		_, _ = w.Write([]byte(`{"id":"st-9","job_id":"agent-job-1","status":"completed","result":"42"}`))
	}))
	defer srv.Close()

	got, err := newClient(time.Second).FetchJobStatus(context.Background(), domain.AgentRef{ID: "a", BaseURL: srv.URL + "/"}, "agent-job-1")
	require.NoError(t, err)
	require.NotNil(t, got.ExternalID)
	assert.Equal(t, "st-9", *got.ExternalID)
	assert.Equal(t, domain.AgentStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "42", *got.Result)
}

func TestFetchJobStatus_UnknownStatusPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"job_id":"j","status":"paused"}`))
	}))
	defer srv.Close()

	got, err := newClient(time.Second).FetchJobStatus(context.Background(), domain.AgentRef{BaseURL: srv.URL}, "j")
	require.NoError(t, err)
	assert.Nil(t, got.ExternalID)
	assert.Equal(t, domain.AgentStatus("paused"), got.Status)
}

func TestFetchJobStatus_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(time.Second).FetchJobStatus(context.Background(), domain.AgentRef{BaseURL: srv.URL}, "j")
	assert.ErrorIs(t, err, domain.ErrCollaboratorUnavailable)
}

func TestFetchJobStatus_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newClient(time.Second).FetchJobStatus(context.Background(), domain.AgentRef{BaseURL: srv.URL}, "j")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestFetchJobStatus_MissingStatusRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"job_id":"j"}`))
	}))
	defer srv.Close()

	_, err := newClient(time.Second).FetchJobStatus(context.Background(), domain.AgentRef{BaseURL: srv.URL}, "j")
	assert.Error(t, err)
}

func TestFetchJobStatus_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := newClient(50*time.Millisecond).FetchJobStatus(context.Background(), domain.AgentRef{BaseURL: srv.URL}, "j")
	assert.ErrorIs(t, err, domain.ErrCollaboratorUnavailable)
}

func TestFetchJobStatus_ForwardsRequestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-7", r.Header.Get(requestid.Header))
		_, _ = w.Write([]byte(`{"job_id":"j","status":"running"}`))
	}))
	defer srv.Close()

	ctx := requestid.WithRequestID(context.Background(), "req-7")
	_, err := newClient(time.Second).FetchJobStatus(ctx, domain.AgentRef{BaseURL: srv.URL}, "j")
	require.NoError(t, err)
}
