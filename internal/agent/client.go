// Package agent queries agent services for the execution status of their jobs.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/requestid"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

type Client struct {
	http     *http.Client
	apiKey   string
	timeout  time.Duration
	validate *validator.Validate
	logger   *slog.Logger
}

func NewClient(apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:     &http.Client{}, // per-call deadline comes from the context
		apiKey:   apiKey,
		timeout:  timeout,
		validate: validator.New(),
		logger:   logger.With("component", "agent_client"),
	}
}

type statusResponse struct {
	ID     *string `json:"id"`
	JobID  string  `json:"job_id" validate:"required"`
	Status string  `json:"status" validate:"required"`
	Result *string `json:"result"`
}

// FetchJobStatus asks the agent at ref for the current status of externalJobID.
func (c *Client) FetchJobStatus(ctx context.Context, ref domain.AgentRef, externalJobID string) (*domain.AgentJobStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint, err := url.JoinPath(strings.TrimSuffix(ref.BaseURL, "/"), "status")
	if err != nil {
		return nil, fmt.Errorf("build agent url: %w", err)
	}
	endpoint += "?" + url.Values{"job_id": {externalJobID}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}
	if c.apiKey != "" {
		req.Header.Set("token", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: agent %s: %v", domain.ErrCollaboratorUnavailable, ref.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("agent %s job %s: %w", ref.ID, externalJobID, domain.ErrJobNotFound)
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: agent %s returned %d", domain.ErrCollaboratorUnavailable, ref.ID, resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode agent status: %w", err)
	}
	if err := c.validate.Struct(body); err != nil {
		return nil, fmt.Errorf("invalid agent status payload: %w", err)
	}

	status, err := domain.ParseAgentStatus(body.Status)
	if err != nil {
		// Kept as reported; the status computer fails closed on values it does not know.
		c.logger.WarnContext(ctx, "agent reported unknown status", "agent_id", ref.ID, "status", body.Status)
		status = domain.AgentStatus(body.Status)
	}

	return &domain.AgentJobStatus{
		ExternalID: body.ID,
		Status:     status,
		Result:     body.Result,
	}, nil
}
