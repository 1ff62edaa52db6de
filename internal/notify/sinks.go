package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/ErlanBelekov/agent-job-sync/internal/email"
	"github.com/ErlanBelekov/agent-job-sync/internal/requestid"
)

// ErrNoRecipient is returned by sinks that have nowhere to deliver an event.
// The dispatcher treats it as a skip, not a failure.
var ErrNoRecipient = errors.New("no recipient")

// EmailSink mails the event. An empty To sends to the job owner.
type EmailSink struct {
	Sender  email.Sender
	To      string
	BaseURL string // link target for the job page
}

func (s *EmailSink) Deliver(ctx context.Context, ev Event) error {
	to := s.To
	if to == "" {
		to = ev.UserEmail
	}
	if to == "" {
		return ErrNoRecipient
	}

	name := ev.JobName
	if name == "" {
		name = ev.JobID
	}

	var subject string
	switch ev.Kind {
	case KindFailure:
		subject = fmt.Sprintf("Job %s failed (%s)", name, ev.Status)
	default:
		subject = fmt.Sprintf("Job %s is %s", name, humanStatus(ev))
	}

	link := strings.TrimSuffix(s.BaseURL, "/") + "/jobs/" + ev.JobID
	body := fmt.Sprintf(
		`<p>Job <strong>%s</strong> (agent %s) is now <strong>%s</strong>.</p><p><a href="%s">View job</a></p>`,
		html.EscapeString(name), html.EscapeString(ev.AgentID), html.EscapeString(humanStatus(ev)), link,
	)

	return s.Sender.Send(ctx, email.Message{
		To:      to,
		Subject: subject,
		HTML:    body,
		Tags:    map[string]string{"job_id": ev.JobID, "kind": strings.ReplaceAll(string(ev.Kind), ".", "_")},
	})
}

func humanStatus(ev Event) string {
	return strings.ReplaceAll(string(ev.Status), "_", " ")
}

// WebhookSink POSTs the event as JSON. An empty URL posts to the job owner's webhook.
type WebhookSink struct {
	Client *http.Client
	URL    string
}

func (s *WebhookSink) Deliver(ctx context.Context, ev Event) error {
	target := s.URL
	if target == "" && ev.WebhookURL != nil {
		target = *ev.WebhookURL
	}
	if target == "" {
		return ErrNoRecipient
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Kind", string(ev.Kind))
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
