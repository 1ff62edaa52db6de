package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/metrics"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink Sink
}

type Options struct {
	Logger *slog.Logger
	// FinalStatus sinks receive every transition into a final status.
	FinalStatus []SinkRegistration
	// Failure sinks additionally receive transitions into a failure status.
	Failure []SinkRegistration
	Timeout time.Duration
}

// Dispatcher fans events out to sinks on background goroutines. Callers never
// block on delivery and never see delivery errors.
type Dispatcher struct {
	logger  *slog.Logger
	final   []SinkRegistration
	failure []SinkRegistration
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		logger:  logger.With("component", "notify"),
		final:   compact(opts.FinalStatus),
		failure: compact(opts.Failure),
		timeout: timeout,
	}
}

func compact(in []SinkRegistration) []SinkRegistration {
	var out []SinkRegistration
	for _, entry := range in {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		out = append(out, entry)
	}
	return out
}

// SendFinalStatus tells the job owner the job reached status.
func (d *Dispatcher) SendFinalStatus(ctx context.Context, job *domain.Job, status domain.Status) {
	d.dispatch(ctx, d.final, newEvent(KindFinalStatus, job, status))
}

// SendFailureNotification alerts operators that the job failed.
func (d *Dispatcher) SendFailureNotification(ctx context.Context, job *domain.Job, status domain.Status) {
	d.dispatch(ctx, d.failure, newEvent(KindFailure, job, status))
}

// Wait blocks until every in-flight delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, sinks []SinkRegistration, ev Event) {
	if len(sinks) == 0 {
		return
	}

	// Delivery outlives the sync request.
	base := context.WithoutCancel(ctx)

	for _, entry := range sinks {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()

			deliverCtx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()

			err := entry.Sink.Deliver(deliverCtx, ev)
			switch {
			case err == nil:
				metrics.NotificationsTotal.WithLabelValues(string(ev.Kind), entry.Name, "sent").Inc()
			case errors.Is(err, ErrNoRecipient):
				metrics.NotificationsTotal.WithLabelValues(string(ev.Kind), entry.Name, "skipped").Inc()
				d.logger.DebugContext(deliverCtx, "notification skipped, no recipient",
					"sink", entry.Name, "kind", ev.Kind, "job_id", ev.JobID)
			default:
				metrics.NotificationsTotal.WithLabelValues(string(ev.Kind), entry.Name, "failed").Inc()
				d.logger.ErrorContext(deliverCtx, "notification delivery error",
					"sink", entry.Name,
					"kind", ev.Kind,
					"job_id", ev.JobID,
					"status", ev.Status,
					"error", err,
				)
			}
		}()
	}
}
