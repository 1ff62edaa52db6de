package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sync metrics

	SyncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jobsync",
		Name:      "sync_duration_seconds",
		Help:      "Duration of one job reconciliation round.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"outcome"})

	SyncsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobsync",
		Name:      "syncs_total",
		Help:      "Total sync rounds, by outcome.",
	}, []string{"outcome"})

	StatusTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobsync",
		Name:      "status_transitions_total",
		Help:      "Observed job status changes.",
	}, []string{"from", "to"})

	CollaboratorFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobsync",
		Name:      "collaborator_failures_total",
		Help:      "Failed calls to the agent or escrow service. Sync continues on stale data.",
	}, []string{"collaborator"})

	SyncLockErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobsync",
		Name:      "sync_lock_errors_total",
		Help:      "Lock backend errors after which the sync ran without the lock.",
	})

	RefundsSettledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobsync",
		Name:      "refunds_settled_total",
		Help:      "Credit refunds written to the ledger.",
	})

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobsync",
		Name:      "notifications_total",
		Help:      "Notification deliveries, by kind, sink and outcome.",
	}, []string{"kind", "sink", "outcome"})

	// Poller metrics

	SyncsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jobsync",
		Name:      "poller_syncs_in_flight",
		Help:      "Number of syncs currently run by the poller.",
	})

	PollCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jobsync",
		Name:      "poll_cycle_duration_seconds",
		Help:      "Time taken to list sync candidates.",
		Buckets:   prometheus.DefBuckets,
	})

	SweptJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobsync",
		Name:      "sweeper_jobs_total",
		Help:      "Jobs re-synced by the sweeper, by outcome.",
	}, []string{"outcome"})

	// Syncer lifecycle

	SyncerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jobsync",
		Name:      "syncer_start_time_seconds",
		Help:      "Unix timestamp when the syncer started.",
	})

	SyncerShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobsync",
		Name:      "syncer_shutdowns_total",
		Help:      "Number of times the syncer has shut down.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jobsync",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "route", "status", "caller"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobsync",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by caller kind (user, service, anonymous).",
	}, []string{"method", "route", "status", "caller"})
)

func Register() {
	prometheus.MustRegister(
		SyncDuration,
		SyncsTotal,
		StatusTransitionsTotal,
		CollaboratorFailuresTotal,
		RefundsSettledTotal,
		SyncLockErrorsTotal,
		NotificationsTotal,
		SyncsInFlight,
		PollCycleDuration,
		SweptJobsTotal,
		SyncerStartTime,
		SyncerShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics plus the probe handlers on a separate port.
func NewServer(addr string, probes map[string]http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	for path, h := range probes {
		mux.Handle(path, h)
	}
	return &http.Server{Addr: addr, Handler: mux}
}
