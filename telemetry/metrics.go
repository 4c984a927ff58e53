// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ContestRuns          *prometheus.CounterVec // label: outcome
	Arbitrations         *prometheus.CounterVec // label: source (model|fallback|placeholder)
	ArbiterFallbacks     *prometheus.CounterVec // label: reason (llm error kind)
	SchedulerTicks       prometheus.Counter
	SchedulerDispatched  *prometheus.CounterVec // label: kind (contest|leaderboard)
	SchedulerFailures    *prometheus.CounterVec // label: kind
	LeaderboardPosts     prometheus.Counter
	ChatMessagesRecorded prometheus.Counter

	// Histograms (seconds)
	CompletionDuration prometheus.Observer

	// Gauges
	TasksInflight prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ContestRuns = promauto.NewCounterVec(prometheus.CounterOpts{Name: "contest_runs_total", Help: "Contest runs by outcome"}, []string{"outcome"})
		Arbitrations = promauto.NewCounterVec(prometheus.CounterOpts{Name: "contest_arbitrations_total", Help: "Arbitrations by verdict source"}, []string{"source"})
		ArbiterFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{Name: "contest_arbiter_fallbacks_total", Help: "Arbitrations that fell back to the local heuristic, by failure kind"}, []string{"reason"})
		SchedulerTicks = promauto.NewCounter(prometheus.CounterOpts{Name: "contest_scheduler_ticks_total", Help: "Scheduler ticks evaluated"})
		SchedulerDispatched = promauto.NewCounterVec(prometheus.CounterOpts{Name: "contest_scheduler_dispatched_total", Help: "Tasks dispatched by the scheduler"}, []string{"kind"})
		SchedulerFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "contest_scheduler_task_failures_total", Help: "Dispatched tasks that failed or panicked"}, []string{"kind"})
		LeaderboardPosts = promauto.NewCounter(prometheus.CounterOpts{Name: "contest_leaderboard_posts_total", Help: "Leaderboards posted to chat"})
		ChatMessagesRecorded = promauto.NewCounter(prometheus.CounterOpts{Name: "contest_chat_messages_recorded_total", Help: "Chat messages stored as evidence"})
		CompletionDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "contest_completion_duration_seconds", Help: "Completion service call duration seconds", Buckets: prometheus.DefBuckets})
		TasksInflight = promauto.NewGauge(prometheus.GaugeOpts{Name: "contest_tasks_inflight", Help: "Dispatched tasks currently running"})
	})
}

// ObserveRun counts a finished contest run.
func ObserveRun(outcome string) {
	if ContestRuns != nil {
		ContestRuns.WithLabelValues(outcome).Inc()
	}
}

// ObserveArbitration counts a ruling by source and, for fallbacks, the reason.
func ObserveArbitration(source, fallbackReason string) {
	if Arbitrations != nil {
		Arbitrations.WithLabelValues(source).Inc()
	}
	if fallbackReason != "" && ArbiterFallbacks != nil {
		ArbiterFallbacks.WithLabelValues(fallbackReason).Inc()
	}
}

// ObserveTick counts a scheduler tick.
func ObserveTick() {
	if SchedulerTicks != nil {
		SchedulerTicks.Inc()
	}
}

// ObserveDispatch counts a dispatched scheduler task.
func ObserveDispatch(kind string) {
	if SchedulerDispatched != nil {
		SchedulerDispatched.WithLabelValues(kind).Inc()
	}
}

// ObserveTaskFailure counts a failed or panicked task.
func ObserveTaskFailure(kind string) {
	if SchedulerFailures != nil {
		SchedulerFailures.WithLabelValues(kind).Inc()
	}
}

// ObserveLeaderboardPost counts a leaderboard sent to chat.
func ObserveLeaderboardPost() {
	if LeaderboardPosts != nil {
		LeaderboardPosts.Inc()
	}
}

// ObserveMessageRecorded counts a stored chat message.
func ObserveMessageRecorded() {
	if ChatMessagesRecorded != nil {
		ChatMessagesRecorded.Inc()
	}
}

// TaskStarted / TaskDone track in-flight dispatched tasks.
func TaskStarted() {
	if TasksInflight != nil {
		TasksInflight.Inc()
	}
}

func TaskDone() {
	if TasksInflight != nil {
		TasksInflight.Dec()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
