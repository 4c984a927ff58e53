// Package server exposes the HTTP ops surface: health, readiness, metrics,
// the leaderboard and the admin endpoints that drive contests, triggers and
// arbiter settings. Every request carries a correlation id and a span.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zen2281488/gayOfDay/telemetry"
)

// NewMux returns the HTTP handler with all routes. ctx bounds the rate
// limiter's cleanup loop.
func NewMux(ctx context.Context, deps Deps, sec Security) http.Handler {
	h := NewHandlers(deps)
	limiter := newIPRateLimiter(ctx, sec.RateLimitPerIP, sec.RateLimitWindow)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.HandleFunc("/readyz", h.HandleReadyz)
	mux.HandleFunc("/leaderboard", h.HandleLeaderboard)

	mux.HandleFunc("/admin/contest/run", h.HandleAdminRun)
	mux.HandleFunc("/admin/contest/reset", h.HandleAdminReset)
	mux.HandleFunc("/admin/triggers", h.HandleAdminTriggers)
	mux.HandleFunc("/admin/triggers/daily", h.HandleAdminDailyTrigger)
	mux.HandleFunc("/admin/triggers/leaderboard", h.HandleAdminLeaderboardTrigger)
	mux.HandleFunc("/admin/arbiter", requireAuthForWrites(h.HandleAdminArbiter, sec))

	admin := adminAuth(rateLimitMiddleware(mux, limiter), sec)
	routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/admin/") {
			admin.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
	return withCORS(traced(routed), sec)
}

// traced injects the correlation id and wraps the request in a span.
func traced(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start",
			slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
	})
}

// statusRecorder captures the response code for the span.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start serves handler on addr and shuts down gracefully when ctx is done.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second, // admin runs wait for arbitration
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
