package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zen2281488/gayOfDay/arbiter"
	"github.com/zen2281488/gayOfDay/contest"
)

// Pinger checks storage liveness (*sql.DB satisfies it).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ChatStatus reports whether the chat connection is up.
type ChatStatus interface {
	Connected() bool
}

// ContestRunner drives the daily state machine.
type ContestRunner interface {
	Run(ctx context.Context, chatID string, force bool) (contest.Outcome, error)
	Reset(ctx context.Context, chatID string) (bool, error)
}

// BoardRenderer renders a chat's leaderboard.
type BoardRenderer interface {
	Render(ctx context.Context, chatID string) (string, error)
}

// TriggerAdmin lists and edits schedules.
type TriggerAdmin interface {
	Triggers(ctx context.Context) ([]contest.DailyTrigger, []contest.LeaderboardTrigger, error)
	SetDailyTrigger(ctx context.Context, chatID, hhmm string) error
	ClearDailyTrigger(ctx context.Context, chatID string) (bool, error)
	SetLeaderboardTrigger(ctx context.Context, chatID string, dayOfMonth int, hhmm string) error
	ClearLeaderboardTrigger(ctx context.Context, chatID string) (bool, error)
}

// Deps are the collaborators behind the routes. Chat may be nil when the
// bot is not configured; readiness then skips the chat check.
type Deps struct {
	DB       Pinger
	Chat     ChatStatus
	Game     ContestRunner
	Board    BoardRenderer
	Triggers TriggerAdmin
	Settings *arbiter.Settings
	Store    arbiter.Store
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps Deps
}

// NewHandlers creates a Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// chatParam reads ?chat= as a normalized channel login.
func chatParam(r *http.Request) string {
	return normalizeChat(r.URL.Query().Get("chat"))
}

func normalizeChat(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "#"))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
