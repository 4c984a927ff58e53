// Package contest implements the daily "pick today's loser" game: the civil
// clock, the evidence collector, the per-chat state machine that settles at
// most one verdict per chat per civil day, and the leaderboard aggregator.
//
// Storage and transport are reached through the small interfaces declared in
// this file; the db and chat packages provide the production implementations.
package contest

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// NoWinner is the sentinel winner id returned by arbitration when there is
// nobody left to judge.
const NoWinner int64 = 0

// ErrAlreadySettled is returned by Ledger.Settle when a verdict for the same
// (chat, day) already exists.
var ErrAlreadySettled = errors.New("contest: verdict already settled")

// Message is one recorded chat line. OccurredAt ordering is not guaranteed by
// the store.
type Message struct {
	ChatID      string
	AuthorID    int64
	DisplayName string
	Text        string
	OccurredAt  time.Time
}

// Qualifies reports whether the message text has at least minLen visible
// characters after trimming.
func (m Message) Qualifies(minLen int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(m.Text)) >= minLen
}

// Verdict is a settled result for one chat on one civil day.
type Verdict struct {
	ChatID   string    `json:"chat_id"`
	Day      string    `json:"day"` // YYYY-MM-DD in the configured offset
	WinnerID int64     `json:"winner_id"`
	Reason   string    `json:"reason"`
	Settled  time.Time `json:"settled_at,omitempty"`
}

// Ruling is what arbitration decided. Source is one of "model", "fallback"
// or "placeholder".
type Ruling struct {
	WinnerID int64
	Reason   string
	Source   string
}

// DailyTrigger schedules the contest for a chat at a civil time of day.
type DailyTrigger struct {
	ChatID    string `json:"chat_id"`
	TimeOfDay string `json:"time_of_day"`
}

// LeaderboardTrigger schedules the monthly leaderboard post for a chat.
type LeaderboardTrigger struct {
	ChatID         string `json:"chat_id"`
	DayOfMonth     int    `json:"day_of_month"`
	TimeOfDay      string `json:"time_of_day"`
	LastFiredMonth string `json:"last_fired_month,omitempty"`
}

// Ledger persists verdicts and the last-winner hint.
type Ledger interface {
	// GetVerdict returns nil, nil when no verdict exists.
	GetVerdict(ctx context.Context, chatID, day string) (*Verdict, error)
	DeleteVerdict(ctx context.Context, chatID, day string) (bool, error)
	// PreviousWinner returns the last winner hint, or the most recent
	// historical verdict winner when no hint was recorded.
	PreviousWinner(ctx context.Context, chatID string) (int64, bool, error)
	// Settle atomically inserts the verdict and upserts the last winner.
	// It returns ErrAlreadySettled on a (chat, day) conflict.
	Settle(ctx context.Context, v Verdict) error
	Verdicts(ctx context.Context, chatID string) ([]Verdict, error)
}

// ActivityStore reads recorded chat messages. Both methods return rows
// newest-first and skip texts with fewer than three trimmed characters.
type ActivityStore interface {
	Window(ctx context.Context, chatID string, from, to time.Time, limit int) ([]Message, error)
	Before(ctx context.Context, chatID string, before time.Time, limit int) ([]Message, error)
}

// Gateway is the outbound side of the chat platform.
type Gateway interface {
	Send(ctx context.Context, chatID, text string) error
	ResolveNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Arbiter picks the winner among candidate messages. It never fails; on
// trouble it falls back to a local heuristic or returns NoWinner.
type Arbiter interface {
	Arbitrate(ctx context.Context, candidates []Message, excluded int64) Ruling
}
