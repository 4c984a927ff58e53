package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/zen2281488/gayOfDay/contest"
)

// qualifyingText mirrors contest's minimum evidence length. TRIM alone only
// strips spaces; the collector trims all ASCII whitespace.
const qualifyingText = `LENGTH(BTRIM(text, E' \t\n\r\f\x0B')) > 2`

// Activity is the Postgres activity store: chat ingestion writes to it and
// the evidence collector reads from it.
type Activity struct{ DB *sql.DB }

var _ contest.ActivityStore = (*Activity)(nil)

// Record stores one chat message.
func (a *Activity) Record(ctx context.Context, m contest.Message) error {
	_, err := a.DB.ExecContext(ctx,
		`INSERT INTO chat_messages(chat_id, author_id, display_name, text, occurred_at) VALUES($1,$2,$3,$4,$5)`,
		m.ChatID, m.AuthorID, m.DisplayName, m.Text, m.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// Window returns qualifying messages with from <= occurred_at < to, newest first.
func (a *Activity) Window(ctx context.Context, chatID string, from, to time.Time, limit int) ([]contest.Message, error) {
	return a.query(ctx,
		`SELECT chat_id, author_id, display_name, text, occurred_at FROM chat_messages
		 WHERE chat_id=$1 AND occurred_at >= $2 AND occurred_at < $3 AND `+qualifyingText+`
		 ORDER BY occurred_at DESC, id DESC LIMIT $4`,
		chatID, from.UTC(), to.UTC(), limit)
}

// Before returns qualifying messages strictly older than before, newest first.
func (a *Activity) Before(ctx context.Context, chatID string, before time.Time, limit int) ([]contest.Message, error) {
	return a.query(ctx,
		`SELECT chat_id, author_id, display_name, text, occurred_at FROM chat_messages
		 WHERE chat_id=$1 AND occurred_at < $2 AND `+qualifyingText+`
		 ORDER BY occurred_at DESC, id DESC LIMIT $3`,
		chatID, before.UTC(), limit)
}

func (a *Activity) query(ctx context.Context, q string, args ...any) ([]contest.Message, error) {
	rows, err := a.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []contest.Message
	for rows.Next() {
		var m contest.Message
		if err := rows.Scan(&m.ChatID, &m.AuthorID, &m.DisplayName, &m.Text, &m.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Prune deletes messages older than before and reports how many were removed.
func (a *Activity) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := a.DB.ExecContext(ctx, `DELETE FROM chat_messages WHERE occurred_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	return res.RowsAffected()
}

// StartRetentionJob prunes messages older than days every interval until ctx
// is done. days <= 0 disables the job.
func StartRetentionJob(ctx context.Context, a *Activity, days int, interval time.Duration) {
	logger := slog.Default().With(slog.String("component", "retention"))
	if days <= 0 {
		logger.Info("retention job disabled")
		return
	}
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	logger.Info("retention job starting", slog.Int("keep_days", days), slog.Duration("interval", interval))

	prune := func() {
		cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
		n, err := a.Prune(ctx, cutoff)
		if err != nil {
			logger.Warn("retention cleanup failed", slog.Any("err", err))
			return
		}
		logger.Debug("retention cleanup done", slog.Int64("deleted", n), slog.Time("cutoff", cutoff))
	}
	prune()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention job stopped")
			return
		case <-ticker.C:
			prune()
		}
	}
}
