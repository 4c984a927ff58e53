package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zen2281488/gayOfDay/contest"
)

const dayLayout = "2006-01-02"

// pgUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// civilDate parses a YYYY-MM-DD day into a value pgx encodes as DATE.
func civilDate(day string) (time.Time, error) {
	d, err := time.Parse(dayLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("civil day %q: %w", day, err)
	}
	return d, nil
}

// Ledger is the Postgres contest ledger: verdicts, last winners and triggers.
type Ledger struct{ DB *sql.DB }

var _ contest.Ledger = (*Ledger)(nil)

// GetVerdict returns the verdict for (chatID, day) or nil when absent.
func (l *Ledger) GetVerdict(ctx context.Context, chatID, day string) (*contest.Verdict, error) {
	date, err := civilDate(day)
	if err != nil {
		return nil, err
	}
	var (
		d time.Time
		v = contest.Verdict{ChatID: chatID}
	)
	err = l.DB.QueryRowContext(ctx,
		`SELECT day, winner_id, reason, settled_at FROM verdicts WHERE chat_id=$1 AND day=$2`,
		chatID, date).Scan(&d, &v.WinnerID, &v.Reason, &v.Settled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get verdict: %w", err)
	}
	v.Day = d.Format(dayLayout)
	return &v, nil
}

// DeleteVerdict removes the verdict for (chatID, day). The last winner hint
// is left alone.
func (l *Ledger) DeleteVerdict(ctx context.Context, chatID, day string) (bool, error) {
	date, err := civilDate(day)
	if err != nil {
		return false, err
	}
	res, err := l.DB.ExecContext(ctx, `DELETE FROM verdicts WHERE chat_id=$1 AND day=$2`, chatID, date)
	if err != nil {
		return false, fmt.Errorf("delete verdict: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PreviousWinner returns the last winner hint, falling back to the winner of
// the most recent verdict.
func (l *Ledger) PreviousWinner(ctx context.Context, chatID string) (int64, bool, error) {
	var id int64
	err := l.DB.QueryRowContext(ctx, `SELECT winner_id FROM last_winners WHERE chat_id=$1`, chatID).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("last winner: %w", err)
	}
	err = l.DB.QueryRowContext(ctx,
		`SELECT winner_id FROM verdicts WHERE chat_id=$1 ORDER BY day DESC, settled_at DESC LIMIT 1`, chatID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("latest verdict: %w", err)
	}
	return id, true, nil
}

// Settle inserts the verdict and upserts the last winner in one transaction.
// A concurrent or earlier settlement of the same (chat, day) yields
// contest.ErrAlreadySettled and writes nothing.
func (l *Ledger) Settle(ctx context.Context, v contest.Verdict) error {
	date, err := civilDate(v.Day)
	if err != nil {
		return err
	}
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settle: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO verdicts(chat_id, day, winner_id, reason, settled_at)
		 VALUES($1, $2, $3, $4, NOW())
		 ON CONFLICT (chat_id, day) DO NOTHING`,
		v.ChatID, date, v.WinnerID, v.Reason)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return contest.ErrAlreadySettled
		}
		return fmt.Errorf("insert verdict: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return contest.ErrAlreadySettled
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO last_winners(chat_id, winner_id, settled_at) VALUES($1, $2, NOW())
		 ON CONFLICT (chat_id) DO UPDATE SET winner_id=EXCLUDED.winner_id, settled_at=EXCLUDED.settled_at`,
		v.ChatID, v.WinnerID); err != nil {
		return fmt.Errorf("upsert last winner: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settle: %w", err)
	}
	return nil
}

// Verdicts returns every verdict of the chat, oldest first.
func (l *Ledger) Verdicts(ctx context.Context, chatID string) ([]contest.Verdict, error) {
	rows, err := l.DB.QueryContext(ctx,
		`SELECT day, winner_id, reason, settled_at FROM verdicts WHERE chat_id=$1 ORDER BY day`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	defer rows.Close()
	var out []contest.Verdict
	for rows.Next() {
		var (
			d time.Time
			v = contest.Verdict{ChatID: chatID}
		)
		if err := rows.Scan(&d, &v.WinnerID, &v.Reason, &v.Settled); err != nil {
			return nil, err
		}
		v.Day = d.Format(dayLayout)
		out = append(out, v)
	}
	return out, rows.Err()
}

// SetDailyTrigger schedules the daily contest for chatID at hhmm.
func (l *Ledger) SetDailyTrigger(ctx context.Context, chatID, hhmm string) error {
	_, err := l.DB.ExecContext(ctx,
		`INSERT INTO daily_triggers(chat_id, time_of_day) VALUES($1, $2)
		 ON CONFLICT (chat_id) DO UPDATE SET time_of_day=EXCLUDED.time_of_day`, chatID, hhmm)
	if err != nil {
		return fmt.Errorf("set daily trigger: %w", err)
	}
	return nil
}

// ClearDailyTrigger removes the chat's daily trigger.
func (l *Ledger) ClearDailyTrigger(ctx context.Context, chatID string) (bool, error) {
	return l.deleteOne(ctx, `DELETE FROM daily_triggers WHERE chat_id=$1`, chatID)
}

// SetLeaderboardTrigger schedules the monthly leaderboard post. Changing the
// trigger re-arms it for the current month.
func (l *Ledger) SetLeaderboardTrigger(ctx context.Context, chatID string, dayOfMonth int, hhmm string) error {
	if dayOfMonth < 1 || dayOfMonth > 31 {
		return fmt.Errorf("day of month %d out of range", dayOfMonth)
	}
	_, err := l.DB.ExecContext(ctx,
		`INSERT INTO leaderboard_triggers(chat_id, day_of_month, time_of_day, last_fired_month)
		 VALUES($1, $2, $3, NULL)
		 ON CONFLICT (chat_id) DO UPDATE SET
		   day_of_month=EXCLUDED.day_of_month,
		   time_of_day=EXCLUDED.time_of_day,
		   last_fired_month=NULL`, chatID, dayOfMonth, hhmm)
	if err != nil {
		return fmt.Errorf("set leaderboard trigger: %w", err)
	}
	return nil
}

// ClearLeaderboardTrigger removes the chat's leaderboard trigger.
func (l *Ledger) ClearLeaderboardTrigger(ctx context.Context, chatID string) (bool, error) {
	return l.deleteOne(ctx, `DELETE FROM leaderboard_triggers WHERE chat_id=$1`, chatID)
}

func (l *Ledger) deleteOne(ctx context.Context, q, chatID string) (bool, error) {
	res, err := l.DB.ExecContext(ctx, q, chatID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DailyTriggersAt lists the daily triggers due at hhmm.
func (l *Ledger) DailyTriggersAt(ctx context.Context, hhmm string) ([]contest.DailyTrigger, error) {
	return l.dailyTriggers(ctx, `SELECT chat_id, time_of_day FROM daily_triggers WHERE time_of_day=$1 ORDER BY chat_id`, hhmm)
}

// LeaderboardTriggersAt lists the leaderboard triggers whose time is hhmm.
// Day-of-month and month dedup are decided by the caller.
func (l *Ledger) LeaderboardTriggersAt(ctx context.Context, hhmm string) ([]contest.LeaderboardTrigger, error) {
	return l.leaderboardTriggers(ctx,
		`SELECT chat_id, day_of_month, time_of_day, COALESCE(last_fired_month, '')
		 FROM leaderboard_triggers WHERE time_of_day=$1 ORDER BY chat_id`, hhmm)
}

// MarkLeaderboardFired records that the chat's leaderboard was posted for month.
func (l *Ledger) MarkLeaderboardFired(ctx context.Context, chatID, month string) error {
	_, err := l.DB.ExecContext(ctx,
		`UPDATE leaderboard_triggers SET last_fired_month=$2 WHERE chat_id=$1`, chatID, month)
	if err != nil {
		return fmt.Errorf("mark leaderboard fired: %w", err)
	}
	return nil
}

// Triggers lists every configured trigger.
func (l *Ledger) Triggers(ctx context.Context) ([]contest.DailyTrigger, []contest.LeaderboardTrigger, error) {
	daily, err := l.dailyTriggers(ctx, `SELECT chat_id, time_of_day FROM daily_triggers ORDER BY chat_id`)
	if err != nil {
		return nil, nil, err
	}
	monthly, err := l.leaderboardTriggers(ctx,
		`SELECT chat_id, day_of_month, time_of_day, COALESCE(last_fired_month, '')
		 FROM leaderboard_triggers ORDER BY chat_id`)
	if err != nil {
		return nil, nil, err
	}
	return daily, monthly, nil
}

func (l *Ledger) dailyTriggers(ctx context.Context, q string, args ...any) ([]contest.DailyTrigger, error) {
	rows, err := l.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("daily triggers: %w", err)
	}
	defer rows.Close()
	var out []contest.DailyTrigger
	for rows.Next() {
		var t contest.DailyTrigger
		if err := rows.Scan(&t.ChatID, &t.TimeOfDay); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (l *Ledger) leaderboardTriggers(ctx context.Context, q string, args ...any) ([]contest.LeaderboardTrigger, error) {
	rows, err := l.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("leaderboard triggers: %w", err)
	}
	defer rows.Close()
	var out []contest.LeaderboardTrigger
	for rows.Next() {
		var t contest.LeaderboardTrigger
		if err := rows.Scan(&t.ChatID, &t.DayOfMonth, &t.TimeOfDay, &t.LastFiredMonth); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
