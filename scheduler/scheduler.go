// Package scheduler polls the trigger tables once a minute and dispatches the
// daily contest and the monthly leaderboard for every chat that is due.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zen2281488/gayOfDay/contest"
	"github.com/zen2281488/gayOfDay/telemetry"
)

// DefaultInterval is the polling period.
const DefaultInterval = time.Minute

// Triggers is the schedule storage.
type Triggers interface {
	DailyTriggersAt(ctx context.Context, hhmm string) ([]contest.DailyTrigger, error)
	LeaderboardTriggersAt(ctx context.Context, hhmm string) ([]contest.LeaderboardTrigger, error)
	MarkLeaderboardFired(ctx context.Context, chatID, month string) error
}

// Runner runs the daily contest for a chat.
type Runner interface {
	Run(ctx context.Context, chatID string, force bool) (contest.Outcome, error)
}

// Poster posts the leaderboard for a chat.
type Poster interface {
	Post(ctx context.Context, chatID string) error
}

// Scheduler evaluates triggers on every tick.
type Scheduler struct {
	triggers Triggers
	game     Runner
	board    Poster
	dispatch Dispatcher
	clock    contest.Clock
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu        sync.Mutex
	inflight  map[string]bool   // chat|month leaderboard posts not yet marked
	lastDaily map[string]string // chat -> day HH:MM of the last dispatch
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the tick period.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithNow injects the time source used by Run.
func WithNow(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.log = l } }

// New returns a scheduler.
func New(triggers Triggers, game Runner, board Poster, dispatch Dispatcher, clock contest.Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		triggers:  triggers,
		game:      game,
		board:     board,
		dispatch:  dispatch,
		clock:     clock,
		interval:  DefaultInterval,
		now:       time.Now,
		log:       slog.Default().With(slog.String("component", "scheduler")),
		inflight:  map[string]bool{},
		lastDaily: map[string]string{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run ticks until ctx is done. Missed minutes are not caught up.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler starting", slog.Duration("interval", s.interval), slog.String("zone", s.clock.Location().String()))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.safeTick(ctx, s.now())
		}
	}
}

func (s *Scheduler) safeTick(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick panic", slog.Any("panic", r))
		}
	}()
	s.Tick(ctx, now)
}

// Tick dispatches everything due at now's civil minute.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	telemetry.ObserveTick()
	hhmm := s.clock.TimeOfDay(now)
	day := s.clock.Today(now)
	month := s.clock.MonthKey(now)

	daily, err := s.triggers.DailyTriggersAt(ctx, hhmm)
	if err != nil {
		s.log.Error("load daily triggers", slog.String("at", hhmm), slog.Any("err", err))
	}
	for _, t := range daily {
		if !s.claimDaily(t.ChatID, day+" "+hhmm) {
			continue
		}
		chatID := t.ChatID
		telemetry.ObserveDispatch("contest")
		s.dispatch.Go(ctx, "contest:"+chatID, func(ctx context.Context) error {
			out, err := s.game.Run(ctx, chatID, false)
			if err != nil {
				return err
			}
			telemetry.LoggerWithCorr(ctx).Info("scheduled contest finished",
				slog.String("chat", chatID), slog.String("outcome", string(out.Kind)))
			return nil
		})
	}

	monthly, err := s.triggers.LeaderboardTriggersAt(ctx, hhmm)
	if err != nil {
		s.log.Error("load leaderboard triggers", slog.String("at", hhmm), slog.Any("err", err))
	}
	today := s.clock.Civil(now).Day()
	for _, t := range monthly {
		if s.clock.EffectiveDay(t.DayOfMonth, now) != today || t.LastFiredMonth == month {
			continue
		}
		key := t.ChatID + "|" + month
		if !s.claimInflight(key) {
			continue
		}
		chatID := t.ChatID
		telemetry.ObserveDispatch("leaderboard")
		s.dispatch.Go(ctx, "leaderboard:"+chatID, func(ctx context.Context) error {
			defer s.releaseInflight(key)
			if err := s.board.Post(ctx, chatID); err != nil {
				return fmt.Errorf("post leaderboard: %w", err)
			}
			if err := s.triggers.MarkLeaderboardFired(ctx, chatID, month); err != nil {
				return fmt.Errorf("mark leaderboard %s: %w", month, err)
			}
			return nil
		})
	}
}

func (s *Scheduler) claimDaily(chatID, slot string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastDaily[chatID] == slot {
		return false
	}
	s.lastDaily[chatID] = slot
	return true
}

func (s *Scheduler) claimInflight(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[key] {
		return false
	}
	s.inflight[key] = true
	return true
}

func (s *Scheduler) releaseInflight(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}
