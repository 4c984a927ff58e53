package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zen2281488/gayOfDay/contest"
)

type memTriggers struct {
	mu      sync.Mutex
	daily   []contest.DailyTrigger
	monthly map[string]*contest.LeaderboardTrigger
	failAt  string
}

func (m *memTriggers) DailyTriggersAt(_ context.Context, hhmm string) ([]contest.DailyTrigger, error) {
	if hhmm == m.failAt {
		return nil, errors.New("db down")
	}
	var out []contest.DailyTrigger
	for _, t := range m.daily {
		if t.TimeOfDay == hhmm {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTriggers) LeaderboardTriggersAt(_ context.Context, hhmm string) ([]contest.LeaderboardTrigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []contest.LeaderboardTrigger
	for _, t := range m.monthly {
		if t.TimeOfDay == hhmm {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTriggers) MarkLeaderboardFired(_ context.Context, chatID, month string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monthly[chatID].LastFiredMonth = month
	return nil
}

type countRunner struct {
	mu   sync.Mutex
	runs map[string]int
}

func (c *countRunner) Run(_ context.Context, chatID string, force bool) (contest.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if force {
		panic("scheduled runs must not force")
	}
	c.runs[chatID]++
	return contest.Outcome{Kind: contest.OutcomeSettled}, nil
}

type countPoster struct {
	mu    sync.Mutex
	posts map[string]int
	fail  bool
}

func (c *countPoster) Post(_ context.Context, chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("send failed")
	}
	c.posts[chatID]++
	return nil
}

type inlineDispatcher struct{ errs []error }

func (d *inlineDispatcher) Go(ctx context.Context, _ string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		d.errs = append(d.errs, err)
	}
}

// heldDispatcher queues tasks until released.
type heldDispatcher struct{ queued []func(context.Context) error }

func (d *heldDispatcher) Go(_ context.Context, _ string, fn func(context.Context) error) {
	d.queued = append(d.queued, fn)
}

func fixture(t *testing.T, d Dispatcher) (*Scheduler, *memTriggers, *countRunner, *countPoster, contest.Clock) {
	t.Helper()
	loc, err := contest.ParseOffset("+03:00")
	if err != nil {
		t.Fatal(err)
	}
	clock := contest.NewClock(loc)
	tr := &memTriggers{monthly: map[string]*contest.LeaderboardTrigger{}}
	r := &countRunner{runs: map[string]int{}}
	p := &countPoster{posts: map[string]int{}}
	return New(tr, r, p, d, clock), tr, r, p, clock
}

func TestDailyTriggerFiresAtItsMinute(t *testing.T) {
	s, tr, r, _, clock := fixture(t, &inlineDispatcher{})
	tr.daily = []contest.DailyTrigger{{ChatID: "a", TimeOfDay: "09:00"}, {ChatID: "b", TimeOfDay: "21:15"}}

	start := time.Date(2024, 3, 10, 0, 0, 0, 0, clock.Location())
	for i := 0; i < 1440; i++ {
		s.Tick(context.Background(), start.Add(time.Duration(i)*time.Minute))
	}
	if r.runs["a"] != 1 || r.runs["b"] != 1 {
		t.Errorf("runs = %v, want one each", r.runs)
	}

	// a second tick inside the same minute does not dispatch again
	s.Tick(context.Background(), start.Add(9*time.Hour+30*time.Second))
	if r.runs["a"] != 1 {
		t.Errorf("same-minute tick re-dispatched: %v", r.runs)
	}
}

func TestDailyTriggerUsesCivilOffset(t *testing.T) {
	s, tr, r, _, _ := fixture(t, &inlineDispatcher{})
	tr.daily = []contest.DailyTrigger{{ChatID: "a", TimeOfDay: "09:00"}}

	s.Tick(context.Background(), time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	if r.runs["a"] != 0 {
		t.Error("fired at 09:00 UTC instead of 09:00 +03:00")
	}
	s.Tick(context.Background(), time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC))
	if r.runs["a"] != 1 {
		t.Error("did not fire at 06:00 UTC = 09:00 +03:00")
	}
}

func TestLeaderboardDay31FiresOnceOnShortMonth(t *testing.T) {
	s, tr, _, p, clock := fixture(t, &inlineDispatcher{})
	tr.monthly["a"] = &contest.LeaderboardTrigger{ChatID: "a", DayOfMonth: 31, TimeOfDay: "21:00"}

	// November has 30 days: every minute of Nov 29 and Nov 30
	start := time.Date(2024, 11, 29, 0, 0, 0, 0, clock.Location())
	for i := 0; i < 2*1440; i++ {
		s.Tick(context.Background(), start.Add(time.Duration(i)*time.Minute))
	}
	if p.posts["a"] != 1 {
		t.Fatalf("posts = %d, want 1", p.posts["a"])
	}
	if tr.monthly["a"].LastFiredMonth != "2024-11" {
		t.Errorf("last fired = %q", tr.monthly["a"].LastFiredMonth)
	}

	// December 30 is not the effective day; December 31 is
	s.Tick(context.Background(), time.Date(2024, 12, 30, 21, 0, 0, 0, clock.Location()))
	s.Tick(context.Background(), time.Date(2024, 12, 31, 21, 0, 0, 0, clock.Location()))
	if p.posts["a"] != 2 || tr.monthly["a"].LastFiredMonth != "2024-12" {
		t.Errorf("december posts = %d, last = %q", p.posts["a"], tr.monthly["a"].LastFiredMonth)
	}
}

func TestLeaderboardSkipsAlreadyFiredMonth(t *testing.T) {
	s, tr, _, p, clock := fixture(t, &inlineDispatcher{})
	tr.monthly["a"] = &contest.LeaderboardTrigger{ChatID: "a", DayOfMonth: 5, TimeOfDay: "10:00", LastFiredMonth: "2024-02"}
	s.Tick(context.Background(), time.Date(2024, 2, 5, 10, 0, 0, 0, clock.Location()))
	if p.posts["a"] != 0 {
		t.Error("posted twice in one month")
	}
}

func TestLeaderboardInflightDedup(t *testing.T) {
	d := &heldDispatcher{}
	s, tr, _, p, clock := fixture(t, d)
	tr.monthly["a"] = &contest.LeaderboardTrigger{ChatID: "a", DayOfMonth: 1, TimeOfDay: "12:00"}
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, clock.Location())

	s.Tick(context.Background(), at)
	s.Tick(context.Background(), at.Add(20*time.Second))
	if len(d.queued) != 1 {
		t.Fatalf("queued %d posts while one is in flight", len(d.queued))
	}
	if err := d.queued[0](context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Tick(context.Background(), at.Add(40*time.Second))
	if len(d.queued) != 1 || p.posts["a"] != 1 {
		t.Errorf("queued %d, posts %d", len(d.queued), p.posts["a"])
	}
}

func TestLeaderboardFailureLeavesMonthOpen(t *testing.T) {
	d := &inlineDispatcher{}
	s, tr, _, p, clock := fixture(t, d)
	p.fail = true
	tr.monthly["a"] = &contest.LeaderboardTrigger{ChatID: "a", DayOfMonth: 1, TimeOfDay: "12:00"}
	s.Tick(context.Background(), time.Date(2024, 4, 1, 12, 0, 0, 0, clock.Location()))
	if tr.monthly["a"].LastFiredMonth != "" || len(d.errs) != 1 {
		t.Errorf("last fired = %q, errs = %v", tr.monthly["a"].LastFiredMonth, d.errs)
	}
}

func TestTickSurvivesStorageErrors(t *testing.T) {
	s, tr, _, p, clock := fixture(t, &inlineDispatcher{})
	tr.failAt = "08:00"
	tr.monthly["a"] = &contest.LeaderboardTrigger{ChatID: "a", DayOfMonth: 1, TimeOfDay: "08:00"}
	s.Tick(context.Background(), time.Date(2024, 4, 1, 8, 0, 0, 0, clock.Location()))
	if p.posts["a"] != 1 {
		t.Error("leaderboard skipped after daily trigger load failure")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, _, _, _ := fixture(t, &inlineDispatcher{})
	s.interval = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
