package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zen2281488/gayOfDay/contest"
)

type fakeRunner struct {
	outcome contest.Outcome
	err     error
	runs    []bool
	resets  int
	removed bool
}

func (f *fakeRunner) Run(_ context.Context, _ string, force bool) (contest.Outcome, error) {
	f.runs = append(f.runs, force)
	return f.outcome, f.err
}

func (f *fakeRunner) Reset(context.Context, string) (bool, error) {
	f.resets++
	return f.removed, nil
}

func (f *fakeRunner) ReplayText(_ context.Context, v contest.Verdict) string {
	return "replay:" + v.Reason
}

func (f *fakeRunner) Texts() contest.Texts { return contest.Texts{Prefix: "!"} }

type fakePoster struct{ posts []string }

func (f *fakePoster) Post(_ context.Context, chatID string) error {
	f.posts = append(f.posts, chatID)
	return nil
}

type fakeTriggers struct {
	daily   map[string]string
	monthly map[string][2]any
}

func newFakeTriggers() *fakeTriggers {
	return &fakeTriggers{daily: map[string]string{}, monthly: map[string][2]any{}}
}

func (f *fakeTriggers) SetDailyTrigger(_ context.Context, c, hhmm string) error {
	f.daily[c] = hhmm
	return nil
}

func (f *fakeTriggers) ClearDailyTrigger(_ context.Context, c string) (bool, error) {
	_, ok := f.daily[c]
	delete(f.daily, c)
	return ok, nil
}

func (f *fakeTriggers) SetLeaderboardTrigger(_ context.Context, c string, day int, hhmm string) error {
	f.monthly[c] = [2]any{day, hhmm}
	return nil
}

func (f *fakeTriggers) ClearLeaderboardTrigger(_ context.Context, c string) (bool, error) {
	_, ok := f.monthly[c]
	delete(f.monthly, c)
	return ok, nil
}

type sentLog struct{ texts []string }

func (s *sentLog) Send(_ context.Context, _ string, text string) error {
	s.texts = append(s.texts, text)
	return nil
}

func (s *sentLog) ResolveNames(context.Context, []int64) (map[int64]string, error) {
	return nil, errors.New("unused")
}

func (s *sentLog) last() string {
	if len(s.texts) == 0 {
		return ""
	}
	return s.texts[len(s.texts)-1]
}

func newTestCommands() (*Commands, *fakeRunner, *fakePoster, *fakeTriggers, *sentLog) {
	r, p, tr, out := &fakeRunner{}, &fakePoster{}, newFakeTriggers(), &sentLog{}
	return NewCommands(r, p, tr, out, "!"), r, p, tr, out
}

func TestCommandsParse(t *testing.T) {
	c, _, _, _, _ := newTestCommands()
	tests := []struct {
		text string
		name string
		args []string
		ok   bool
	}{
		{text: "!who", name: "who", ok: true},
		{text: "  !WHO  ", name: "who", ok: true},
		{text: "!settop 31 21:00", name: "settop", args: []string{"31", "21:00"}, ok: true},
		{text: "!dance", ok: false},
		{text: "who", ok: false},
		{text: "!", ok: false},
	}
	for _, tt := range tests {
		name, args, ok := c.Parse(tt.text)
		if ok != tt.ok || name != tt.name || strings.Join(args, " ") != strings.Join(tt.args, " ") {
			t.Errorf("Parse(%q) = %q %v %v", tt.text, name, args, ok)
		}
	}
}

func TestCommandsWho(t *testing.T) {
	c, r, _, _, out := newTestCommands()
	ctx := context.Background()

	r.outcome = contest.Outcome{Kind: contest.OutcomeSettled}
	if err := c.Handle(ctx, Invocation{ChatID: "c", Name: "who"}); err != nil {
		t.Fatal(err)
	}
	if len(out.texts) != 0 {
		t.Errorf("settled run produced extra reply %q", out.texts)
	}
	if len(r.runs) != 1 || r.runs[0] {
		t.Errorf("runs = %v, want one non-forced run", r.runs)
	}

	r.outcome = contest.Outcome{Kind: contest.OutcomeReplayed, Verdict: &contest.Verdict{Reason: "loud"}}
	_ = c.Handle(ctx, Invocation{ChatID: "c", Name: "who"})
	if out.last() != "replay:loud" {
		t.Errorf("replay reply = %q", out.last())
	}
}

func TestCommandsModeratorOnly(t *testing.T) {
	c, r, _, tr, out := newTestCommands()
	ctx := context.Background()

	for _, name := range []string{"reset", "settime", "settop"} {
		_ = c.Handle(ctx, Invocation{ChatID: "c", Name: name, Args: []string{"10:00"}})
		if !strings.Contains(out.last(), "moderators") {
			t.Errorf("%s by viewer replied %q", name, out.last())
		}
	}
	if r.resets != 0 || len(tr.daily) != 0 {
		t.Error("viewer command had an effect")
	}
}

func TestCommandsResetAndTop(t *testing.T) {
	c, r, p, _, out := newTestCommands()
	ctx := context.Background()

	r.removed = true
	_ = c.Handle(ctx, Invocation{ChatID: "c", Name: "reset", Moderator: true})
	if r.resets != 1 || !strings.Contains(out.last(), "wiped") {
		t.Errorf("reset reply = %q", out.last())
	}
	_ = c.Handle(ctx, Invocation{ChatID: "c", Name: "top"})
	if len(p.posts) != 1 || p.posts[0] != "c" {
		t.Errorf("posts = %v", p.posts)
	}
}

func TestCommandsSchedule(t *testing.T) {
	c, _, _, tr, out := newTestCommands()
	ctx := context.Background()
	mod := func(name string, args ...string) {
		_ = c.Handle(ctx, Invocation{ChatID: "c", Name: name, Args: args, Moderator: true})
	}

	mod("settime", "9:05")
	if tr.daily["c"] != "09:05" {
		t.Errorf("daily = %v", tr.daily)
	}
	mod("settime", "25:00")
	if !strings.HasPrefix(out.last(), "Usage") || tr.daily["c"] != "09:05" {
		t.Errorf("bad time accepted: %q %v", out.last(), tr.daily)
	}
	mod("settime", "off")
	if _, ok := tr.daily["c"]; ok {
		t.Error("daily trigger not cleared")
	}

	mod("settop", "31", "21:00")
	if got := tr.monthly["c"]; got[0] != 31 || got[1] != "21:00" {
		t.Errorf("monthly = %v", got)
	}
	mod("settop", "32", "21:00")
	if !strings.HasPrefix(out.last(), "Usage") {
		t.Errorf("day 32 reply = %q", out.last())
	}
	mod("settop")
	if !strings.HasPrefix(out.last(), "Usage") {
		t.Errorf("empty settop reply = %q", out.last())
	}
	mod("settop", "off")
	if len(tr.monthly) != 0 {
		t.Error("monthly trigger not cleared")
	}
}
