package contest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// memLedger is an in-memory Ledger with the same uniqueness rule as the
// Postgres one.
type memLedger struct {
	mu       sync.Mutex
	verdicts map[string]Verdict // chat|day
	last     map[string]int64
	settles  int
}

func newMemLedger() *memLedger {
	return &memLedger{verdicts: map[string]Verdict{}, last: map[string]int64{}}
}

func (l *memLedger) GetVerdict(_ context.Context, chatID, day string) (*Verdict, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.verdicts[chatID+"|"+day]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (l *memLedger) DeleteVerdict(_ context.Context, chatID, day string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.verdicts[chatID+"|"+day]
	delete(l.verdicts, chatID+"|"+day)
	return ok, nil
}

func (l *memLedger) PreviousWinner(_ context.Context, chatID string) (int64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.last[chatID]
	return id, ok, nil
}

func (l *memLedger) Settle(_ context.Context, v Verdict) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := v.ChatID + "|" + v.Day
	if _, ok := l.verdicts[key]; ok {
		return ErrAlreadySettled
	}
	l.verdicts[key] = v
	l.last[v.ChatID] = v.WinnerID
	l.settles++
	return nil
}

func (l *memLedger) Verdicts(_ context.Context, chatID string) ([]Verdict, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Verdict
	for _, v := range l.verdicts {
		if v.ChatID == chatID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

// memActivity stores messages and answers window queries newest-first.
type memActivity struct {
	msgs []Message
}

func (a *memActivity) query(chatID string, keep func(Message) bool, limit int) []Message {
	var out []Message
	for _, m := range a.msgs {
		if m.ChatID == chatID && keep(m) && m.Qualifies(3) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (a *memActivity) Window(_ context.Context, chatID string, from, to time.Time, limit int) ([]Message, error) {
	return a.query(chatID, func(m Message) bool {
		return !m.OccurredAt.Before(from) && m.OccurredAt.Before(to)
	}, limit), nil
}

func (a *memActivity) Before(_ context.Context, chatID string, before time.Time, limit int) ([]Message, error) {
	return a.query(chatID, func(m Message) bool { return m.OccurredAt.Before(before) }, limit), nil
}

// recGateway records sent texts and resolves names from a fixed map.
type recGateway struct {
	mu      sync.Mutex
	sent    []string
	names   map[int64]string
	failIDs bool
	calls   [][]int64
}

func (g *recGateway) Send(_ context.Context, _ string, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, text)
	return nil
}

func (g *recGateway) ResolveNames(_ context.Context, ids []int64) (map[int64]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, append([]int64(nil), ids...))
	if g.failIDs {
		return nil, errors.New("lookup down")
	}
	out := map[int64]string{}
	for _, id := range ids {
		if n, ok := g.names[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func (g *recGateway) texts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.sent...)
}

// pickArbiter picks the first candidate author that is not excluded.
type pickArbiter struct {
	mu       sync.Mutex
	calls    int
	excluded []int64
	winner   int64 // fixed winner when non-zero
	none     bool
}

func (a *pickArbiter) Arbitrate(_ context.Context, candidates []Message, excluded int64) Ruling {
	a.mu.Lock()
	a.calls++
	a.excluded = append(a.excluded, excluded)
	a.mu.Unlock()
	if a.none {
		return Ruling{WinnerID: NoWinner, Reason: "silence", Source: "placeholder"}
	}
	if a.winner != 0 {
		return Ruling{WinnerID: a.winner, Reason: "fixed", Source: "model"}
	}
	for _, m := range candidates {
		if m.AuthorID != excluded {
			return Ruling{WinnerID: m.AuthorID, Reason: "first", Source: "model"}
		}
	}
	return Ruling{WinnerID: NoWinner, Reason: "nobody", Source: "placeholder"}
}
