package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

type sayRecorder struct {
	mu    sync.Mutex
	lines []string
	chans []string
}

func (s *sayRecorder) Say(channel, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chans = append(s.chans, channel)
	s.lines = append(s.lines, text)
}

type fakeNames struct {
	known map[int64]string
	fail  bool
	calls [][]int64
}

func (f *fakeNames) GetUsers(_ context.Context, ids []int64) (map[int64]string, error) {
	f.calls = append(f.calls, append([]int64(nil), ids...))
	if f.fail {
		return nil, errors.New("helix down")
	}
	out := map[int64]string{}
	for _, id := range ids {
		if n, ok := f.known[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "single line", text: "hello", limit: 10, want: []string{"hello"}},
		{name: "packs lines", text: "a\nb\n\nc", limit: 20, want: []string{"a | b | c"}},
		{name: "flushes when full", text: "aaaa\nbbbb\ncccc", limit: 11, want: []string{"aaaa | bbbb", "cccc"}},
		{name: "cuts long line at space", text: "one two three four", limit: 9, want: []string{"one two", "three", "four"}},
		{name: "hard cut without spaces", text: "abcdefghij", limit: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "blank", text: " \n \n", limit: 10, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitMessage(tt.text, tt.limit)
			if strings.Join(got, "\x00") != strings.Join(tt.want, "\x00") {
				t.Errorf("SplitMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitMessageRespectsLimit(t *testing.T) {
	text := strings.Repeat("словосочетание ", 100) + "\n" + strings.Repeat("x", 1000)
	for _, part := range SplitMessage(text, MaxMessageRunes) {
		if n := utf8.RuneCountInString(part); n > MaxMessageRunes || n == 0 {
			t.Fatalf("part of %d runes", n)
		}
	}
}

func TestGatewaySend(t *testing.T) {
	rec := &sayRecorder{}
	g, err := NewGateway(rec, nil, 8)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Send(context.Background(), "chan", "line one\nline two"); err != nil {
		t.Fatal(err)
	}
	if len(rec.lines) != 1 || rec.lines[0] != "line one | line two" || rec.chans[0] != "chan" {
		t.Errorf("sent %q to %q", rec.lines, rec.chans)
	}

	disconnected, _ := NewGateway(nil, nil, 8)
	if err := disconnected.Send(context.Background(), "chan", "x"); err == nil {
		t.Error("send without IRC succeeded")
	}
}

func TestGatewayResolveNames(t *testing.T) {
	names := &fakeNames{known: map[int64]string{2: "Bob", 3: "Carol"}}
	g, _ := NewGateway(&sayRecorder{}, names, 8)
	g.Remember(1, "Alice")

	got, err := g.ResolveNames(context.Background(), []int64{1, 2, 3, 4, 2})
	if err != nil {
		t.Fatal(err)
	}
	if got[1] != "Alice" || got[2] != "Bob" || got[3] != "Carol" {
		t.Errorf("names = %v", got)
	}
	if _, ok := got[4]; ok {
		t.Error("unknown id resolved")
	}
	if len(names.calls) != 1 || len(names.calls[0]) != 3 {
		t.Errorf("helix calls = %v, want one call for the 3 misses", names.calls)
	}

	// resolved names are cached
	_, _ = g.ResolveNames(context.Background(), []int64{2, 3})
	if len(names.calls) != 1 {
		t.Errorf("cached names looked up again: %v", names.calls)
	}
}

func TestGatewayResolveNamesChunks(t *testing.T) {
	names := &fakeNames{known: map[int64]string{}}
	g, _ := NewGateway(&sayRecorder{}, names, 1024)
	ids := make([]int64, 250)
	for i := range ids {
		ids[i] = int64(i + 1)
		names.known[ids[i]] = "u"
	}
	got, err := g.ResolveNames(context.Background(), ids)
	if err != nil || len(got) != 250 {
		t.Fatalf("resolved %d, %v", len(got), err)
	}
	if len(names.calls) != 3 || len(names.calls[2]) != 50 {
		t.Errorf("chunks = %d", len(names.calls))
	}
}

func TestGatewayResolveNamesFailure(t *testing.T) {
	names := &fakeNames{fail: true}
	g, _ := NewGateway(&sayRecorder{}, names, 8)

	if _, err := g.ResolveNames(context.Background(), []int64{9}); err == nil {
		t.Error("expected error when nothing resolved")
	}
	g.Remember(5, "Eve")
	got, err := g.ResolveNames(context.Background(), []int64{5, 9})
	if err != nil || got[5] != "Eve" {
		t.Errorf("partial resolve = %v, %v", got, err)
	}
}
