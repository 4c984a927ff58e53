package contest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/zen2281488/gayOfDay/telemetry"
)

// DefaultNameChunk is the largest batch sent to Gateway.ResolveNames.
const DefaultNameChunk = 100

var medals = [...]string{"🥇", "🥈", "🥉"}

// Standing is one leaderboard row.
type Standing struct {
	WinnerID int64
	Wins     int
}

// Rank counts wins per winner and orders them by wins descending, then by
// winner id ascending.
func Rank(verdicts []Verdict) []Standing {
	counts := make(map[int64]int)
	for _, v := range verdicts {
		counts[v.WinnerID]++
	}
	out := make([]Standing, 0, len(counts))
	for id, n := range counts {
		out = append(out, Standing{WinnerID: id, Wins: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].WinnerID < out[j].WinnerID
	})
	return out
}

// Leaderboard renders monthly and all-time standings for a chat.
type Leaderboard struct {
	ledger  Ledger
	gateway Gateway
	clock   Clock
	texts   Texts
	chunk   int
	now     func() time.Time
	log     *slog.Logger
}

// NewLeaderboard returns an aggregator. chunk <= 0 uses DefaultNameChunk.
func NewLeaderboard(ledger Ledger, gateway Gateway, clock Clock, texts Texts, chunk int) *Leaderboard {
	if chunk <= 0 {
		chunk = DefaultNameChunk
	}
	return &Leaderboard{
		ledger:  ledger,
		gateway: gateway,
		clock:   clock,
		texts:   texts,
		chunk:   chunk,
		now:     time.Now,
		log:     slog.Default().With(slog.String("component", "leaderboard")),
	}
}

// SetNow injects the time source.
func (l *Leaderboard) SetNow(now func() time.Time) { l.now = now }

// Render builds the leaderboard text for chatID.
func (l *Leaderboard) Render(ctx context.Context, chatID string) (string, error) {
	verdicts, err := l.ledger.Verdicts(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("load verdicts: %w", err)
	}
	month := l.clock.MonthKey(l.now())
	var monthly []Verdict
	for _, v := range verdicts {
		if strings.HasPrefix(v.Day, month) {
			monthly = append(monthly, v)
		}
	}
	monthRank, allRank := Rank(monthly), Rank(verdicts)

	ids := make([]int64, 0, len(allRank))
	for _, s := range allRank {
		ids = append(ids, s.WinnerID)
	}
	names := l.resolve(ctx, ids)

	var b strings.Builder
	b.WriteString(l.texts.LeaderboardHeader())
	fmt.Fprintf(&b, "\n\nThis month (%s):\n", month)
	writeStandings(&b, monthRank, names)
	b.WriteString("\nAll time:\n")
	writeStandings(&b, allRank, names)
	return strings.TrimRight(b.String(), "\n"), nil
}

// Post renders and sends the leaderboard to chatID.
func (l *Leaderboard) Post(ctx context.Context, chatID string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "contest", "leaderboard.post", attribute.String("chat", chatID))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()
	text, err := l.Render(ctx, chatID)
	if err != nil {
		return err
	}
	if err := l.gateway.Send(ctx, chatID, text); err != nil {
		return fmt.Errorf("send leaderboard: %w", err)
	}
	telemetry.ObserveLeaderboardPost()
	return nil
}

// resolve looks names up in concurrent chunks; failed chunks are left out
// and rendered with numeric labels.
func (l *Leaderboard) resolve(ctx context.Context, ids []int64) map[int64]string {
	names := make(map[int64]string, len(ids))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(ids); start += l.chunk {
		end := min(start+l.chunk, len(ids))
		batch := ids[start:end]
		g.Go(func() error {
			got, err := l.gateway.ResolveNames(gctx, batch)
			if err != nil {
				l.log.Warn("name lookup failed", slog.Int("ids", len(batch)), slog.Any("err", err))
				return nil
			}
			mu.Lock()
			for id, n := range got {
				names[id] = n
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return names
}

func writeStandings(b *strings.Builder, rows []Standing, names map[int64]string) {
	if len(rows) == 0 {
		b.WriteString("no results yet\n")
		return
	}
	for i, s := range rows {
		label := names[s.WinnerID]
		if label == "" {
			label = fmt.Sprintf("id:%d", s.WinnerID)
		}
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		fmt.Fprintf(b, "%s %s: %d\n", rank, label, s.Wins)
	}
}
