package contest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zen2281488/gayOfDay/telemetry"
)

// OutcomeKind enumerates what a contest run did.
type OutcomeKind string

const (
	OutcomeSettled      OutcomeKind = "settled"
	OutcomeReplayed     OutcomeKind = "replayed"
	OutcomeInsufficient OutcomeKind = "insufficient_evidence"
	OutcomeNoWinner     OutcomeKind = "no_winner"
	OutcomeConflict     OutcomeKind = "conflict"
)

// Outcome is the result of Game.Run. Verdict is set for settled and
// replayed outcomes; WinnerName only for settled ones.
type Outcome struct {
	Kind       OutcomeKind
	Verdict    *Verdict
	WinnerName string
	Evidence   int
}

// Game is the per-chat daily state machine.
type Game struct {
	ledger    Ledger
	collector *Collector
	arbiter   Arbiter
	gateway   Gateway
	clock     Clock
	texts     Texts
	minEvid   int
	progress  bool
	now       func() time.Time
	log       *slog.Logger
}

// GameOption customizes a Game.
type GameOption func(*Game)

// WithTexts sets the chat texts (title and command prefix).
func WithTexts(t Texts) GameOption { return func(g *Game) { g.texts = t } }

// WithMinEvidence sets how many qualifying messages a run needs.
func WithMinEvidence(n int) GameOption {
	return func(g *Game) {
		if n > 0 {
			g.minEvid = n
		}
	}
}

// WithProgress toggles the "studying N messages" notice.
func WithProgress(on bool) GameOption { return func(g *Game) { g.progress = on } }

// WithNow injects the time source.
func WithNow(now func() time.Time) GameOption { return func(g *Game) { g.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GameOption { return func(g *Game) { g.log = l } }

// NewGame wires the state machine.
func NewGame(ledger Ledger, collector *Collector, arbiter Arbiter, gateway Gateway, clock Clock, opts ...GameOption) *Game {
	g := &Game{
		ledger:    ledger,
		collector: collector,
		arbiter:   arbiter,
		gateway:   gateway,
		clock:     clock,
		minEvid:   DefaultEvidenceMin,
		progress:  true,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Texts returns the chat texts the game renders with.
func (g *Game) Texts() Texts { return g.texts }

// Today returns the current civil day.
func (g *Game) Today() string { return g.clock.Today(g.now()) }

// Run settles today's verdict for chatID, or replays it if it already exists.
// When force is set any existing verdict for today is removed first.
// Only infrastructure failures are returned as errors; every game outcome is
// reported through the Outcome.
func (g *Game) Run(ctx context.Context, chatID string, force bool) (out Outcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, "contest", "contest.run",
		attribute.String("chat", chatID), attribute.Bool("force", force))
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
			telemetry.ObserveRun("error")
		} else {
			telemetry.SetSpanSuccess(span)
			telemetry.ObserveRun(string(out.Kind))
		}
		span.End()
	}()

	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "contest"), slog.String("chat", chatID))
	day := g.Today()

	if force {
		if _, err := g.ledger.DeleteVerdict(ctx, chatID, day); err != nil {
			return Outcome{}, fmt.Errorf("reset before run: %w", err)
		}
	}

	existing, err := g.ledger.GetVerdict(ctx, chatID, day)
	if err != nil {
		return Outcome{}, fmt.Errorf("load verdict: %w", err)
	}
	if existing != nil {
		return Outcome{Kind: OutcomeReplayed, Verdict: existing}, nil
	}

	candidates, err := g.collector.Collect(ctx, chatID, day)
	if err != nil {
		return Outcome{}, err
	}
	if len(candidates) < g.minEvid {
		log.Info("not enough evidence", slog.Int("messages", len(candidates)))
		g.send(ctx, chatID, g.texts.Insufficient())
		return Outcome{Kind: OutcomeInsufficient, Evidence: len(candidates)}, nil
	}

	excluded, err := g.exclusion(ctx, chatID, candidates)
	if err != nil {
		return Outcome{}, err
	}

	if g.progress {
		g.send(ctx, chatID, g.texts.Progress(len(candidates)))
	}
	ruling := g.arbiter.Arbitrate(ctx, candidates, excluded)
	if ruling.WinnerID == NoWinner {
		log.Warn("arbitration returned no winner", slog.String("source", ruling.Source))
		g.send(ctx, chatID, g.texts.NoWinner())
		return Outcome{Kind: OutcomeNoWinner, Evidence: len(candidates)}, nil
	}

	name := g.displayName(ctx, ruling.WinnerID, candidates)

	v := Verdict{ChatID: chatID, Day: day, WinnerID: ruling.WinnerID, Reason: ruling.Reason, Settled: g.now().UTC()}
	if err := g.ledger.Settle(ctx, v); err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			log.Info("verdict settled concurrently; discarding")
			return Outcome{Kind: OutcomeConflict, Evidence: len(candidates)}, nil
		}
		return Outcome{}, fmt.Errorf("settle: %w", err)
	}
	log.Info("verdict settled", slog.Int64("winner", v.WinnerID), slog.String("source", ruling.Source))

	g.send(ctx, chatID, g.texts.Announce(name, v.Reason))
	return Outcome{Kind: OutcomeSettled, Verdict: &v, WinnerName: name, Evidence: len(candidates)}, nil
}

// Reset deletes today's verdict for chatID. It reports whether one existed.
func (g *Game) Reset(ctx context.Context, chatID string) (bool, error) {
	return g.ledger.DeleteVerdict(ctx, chatID, g.Today())
}

// ReplayText renders an existing verdict, resolving the winner's name best-effort.
func (g *Game) ReplayText(ctx context.Context, v Verdict) string {
	return g.texts.Replay(g.displayName(ctx, v.WinnerID, nil), v.Reason)
}

// exclusion returns the previous winner when excluding them still leaves
// someone else to pick, and 0 otherwise.
func (g *Game) exclusion(ctx context.Context, chatID string, candidates []Message) (int64, error) {
	prev, ok, err := g.ledger.PreviousWinner(ctx, chatID)
	if err != nil {
		return 0, fmt.Errorf("previous winner: %w", err)
	}
	if !ok || prev == NoWinner {
		return 0, nil
	}
	present, others := false, false
	for _, m := range candidates {
		if !m.Qualifies(minTextLen) {
			continue
		}
		if m.AuthorID == prev {
			present = true
		} else {
			others = true
		}
	}
	if present && others {
		return prev, nil
	}
	return 0, nil
}

func (g *Game) displayName(ctx context.Context, id int64, candidates []Message) string {
	names, err := g.gateway.ResolveNames(ctx, []int64{id})
	if err == nil && names[id] != "" {
		return names[id]
	}
	if err != nil {
		g.log.Debug("name resolution failed", slog.Int64("user", id), slog.Any("err", err))
	}
	for i := len(candidates) - 1; i >= 0; i-- {
		if candidates[i].AuthorID == id && candidates[i].DisplayName != "" {
			return candidates[i].DisplayName
		}
	}
	return PlaceholderName
}

func (g *Game) send(ctx context.Context, chatID, text string) {
	if err := g.gateway.Send(ctx, chatID, text); err != nil {
		g.log.Warn("chat send failed", slog.String("chat", chatID), slog.Any("err", err))
	}
}
