// Package arbiter decides the daily winner. It anonymizes the candidate
// messages, asks the completion service for a verdict, validates and repairs
// the answer, and falls back to a most-active heuristic whenever the service
// cannot be used. Arbitrate never fails.
package arbiter

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zen2281488/gayOfDay/contest"
	"github.com/zen2281488/gayOfDay/llm"
	"github.com/zen2281488/gayOfDay/telemetry"
)

// Ruling sources.
const (
	SourceModel       = "model"
	SourceFallback    = "fallback"
	SourcePlaceholder = "placeholder"
)

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 30 * time.Second

const (
	placeholderReason = "Everyone is silent. Nothing to judge today."
	defaultReason     = "No reason given. The jury took one look and just knew."
)

// fallbackTemplates are used when the completion service fails; {n} is the
// winner's message count.
var fallbackTemplates = []string{
	"Posted {n} messages and not a single smart one. Congratulations, you are exhausting.",
	"{n} messages of pure spam. The jury broke down reading them, so the title is yours.",
	"The jury refused to work with this crowd today, so you win simply for being the loudest one here.",
}

// Completer is the completion gateway.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Arbiter implements contest.Arbiter.
type Arbiter struct {
	completer Completer
	settings  *Settings
	title     string
	timeout   time.Duration
	intn      func(n int) int
	log       *slog.Logger
}

// Option customizes an Arbiter.
type Option func(*Arbiter)

// WithTimeout sets the per-call completion timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Arbiter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithTitle sets the game title used in the system prompt.
func WithTitle(title string) Option { return func(a *Arbiter) { a.title = title } }

// WithIntn injects the random source used for repairs and fallbacks.
func WithIntn(intn func(n int) int) Option { return func(a *Arbiter) { a.intn = intn } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(a *Arbiter) { a.log = l } }

// New returns an arbiter reading its completion settings from settings at
// every call.
func New(completer Completer, settings *Settings, opts ...Option) *Arbiter {
	a := &Arbiter{
		completer: completer,
		settings:  settings,
		title:     contest.DefaultTitle,
		timeout:   DefaultTimeout,
		intn:      rand.IntN,
		log:       slog.Default().With(slog.String("component", "arbiter")),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Arbitrate picks a winner among candidates, never choosing excluded
// (0 means no exclusion). The winner is always an author of a remaining
// candidate message, or contest.NoWinner when none remain.
func (a *Arbiter) Arbitrate(ctx context.Context, candidates []contest.Message, excluded int64) contest.Ruling {
	ctx, span := telemetry.StartSpan(ctx, "arbiter", "arbiter.arbitrate", attribute.Int("candidates", len(candidates)))
	defer span.End()

	filtered := make([]contest.Message, 0, len(candidates))
	for _, m := range candidates {
		if excluded != 0 && m.AuthorID == excluded {
			continue
		}
		if m.Qualifies(3) {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) == 0 {
		telemetry.ObserveArbitration(SourcePlaceholder, "")
		return contest.Ruling{WinnerID: contest.NoWinner, Reason: placeholderReason, Source: SourcePlaceholder}
	}

	aliases := newAliasMap()
	payload := buildPayload(aliases, filtered)

	content, err := a.complete(ctx, payload)
	if err != nil {
		kind := llm.Classify(err)
		a.log.Warn("completion failed; using most-active fallback", slog.String("kind", string(kind)), slog.Any("err", err))
		telemetry.RecordError(span, err)
		return a.fallback(filtered, string(kind))
	}
	parsed, err := parseRuling(content)
	if err != nil {
		a.log.Warn("unparseable completion; using most-active fallback", slog.Any("err", err), slog.Int("len", len(content)))
		return a.fallback(filtered, string(llm.KindMalformed))
	}

	winner, ok := int64(0), false
	if parsed.HasUserID {
		winner, ok = aliases.resolve(parsed.UserID)
	}
	if !ok || !aliases.has(winner) {
		ids := aliases.ids()
		repaired := ids[a.intn(len(ids))]
		a.log.Info("model named an ineligible participant; picking at random",
			slog.String("user_id", parsed.UserID), slog.Int64("picked", repaired))
		winner = repaired
	}
	reason := parsed.Reason
	if reason == "" {
		reason = defaultReason
	}
	telemetry.ObserveArbitration(SourceModel, "")
	telemetry.SetSpanSuccess(span)
	return contest.Ruling{WinnerID: winner, Reason: reason, Source: SourceModel}
}

func (a *Arbiter) complete(ctx context.Context, payload string) (string, error) {
	cfg := a.settings.Snapshot()
	baseURL, err := llm.BaseURLFor(cfg.Provider, cfg.BaseURL)
	if err != nil {
		return "", &llm.Error{Kind: llm.KindConfig, Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var content string
	telemetry.TimeFunc(telemetry.CompletionDuration, func() {
		content, err = a.completer.Complete(ctx, llm.Request{
			BaseURL:     baseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			System:      systemPrompt(a.title),
			User:        payload,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			JSON:        true,
		})
	})
	return content, err
}

// fallback picks the author with the most messages, ties going to whoever
// spoke first.
func (a *Arbiter) fallback(filtered []contest.Message, reason string) contest.Ruling {
	counts := map[int64]int{}
	var order []int64
	for _, m := range filtered {
		if counts[m.AuthorID] == 0 {
			order = append(order, m.AuthorID)
		}
		counts[m.AuthorID]++
	}
	var best int64
	bestN := 0
	for _, id := range order {
		if counts[id] > bestN {
			best, bestN = id, counts[id]
		}
	}
	if bestN == 0 {
		telemetry.ObserveArbitration(SourcePlaceholder, reason)
		return contest.Ruling{WinnerID: contest.NoWinner, Reason: placeholderReason, Source: SourcePlaceholder}
	}
	tmpl := fallbackTemplates[a.intn(len(fallbackTemplates))]
	telemetry.ObserveArbitration(SourceFallback, reason)
	return contest.Ruling{WinnerID: best, Reason: strings.ReplaceAll(tmpl, "{n}", strconv.Itoa(bestN)), Source: SourceFallback}
}
