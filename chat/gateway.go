package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru"

	"github.com/zen2281488/gayOfDay/contest"
)

// MaxMessageRunes is the longest text sent as one IRC message.
const MaxMessageRunes = 480

// Sayer posts a line to a channel. *twitch.Client satisfies it.
type Sayer interface {
	Say(channel, text string)
}

// NameSource resolves user ids in bulk. *twitchapi.HelixClient satisfies it.
type NameSource interface {
	GetUsers(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Gateway implements contest.Gateway over Twitch IRC and Helix.
type Gateway struct {
	sayer Sayer
	names NameSource
	cache *lru.Cache
	chunk int
	log   *slog.Logger
}

var _ contest.Gateway = (*Gateway)(nil)

// NewGateway returns a gateway with a name cache of cacheSize entries. names
// may be nil, in which case only cached names resolve.
func NewGateway(sayer Sayer, names NameSource, cacheSize int) (*Gateway, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("name cache: %w", err)
	}
	return &Gateway{
		sayer: sayer,
		names: names,
		cache: cache,
		chunk: 100,
		log:   slog.Default().With(slog.String("component", "chat_gateway")),
	}, nil
}

// Send posts text to chatID. Lines are packed into messages of at most
// MaxMessageRunes runes; longer lines are cut at word boundaries.
func (g *Gateway) Send(ctx context.Context, chatID, text string) error {
	if g.sayer == nil {
		return errors.New("chat: not connected")
	}
	for _, part := range SplitMessage(text, MaxMessageRunes) {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.sayer.Say(chatID, part)
	}
	return nil
}

// Remember caches a display name seen in chat.
func (g *Gateway) Remember(id int64, name string) {
	if id == 0 || name == "" {
		return
	}
	g.cache.Add(id, name)
}

// ResolveNames returns display names for ids. Cache misses are looked up in
// chunks; a failed chunk is skipped. An error is returned only when nothing
// resolved and a lookup failed.
func (g *Gateway) ResolveNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	var misses []int64
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if v, ok := g.cache.Get(id); ok {
			out[id] = v.(string)
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 || g.names == nil {
		return out, nil
	}

	var lastErr error
	for start := 0; start < len(misses); start += g.chunk {
		end := min(start+g.chunk, len(misses))
		got, err := g.names.GetUsers(ctx, misses[start:end])
		if err != nil {
			g.log.Warn("name lookup failed", slog.Int("ids", end-start), slog.Any("err", err))
			lastErr = err
			continue
		}
		for id, name := range got {
			g.cache.Add(id, name)
			out[id] = name
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, fmt.Errorf("resolve names: %w", lastErr)
	}
	return out, nil
}

// SplitMessage packs the non-empty lines of text into chunks of at most
// limit runes, joining packed lines with " | ".
func SplitMessage(text string, limit int) []string {
	const sep = " | "
	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if n > 0 {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, piece := range cutLine(line, limit) {
			l := utf8.RuneCountInString(piece)
			if n > 0 && n+utf8.RuneCountInString(sep)+l > limit {
				flush()
			}
			if n > 0 {
				cur.WriteString(sep)
				n += utf8.RuneCountInString(sep)
			}
			cur.WriteString(piece)
			n += l
		}
	}
	flush()
	return out
}

// cutLine splits a line longer than limit runes, preferring the last space.
func cutLine(line string, limit int) []string {
	var out []string
	rs := []rune(line)
	for len(rs) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if rs[i] == ' ' {
				cut = i
				break
			}
		}
		out = append(out, strings.TrimSpace(string(rs[:cut])))
		rs = []rune(strings.TrimSpace(string(rs[cut:])))
	}
	if len(rs) > 0 {
		out = append(out, string(rs))
	}
	return out
}
