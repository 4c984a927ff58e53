package contest

import (
	"fmt"
	"strings"
)

// DefaultTitle names the game in chat texts.
const DefaultTitle = "Loser of the Day"

// PlaceholderName is shown when the winner's display name cannot be resolved.
const PlaceholderName = "someone"

// Texts renders the chat-visible strings of the game.
type Texts struct {
	Title  string
	Prefix string // command prefix, used in hints
}

func (t Texts) title() string {
	if t.Title == "" {
		return DefaultTitle
	}
	return t.Title
}

func (t Texts) cmd(name string) string {
	p := t.Prefix
	if p == "" {
		p = "!"
	}
	return p + name
}

// Insufficient is posted when the chat has too little evidence today.
func (t Texts) Insufficient() string {
	return "Not enough messages yet. Keep talking so I have someone to judge."
}

// NoWinner is posted when arbitration found nobody to pick.
func (t Texts) NoWinner() string {
	return "Could not pick anyone this time. Try again later."
}

// Progress is posted before arbitration starts.
func (t Texts) Progress(n int) string {
	return fmt.Sprintf("🎲 Studying %d messages... who embarrasses themselves today?", n)
}

// Announce is posted after a fresh settlement.
func (t Texts) Announce(name, reason string) string {
	return fmt.Sprintf("👑 %s FOUND!\nCongratulations (not really): @%s\n\n💬 Verdict:\n%s",
		strings.ToUpper(t.title()), name, reason)
}

// Replay is posted when today's verdict already exists.
func (t Texts) Replay(name, reason string) string {
	return fmt.Sprintf("Already decided!\n%s: @%s\n\n📝 %s\n\n(to reset: %s)",
		t.title(), name, reason, t.cmd("reset"))
}

// Reset confirms that today's verdict was removed.
func (t Texts) Reset(removed bool) string {
	if !removed {
		return fmt.Sprintf("Nothing to reset today. Use %s to pick someone.", t.cmd("who"))
	}
	return fmt.Sprintf("🔄 Today's result is wiped. Use %s to pick again.", t.cmd("who"))
}

// LeaderboardHeader opens the leaderboard post.
func (t Texts) LeaderboardHeader() string {
	return fmt.Sprintf("🏆 %s leaderboard", t.title())
}
