package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/zen2281488/gayOfDay/contest"
)

// Runner is the contest state machine as seen by commands.
type Runner interface {
	Run(ctx context.Context, chatID string, force bool) (contest.Outcome, error)
	Reset(ctx context.Context, chatID string) (bool, error)
	ReplayText(ctx context.Context, v contest.Verdict) string
	Texts() contest.Texts
}

// Poster renders and posts the leaderboard.
type Poster interface {
	Post(ctx context.Context, chatID string) error
}

// TriggerStore edits the per-chat schedule.
type TriggerStore interface {
	SetDailyTrigger(ctx context.Context, chatID, hhmm string) error
	ClearDailyTrigger(ctx context.Context, chatID string) (bool, error)
	SetLeaderboardTrigger(ctx context.Context, chatID string, dayOfMonth int, hhmm string) error
	ClearLeaderboardTrigger(ctx context.Context, chatID string) (bool, error)
}

// Invocation is one parsed command from chat.
type Invocation struct {
	ChatID    string
	UserID    int64
	Moderator bool
	Name      string
	Args      []string
}

// Commands executes chat commands.
type Commands struct {
	game     Runner
	board    Poster
	triggers TriggerStore
	out      contest.Gateway
	prefix   string
	log      *slog.Logger
}

// NewCommands wires the command surface. prefix defaults to "!".
func NewCommands(game Runner, board Poster, triggers TriggerStore, out contest.Gateway, prefix string) *Commands {
	if prefix == "" {
		prefix = "!"
	}
	return &Commands{
		game:     game,
		board:    board,
		triggers: triggers,
		out:      out,
		prefix:   prefix,
		log:      slog.Default().With(slog.String("component", "chat_commands")),
	}
}

// Prefix returns the command prefix.
func (c *Commands) Prefix() string { return c.prefix }

// Parse splits text into a command name and arguments. ok is false for text
// that is not a known command.
func (c *Commands) Parse(text string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, c.prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(text, c.prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	name = strings.ToLower(fields[0])
	switch name {
	case "who", "reset", "top", "settime", "settop":
		return name, fields[1:], true
	}
	return "", nil, false
}

// Handle executes one command and replies in the chat.
func (c *Commands) Handle(ctx context.Context, in Invocation) error {
	switch in.Name {
	case "who":
		return c.who(ctx, in)
	case "top":
		return c.board.Post(ctx, in.ChatID)
	}

	if !in.Moderator {
		return c.reply(ctx, in.ChatID, "Only moderators can do that.")
	}
	switch in.Name {
	case "reset":
		removed, err := c.game.Reset(ctx, in.ChatID)
		if err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		return c.reply(ctx, in.ChatID, c.game.Texts().Reset(removed))
	case "settime":
		return c.setTime(ctx, in)
	case "settop":
		return c.setTop(ctx, in)
	}
	return fmt.Errorf("unknown command %q", in.Name)
}

func (c *Commands) who(ctx context.Context, in Invocation) error {
	out, err := c.game.Run(ctx, in.ChatID, false)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if out.Kind == contest.OutcomeReplayed && out.Verdict != nil {
		return c.reply(ctx, in.ChatID, c.game.ReplayText(ctx, *out.Verdict))
	}
	return nil
}

func (c *Commands) setTime(ctx context.Context, in Invocation) error {
	usage := fmt.Sprintf("Usage: %ssettime HH:MM or %ssettime off", c.prefix, c.prefix)
	if len(in.Args) != 1 {
		return c.reply(ctx, in.ChatID, usage)
	}
	if strings.EqualFold(in.Args[0], "off") {
		removed, err := c.triggers.ClearDailyTrigger(ctx, in.ChatID)
		if err != nil {
			return fmt.Errorf("clear daily trigger: %w", err)
		}
		if !removed {
			return c.reply(ctx, in.ChatID, "No daily schedule was set.")
		}
		return c.reply(ctx, in.ChatID, "Daily schedule turned off.")
	}
	hhmm, err := contest.ParseTimeOfDay(in.Args[0])
	if err != nil {
		return c.reply(ctx, in.ChatID, usage)
	}
	if err := c.triggers.SetDailyTrigger(ctx, in.ChatID, hhmm); err != nil {
		return fmt.Errorf("set daily trigger: %w", err)
	}
	return c.reply(ctx, in.ChatID, fmt.Sprintf("⏰ The daily pick now runs at %s.", hhmm))
}

func (c *Commands) setTop(ctx context.Context, in Invocation) error {
	usage := fmt.Sprintf("Usage: %ssettop DD HH:MM or %ssettop off", c.prefix, c.prefix)
	if len(in.Args) == 1 && strings.EqualFold(in.Args[0], "off") {
		removed, err := c.triggers.ClearLeaderboardTrigger(ctx, in.ChatID)
		if err != nil {
			return fmt.Errorf("clear leaderboard trigger: %w", err)
		}
		if !removed {
			return c.reply(ctx, in.ChatID, "No monthly leaderboard was scheduled.")
		}
		return c.reply(ctx, in.ChatID, "Monthly leaderboard turned off.")
	}
	if len(in.Args) != 2 {
		return c.reply(ctx, in.ChatID, usage)
	}
	day, err := strconv.Atoi(in.Args[0])
	if err != nil || day < 1 || day > 31 {
		return c.reply(ctx, in.ChatID, usage)
	}
	hhmm, err := contest.ParseTimeOfDay(in.Args[1])
	if err != nil {
		return c.reply(ctx, in.ChatID, usage)
	}
	if err := c.triggers.SetLeaderboardTrigger(ctx, in.ChatID, day, hhmm); err != nil {
		return fmt.Errorf("set leaderboard trigger: %w", err)
	}
	return c.reply(ctx, in.ChatID,
		fmt.Sprintf("🏆 The leaderboard is posted on day %d of each month at %s (the last day in shorter months).", day, hhmm))
}

func (c *Commands) reply(ctx context.Context, chatID, text string) error {
	return c.out.Send(ctx, chatID, text)
}
