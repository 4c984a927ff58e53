package chat

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/zen2281488/gayOfDay/contest"
	"github.com/zen2281488/gayOfDay/telemetry"
)

// IRC is the part of *twitch.Client the bot uses.
type IRC interface {
	Sayer
	OnPrivateMessage(func(twitch.PrivateMessage))
	OnConnect(func())
	Join(channels ...string)
	Connect() error
	Disconnect() error
}

// Recorder persists ingested chat messages.
type Recorder interface {
	Record(ctx context.Context, m contest.Message) error
}

// Dispatcher runs a task off the IRC read loop.
type Dispatcher interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context) error)
}

// Bot reads Twitch chat: it records messages and dispatches commands.
type Bot struct {
	irc       IRC
	channels  []string
	recorder  Recorder
	gateway   *Gateway
	commands  *Commands
	dispatch  Dispatcher
	connected atomic.Bool
	log       *slog.Logger

	// ctx is the Run context, used by message callbacks.
	ctx context.Context
}

// NewBot wires a bot over irc for channels.
func NewBot(irc IRC, channels []string, recorder Recorder, gateway *Gateway, commands *Commands, dispatch Dispatcher) *Bot {
	norm := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#")); ch != "" {
			norm = append(norm, ch)
		}
	}
	return &Bot{
		irc:      irc,
		channels: norm,
		recorder: recorder,
		gateway:  gateway,
		commands: commands,
		dispatch: dispatch,
		log:      slog.Default().With(slog.String("component", "chat_bot")),
		ctx:      context.Background(),
	}
}

// Connected reports whether the IRC connection is up.
func (b *Bot) Connected() bool { return b.connected.Load() }

// Run connects and blocks until ctx is cancelled, reconnecting with backoff
// when the connection drops.
func (b *Bot) Run(ctx context.Context) {
	if len(b.channels) == 0 {
		b.log.Info("no channels configured; chat bot idle")
		<-ctx.Done()
		return
	}
	b.ctx = ctx
	b.irc.OnPrivateMessage(b.handle)
	b.irc.OnConnect(func() {
		b.connected.Store(true)
		b.log.Info("connected to twitch chat", slog.Any("channels", b.channels))
	})
	b.irc.Join(b.channels...)

	go func() {
		<-ctx.Done()
		if err := b.irc.Disconnect(); err != nil {
			b.log.Debug("disconnect", slog.Any("err", err))
		}
	}()

	backoff := time.Second
	for {
		err := b.irc.Connect()
		b.connected.Store(false)
		if ctx.Err() != nil {
			b.log.Info("chat bot stopped")
			return
		}
		b.log.Warn("twitch chat connection lost", slog.Any("err", err), slog.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, time.Minute)
	}
}

// handle is the IRC message callback.
func (b *Bot) handle(msg twitch.PrivateMessage) {
	ctx := b.ctx
	authorID, err := strconv.ParseInt(msg.User.ID, 10, 64)
	if err != nil || authorID == 0 {
		return
	}
	chatID := strings.ToLower(msg.Channel)
	name := msg.User.DisplayName
	if name == "" {
		name = msg.User.Name
	}
	if b.gateway != nil {
		b.gateway.Remember(authorID, name)
	}

	if b.commands != nil {
		if cmd, args, ok := b.commands.Parse(msg.Message); ok {
			in := Invocation{
				ChatID:    chatID,
				UserID:    authorID,
				Moderator: isModerator(msg.User.Badges),
				Name:      cmd,
				Args:      args,
			}
			b.dispatch.Go(ctx, "command:"+cmd, func(ctx context.Context) error {
				return b.commands.Handle(ctx, in)
			})
			return
		}
		if strings.HasPrefix(strings.TrimSpace(msg.Message), b.commands.Prefix()) {
			return
		}
	}

	at := msg.Time
	if at.IsZero() {
		at = time.Now()
	}
	m := contest.Message{ChatID: chatID, AuthorID: authorID, DisplayName: name, Text: msg.Message, OccurredAt: at}
	if err := b.recorder.Record(ctx, m); err != nil {
		b.log.Error("failed to record chat message", slog.String("chat", chatID), slog.Any("err", err))
		return
	}
	telemetry.ObserveMessageRecorded()
}

func isModerator(badges map[string]int) bool {
	return badges["broadcaster"] > 0 || badges["moderator"] > 0
}
