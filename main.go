// Command gayOfDay runs the daily chat contest service.
// It:
//   - Loads configuration (defaults, CONFIG_FILE, environment) and sets up structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Loads the persisted arbiter settings, sealing secrets when ENCRYPTION_KEY is set.
//   - Starts the Twitch chat bot (ingestion and commands), the trigger scheduler
//     and the activity retention job.
//   - Exposes the HTTP surface with /healthz, /readyz, /metrics and admin endpoints.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/joho/godotenv"

	"github.com/zen2281488/gayOfDay/arbiter"
	"github.com/zen2281488/gayOfDay/chat"
	"github.com/zen2281488/gayOfDay/config"
	"github.com/zen2281488/gayOfDay/contest"
	"github.com/zen2281488/gayOfDay/crypto"
	"github.com/zen2281488/gayOfDay/db"
	"github.com/zen2281488/gayOfDay/llm"
	"github.com/zen2281488/gayOfDay/scheduler"
	"github.com/zen2281488/gayOfDay/server"
	"github.com/zen2281488/gayOfDay/telemetry"
	"github.com/zen2281488/gayOfDay/twitchapi"
)

func main() {
	// Local dev convenience only; production relies on real env.
	_ = godotenv.Load()

	// Logging level + format. Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))

	if err := run(); err != nil {
		slog.Error("fatal", slog.Any("err", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	clock := contest.NewClock(loc)

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("gayofday", "1.0.0")
	if err != nil {
		return err
	}
	defer shutdownTracing()
	slog.Info("tracing configured", slog.Bool("enabled", telemetry.IsTracingEnabled()))

	// Database
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.Prepare(ctx, database); err != nil {
		return err
	}
	ledger := &db.Ledger{DB: database}
	activity := &db.Activity{DB: database}

	// Settings store; the completion API key is sealed when a key is configured.
	kv := &db.KV{DB: database}
	if cfg.EncryptionKey != "" {
		sealer, err := crypto.NewAESSealer(cfg.EncryptionKey)
		if err != nil {
			return err
		}
		kv.Sealer = sealer
		slog.Info("secret encryption enabled", slog.String("component", "settings"))
	}
	settings := arbiter.NewSettings(arbiter.Config{
		Provider:    cfg.LLMProvider,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		APIKey:      cfg.LLMAPIKey,
		Temperature: float32(cfg.LLMTemperature),
		MaxTokens:   cfg.LLMMaxTokens,
	})
	if err := settings.Load(ctx, kv); err != nil {
		slog.Warn("stored arbiter settings ignored", slog.Any("err", err))
	}
	if settings.Snapshot().APIKey == "" {
		slog.Warn("no completion API key configured; every contest will use the most-active fallback")
	}

	// Chat: IRC client for sending and ingestion, Helix for display names.
	var (
		irc   *twitch.Client
		sayer chat.Sayer
		names chat.NameSource
	)
	chatErr := cfg.ValidateChatReady()
	if chatErr == nil {
		irc = twitch.NewClient(cfg.TwitchBotUsername, cfg.TwitchOAuthToken)
		sayer = irc
	} else {
		slog.Warn("chat bot disabled", slog.Any("reason", chatErr))
	}
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		names = twitchapi.NewHelixClient(ctx, cfg.TwitchClientID, cfg.TwitchClientSecret)
	} else {
		slog.Info("helix name lookups disabled (missing TWITCH_CLIENT_ID/TWITCH_CLIENT_SECRET)")
	}
	gateway, err := chat.NewGateway(sayer, names, cfg.NameCacheSize)
	if err != nil {
		return err
	}

	// Contest core
	texts := contest.Texts{Title: cfg.GameTitle, Prefix: cfg.CommandPrefix}
	arb := arbiter.New(llm.NewClient(nil), settings,
		arbiter.WithTimeout(cfg.LLMTimeout),
		arbiter.WithTitle(cfg.GameTitle),
	)
	game := contest.NewGame(ledger,
		contest.NewCollector(activity, clock, cfg.EvidenceCap, cfg.EvidenceSoftMin),
		arb, gateway, clock,
		contest.WithTexts(texts),
		contest.WithMinEvidence(cfg.EvidenceMin),
		contest.WithProgress(cfg.ProgressNotice),
	)
	board := contest.NewLeaderboard(ledger, gateway, clock, texts, cfg.NameChunkSize)

	supervisor := scheduler.NewSupervisor(ctx, int64(cfg.MaxConcurrentTasks))
	sched := scheduler.New(ledger, game, board, supervisor, clock, scheduler.WithInterval(cfg.TickInterval))

	var bot *chat.Bot
	if irc != nil {
		commands := chat.NewCommands(game, board, ledger, gateway, cfg.CommandPrefix)
		bot = chat.NewBot(irc, cfg.TwitchChannels, activity, gateway, commands, supervisor)
		slog.Info("starting chat bot", slog.Int("channel_count", len(cfg.TwitchChannels)), slog.Any("channels", cfg.TwitchChannels))
		go bot.Run(ctx)
	}

	go sched.Run(ctx)
	go db.StartRetentionJob(ctx, activity, cfg.RetentionDays, cfg.RetentionInterval)

	deps := server.Deps{
		DB:       database,
		Game:     game,
		Board:    board,
		Triggers: ledger,
		Settings: settings,
		Store:    kv,
	}
	if bot != nil {
		deps.Chat = bot
	}
	sec := server.Security{
		AdminUsername:   cfg.AdminUsername,
		AdminPassword:   cfg.AdminPassword,
		AdminToken:      cfg.AdminToken,
		RateLimitPerIP:  cfg.RateLimitRequestsPerIP,
		RateLimitWindow: cfg.RateLimitWindow,
		CORSPermissive:  cfg.CORSPermissive,
		CORSOrigins:     cfg.CORSAllowedOrigins,
	}
	httpDone := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		httpDone <- server.Start(ctx, cfg.HTTPAddr, server.NewMux(ctx, deps, sec))
	}()

	select {
	case <-ctx.Done():
	case err := <-httpDone:
		if err != nil {
			stop()
			return err
		}
	}
	slog.Info("shutting down")
	if err := supervisor.Shutdown(15 * time.Second); err != nil {
		slog.Warn("tasks still running at shutdown", slog.Any("err", err))
	}
	return nil
}
