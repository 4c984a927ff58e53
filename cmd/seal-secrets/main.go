// Command seal-secrets encrypts settings secrets that were stored in
// plaintext before ENCRYPTION_KEY was configured. Values already sealed are
// checked against the key and left alone, so the tool is safe to re-run.
//
// Usage:
//
//	seal-secrets [--dry-run]
//
// Environment Variables:
//
//	DB_DSN: Database connection string (required)
//	ENCRYPTION_KEY: Base64-encoded 32-byte key, as used by the service (required)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/zen2281488/gayOfDay/arbiter"
	"github.com/zen2281488/gayOfDay/crypto"
	"github.com/zen2281488/gayOfDay/db"
)

// rawStore reads and writes kv values without sealing (*db.KV without a Sealer).
type rawStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type report struct {
	Sealed  int
	Already int
	Missing int
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be sealed without making changes")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		slog.Error("DB_DSN environment variable is required")
		os.Exit(1)
	}
	sealer, err := crypto.NewAESSealer(os.Getenv("ENCRYPTION_KEY"))
	if err != nil {
		slog.Error("failed to initialize sealer", slog.Any("error", err))
		os.Exit(1)
	}

	database, err := db.Connect(dsn)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.PingContext(ctx); err != nil {
		slog.Error("failed to ping database", slog.Any("error", err))
		os.Exit(1)
	}

	rep, err := sealSecrets(ctx, &db.KV{DB: database}, sealer, arbiter.SecretKeys(), *dryRun)
	if err != nil {
		slog.Error("sealing failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("done", slog.Bool("dry_run", *dryRun),
		slog.Int("sealed", rep.Sealed), slog.Int("already_sealed", rep.Already), slog.Int("missing", rep.Missing))
}

// sealSecrets seals every plaintext value under keys and verifies each write
// by opening it again.
func sealSecrets(ctx context.Context, store rawStore, sealer crypto.Sealer, keys []string, dryRun bool) (report, error) {
	var rep report
	for _, key := range keys {
		raw, ok, err := store.Get(ctx, key)
		if err != nil {
			return rep, err
		}
		if !ok || raw == "" {
			rep.Missing++
			continue
		}
		if crypto.IsSealed(raw) {
			if _, err := sealer.Open(raw, key); err != nil {
				return rep, fmt.Errorf("%s is sealed with a different key: %w", key, err)
			}
			rep.Already++
			continue
		}
		if dryRun {
			slog.Info("would seal", slog.String("key", key))
			rep.Sealed++
			continue
		}
		sealed, err := sealer.Seal(raw, key)
		if err != nil {
			return rep, fmt.Errorf("seal %s: %w", key, err)
		}
		if err := store.Set(ctx, key, sealed); err != nil {
			return rep, err
		}
		back, _, err := store.Get(ctx, key)
		if err != nil {
			return rep, err
		}
		if plain, err := sealer.Open(back, key); err != nil || plain != raw {
			return rep, fmt.Errorf("verify %s: sealed value does not round-trip", key)
		}
		slog.Info("sealed", slog.String("key", key))
		rep.Sealed++
	}
	return rep, nil
}
