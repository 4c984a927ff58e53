package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zen2281488/gayOfDay/crypto"
)

// KV is the settings key/value store. Secrets are sealed with Sealer when one
// is configured and stored in plaintext otherwise.
type KV struct {
	DB     *sql.DB
	Sealer crypto.Sealer
}

// Get returns the raw value stored under key.
func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var v sql.NullString
	err := k.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return v.String, true, nil
}

// Set upserts key.
func (k *KV) Set(ctx context.Context, key, value string) error {
	_, err := k.DB.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES($1, $2, NOW())
		 ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, value)
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// GetSecret returns the opened secret stored under key. Plaintext values
// written before a key was configured are returned as they are.
func (k *KV) GetSecret(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := k.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	if !crypto.IsSealed(v) {
		return v, true, nil
	}
	if k.Sealer == nil {
		return "", false, fmt.Errorf("kv %s is sealed but no encryption key is configured", key)
	}
	plain, err := k.Sealer.Open(v, key)
	if err != nil {
		return "", false, fmt.Errorf("kv open %s: %w", key, err)
	}
	return plain, true, nil
}

// SetSecret seals value under key when a sealer is configured.
func (k *KV) SetSecret(ctx context.Context, key, value string) error {
	if k.Sealer == nil || value == "" {
		if value != "" {
			slog.Warn("storing secret in plaintext; set ENCRYPTION_KEY to seal it",
				slog.String("key", key), slog.String("component", "db_kv"))
		}
		return k.Set(ctx, key, value)
	}
	sealed, err := k.Sealer.Seal(value, key)
	if err != nil {
		return fmt.Errorf("kv seal %s: %w", key, err)
	}
	return k.Set(ctx, key, sealed)
}
