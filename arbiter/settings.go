package arbiter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/zen2281488/gayOfDay/llm"
)

// Config is one consistent view of the completion settings.
type Config struct {
	Provider    string  `json:"provider"`
	BaseURL     string  `json:"base_url,omitempty"`
	Model       string  `json:"model"`
	APIKey      string  `json:"-"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Validate checks the fields an operator can change.
func (c Config) Validate() error {
	if !llm.KnownProvider(c.Provider) {
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if strings.ToLower(c.Provider) == llm.ProviderCustom && c.BaseURL == "" {
		return fmt.Errorf("provider custom requires base_url")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range [0,2]", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	return nil
}

// Settings is the runtime-mutable arbitration configuration. One instance is
// shared by the arbiter and the admin surface; every arbitration works on a
// Snapshot taken at call time.
type Settings struct {
	mu  sync.RWMutex
	cfg Config
}

// NewSettings returns settings initialized to c.
func NewSettings(c Config) *Settings { return &Settings{cfg: c} }

// Snapshot returns a copy of the current configuration.
func (s *Settings) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update applies fn to a copy and stores it if it validates.
func (s *Settings) Update(fn func(*Config)) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg
	fn(&next)
	next.Provider = strings.ToLower(strings.TrimSpace(next.Provider))
	if err := next.Validate(); err != nil {
		return s.cfg, err
	}
	s.cfg = next
	return next, nil
}

// Store persists settings. Secret values are sealed by the implementation.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	GetSecret(ctx context.Context, key string) (string, bool, error)
	SetSecret(ctx context.Context, key, value string) error
}

const (
	keyProvider    = "arbiter:provider"
	keyBaseURL     = "arbiter:base_url"
	keyModel       = "arbiter:model"
	keyTemperature = "arbiter:temperature"
	keyMaxTokens   = "arbiter:max_tokens"
	keyAPIKey      = "arbiter:api_key"
)

// SecretKeys lists the store keys written with SetSecret.
func SecretKeys() []string { return []string{keyAPIKey} }

// Load overlays persisted values onto the current settings. Missing keys
// keep their current value; an invalid stored combination is rejected.
func (s *Settings) Load(ctx context.Context, store Store) error {
	vals := map[string]string{}
	for _, k := range []string{keyProvider, keyBaseURL, keyModel, keyTemperature, keyMaxTokens} {
		v, ok, err := store.Get(ctx, k)
		if err != nil {
			return fmt.Errorf("load %s: %w", k, err)
		}
		if ok {
			vals[k] = v
		}
	}
	apiKey, hasKey, err := store.GetSecret(ctx, keyAPIKey)
	if err != nil {
		return fmt.Errorf("load %s: %w", keyAPIKey, err)
	}

	var temp *float32
	if v, ok := vals[keyTemperature]; ok {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("stored temperature %q: %w", v, err)
		}
		t := float32(f)
		temp = &t
	}
	maxTokens := -1
	if v, ok := vals[keyMaxTokens]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("stored max_tokens %q: %w", v, err)
		}
		maxTokens = n
	}

	_, err = s.Update(func(c *Config) {
		if v, ok := vals[keyProvider]; ok {
			c.Provider = v
		}
		if v, ok := vals[keyBaseURL]; ok {
			c.BaseURL = v
		}
		if v, ok := vals[keyModel]; ok {
			c.Model = v
		}
		if temp != nil {
			c.Temperature = *temp
		}
		if maxTokens >= 0 {
			c.MaxTokens = maxTokens
		}
		if hasKey {
			c.APIKey = apiKey
		}
	})
	return err
}

// Save persists the current settings. An empty API key is stored too, so a
// cleared key stays cleared across restarts.
func (s *Settings) Save(ctx context.Context, store Store) error {
	c := s.Snapshot()
	pairs := [][2]string{
		{keyProvider, c.Provider},
		{keyBaseURL, c.BaseURL},
		{keyModel, c.Model},
		{keyTemperature, strconv.FormatFloat(float64(c.Temperature), 'f', -1, 32)},
		{keyMaxTokens, strconv.Itoa(c.MaxTokens)},
	}
	for _, p := range pairs {
		if err := store.Set(ctx, p[0], p[1]); err != nil {
			return fmt.Errorf("save %s: %w", p[0], err)
		}
	}
	if err := store.SetSecret(ctx, keyAPIKey, c.APIKey); err != nil {
		return fmt.Errorf("save %s: %w", keyAPIKey, err)
	}
	return nil
}
