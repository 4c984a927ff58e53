// Package twitchapi is a minimal Twitch Helix client used to resolve user ids
// to display names with an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultBaseURL is the Helix API root.
	DefaultBaseURL = "https://api.twitch.tv/helix"
	// DefaultTokenURL issues client-credentials app tokens.
	DefaultTokenURL = "https://id.twitch.tv/oauth2/token"
	// MaxUsersPerRequest is the Helix limit on id parameters per call.
	MaxUsersPerRequest = 100
)

// HelixClient calls Helix with an app access token. HTTPClient must attach
// the bearer token; NewHelixClient arranges that.
type HelixClient struct {
	ClientID   string
	BaseURL    string
	HTTPClient *http.Client
	// Retries is the number of extra attempts on 429 and 5xx responses.
	Retries int
	Backoff time.Duration
}

// Option customizes NewHelixClient.
type Option func(*options)

type options struct {
	baseURL  string
	tokenURL string
}

// WithBaseURL overrides the Helix root.
func WithBaseURL(u string) Option { return func(o *options) { o.baseURL = u } }

// WithTokenURL overrides the token endpoint.
func WithTokenURL(u string) Option { return func(o *options) { o.tokenURL = u } }

// NewHelixClient returns a client whose HTTP transport fetches and refreshes
// an app token with the client-credentials grant. ctx scopes token fetches.
func NewHelixClient(ctx context.Context, clientID, clientSecret string, opts ...Option) *HelixClient {
	o := options{baseURL: DefaultBaseURL, tokenURL: DefaultTokenURL}
	for _, fn := range opts {
		fn(&o)
	}
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     o.tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	hc := cc.Client(ctx)
	hc.Timeout = 10 * time.Second
	return &HelixClient{
		ClientID:   clientID,
		BaseURL:    o.baseURL,
		HTTPClient: hc,
		Retries:    2,
		Backoff:    500 * time.Millisecond,
	}
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

// StatusError is a non-200 Helix response.
type StatusError struct{ Code int }

func (e *StatusError) Error() string { return fmt.Sprintf("helix status %d", e.Code) }

// GetUsers resolves up to MaxUsersPerRequest user ids to display names,
// falling back to the login when the display name is empty. Unknown ids are
// absent from the result.
func (hc *HelixClient) GetUsers(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	if len(ids) > MaxUsersPerRequest {
		return nil, fmt.Errorf("too many ids: %d > %d", len(ids), MaxUsersPerRequest)
	}
	base := hc.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	var resp *http.Response
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/users", nil)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		for _, id := range ids {
			q.Add("id", strconv.FormatInt(id, 10))
		}
		req.URL.RawQuery = q.Encode()
		req.Header.Set("Client-Id", hc.ClientID)

		resp, err = hc.http().Do(req)
		if err != nil {
			return nil, err
		}
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if !retryable || attempt >= hc.Retries {
			break
		}
		_ = resp.Body.Close()
		slog.Debug("helix retry", slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt+1), slog.String("component", "helix"))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(hc.Backoff * time.Duration(attempt+1)):
		}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var body struct {
		Data []struct {
			ID          string `json:"id"`
			Login       string `json:"login"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	for _, u := range body.Data {
		id, err := strconv.ParseInt(u.ID, 10, 64)
		if err != nil {
			continue
		}
		name := u.DisplayName
		if name == "" {
			name = u.Login
		}
		if name != "" {
			out[id] = name
		}
	}
	return out, nil
}
