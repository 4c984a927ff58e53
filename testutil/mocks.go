package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// MockTwitchServer mocks the Helix and id.twitch.tv endpoints used by the bot.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	requests map[string]int
}

// NewMockTwitchServer creates a new mock Twitch API server.
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
		requests: make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests[r.URL.Path]++
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Requests returns how many times path was called.
func (m *MockTwitchServer) Requests(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[path]
}

// Handle registers a handler for path.
func (m *MockTwitchServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

// MockUser is one Helix user record.
type MockUser struct {
	ID, Login, DisplayName string
}

// MockUsersResponse serves /helix/users, answering only the requested ids
// that are known.
func (m *MockTwitchServer) MockUsersResponse(users ...MockUser) {
	byID := map[string]MockUser{}
	for _, u := range users {
		byID[u.ID] = u
	}
	m.Handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		data := []map[string]string{}
		for _, id := range r.URL.Query()["id"] {
			if u, ok := byID[id]; ok {
				data = append(data, map[string]string{"id": u.ID, "login": u.Login, "display_name": u.DisplayName})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data}) //nolint:errcheck // test mock response
	})
}

// MockOAuthTokenResponse serves the client-credentials token endpoint.
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	})
}

// MockCompletionServer mocks an OpenAI-compatible /chat/completions endpoint.
type MockCompletionServer struct {
	*httptest.Server
	calls   atomic.Int32
	mu      sync.Mutex
	content string
	status  int
}

// NewMockCompletionServer returns a server answering every completion with
// content until changed with Reply or Fail.
func NewMockCompletionServer(t *testing.T, content string) *MockCompletionServer {
	t.Helper()
	m := &MockCompletionServer{content: content, status: http.StatusOK}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		m.calls.Add(1)
		m.mu.Lock()
		content, status := m.content, m.status
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
				"error": map[string]any{"message": "mock failure", "type": "server_error"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"id":      "cmpl-test",
			"object":  "chat.completion",
			"model":   "mock",
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"}},
		})
	}))
	t.Cleanup(m.Close)
	return m
}

// Reply sets the content of subsequent completions.
func (m *MockCompletionServer) Reply(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content, m.status = content, http.StatusOK
}

// Fail makes subsequent completions answer with status.
func (m *MockCompletionServer) Fail(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

// Calls returns the number of completion requests served.
func (m *MockCompletionServer) Calls() int { return int(m.calls.Load()) }
