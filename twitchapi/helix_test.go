package twitchapi

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/zen2281488/gayOfDay/testutil"
)

func newMockedClient(t *testing.T) (*HelixClient, *testutil.MockTwitchServer) {
	t.Helper()
	srv := testutil.NewMockTwitchServer(t)
	srv.MockOAuthTokenResponse("app-token", 3600)
	hc := NewHelixClient(context.Background(), "cid", "secret",
		WithBaseURL(srv.URL+"/helix"), WithTokenURL(srv.URL+"/oauth2/token"))
	hc.Backoff = time.Millisecond
	return hc, srv
}

func TestHelixClient_GetUsers(t *testing.T) {
	hc, srv := newMockedClient(t)
	srv.MockUsersResponse(
		testutil.MockUser{ID: "1", Login: "alice", DisplayName: "Alice"},
		testutil.MockUser{ID: "2", Login: "bob"},
	)

	got, err := hc.GetUsers(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("GetUsers: %v", err)
	}
	if got[1] != "Alice" || got[2] != "bob" {
		t.Errorf("names = %v", got)
	}
	if _, ok := got[3]; ok {
		t.Error("unknown id resolved")
	}

	// the token is fetched once and reused
	_, _ = hc.GetUsers(context.Background(), []int64{1})
	if n := srv.Requests("/oauth2/token"); n != 1 {
		t.Errorf("token requests = %d, want 1", n)
	}
}

func TestHelixClient_SendsHeaders(t *testing.T) {
	hc, srv := newMockedClient(t)
	var auth, clientID string
	var ids []string
	srv.Handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		auth, clientID = r.Header.Get("Authorization"), r.Header.Get("Client-Id")
		ids = r.URL.Query()["id"]
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	if _, err := hc.GetUsers(context.Background(), []int64{7, 8}); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer app-token" || clientID != "cid" {
		t.Errorf("headers auth=%q client=%q", auth, clientID)
	}
	if strings.Join(ids, ",") != "7,8" {
		t.Errorf("ids = %v", ids)
	}
}

func TestHelixClient_Limits(t *testing.T) {
	hc, srv := newMockedClient(t)
	got, err := hc.GetUsers(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("empty GetUsers = %v, %v", got, err)
	}
	ids := make([]int64, MaxUsersPerRequest+1)
	if _, err := hc.GetUsers(context.Background(), ids); err == nil {
		t.Error("101 ids accepted")
	}
	if n := srv.Requests("/helix/users"); n != 0 {
		t.Errorf("helix called %d times", n)
	}
}

func TestHelixClient_RetriesThenFails(t *testing.T) {
	hc, srv := newMockedClient(t)
	srv.Handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := hc.GetUsers(context.Background(), []int64{1})
	se, ok := err.(*StatusError)
	if !ok || se.Code != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want 429 StatusError", err)
	}
	if n := srv.Requests("/helix/users"); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestHelixClient_RecoversAfter5xx(t *testing.T) {
	hc, srv := newMockedClient(t)
	calls := 0
	srv.Handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"5","login":"eve","display_name":"Eve"}]}`))
	})
	got, err := hc.GetUsers(context.Background(), []int64{5})
	if err != nil || got[5] != "Eve" {
		t.Fatalf("GetUsers = %v, %v", got, err)
	}
}

func TestHelixClient_NotRetried4xx(t *testing.T) {
	hc, srv := newMockedClient(t)
	srv.Handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	if _, err := hc.GetUsers(context.Background(), []int64{1}); err == nil {
		t.Fatal("expected error")
	}
	if n := srv.Requests("/helix/users"); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}
