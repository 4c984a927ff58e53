package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProbe(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer ok.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
	}))
	defer down.Close()

	ctx := context.Background()
	if code := probe(ctx, ok.URL, time.Second); code != 0 {
		t.Errorf("healthy probe = %d", code)
	}
	if code := probe(ctx, down.URL, time.Second); code != 1 {
		t.Errorf("unhealthy probe = %d", code)
	}
	if code := probe(ctx, "http://127.0.0.1:1/healthz", 200*time.Millisecond); code != 1 {
		t.Errorf("unreachable probe = %d", code)
	}
}
