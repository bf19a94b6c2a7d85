package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"platinmods-tracker/pkg/tracker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type checkerFunc func(ctx context.Context) (*tracker.Summary, error)

func (f checkerFunc) RunCycle(ctx context.Context) (*tracker.Summary, error) {
	return f(ctx)
}

func TestHandleRoot(t *testing.T) {
	s := New(nil, testLogger())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Alive") {
		t.Errorf("body = %q, want liveness text", body)
	}
}

func TestHandleHealth(t *testing.T) {
	s := New(nil, testLogger())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "healthy") {
		t.Errorf("body = %q, want healthy status", body)
	}
}

func TestHandleCheckReturnsSummary(t *testing.T) {
	now := time.Now()
	checker := checkerFunc(func(context.Context) (*tracker.Summary, error) {
		return &tracker.Summary{
			StartedAt:  now,
			FinishedAt: now.Add(time.Second),
			Results: []tracker.TargetResult{
				{
					Target:   tracker.Target{Kind: tracker.KindUser, Name: "Neon"},
					Snapshot: &tracker.Snapshot{Kind: tracker.KindUser, Online: true},
				},
			},
		}, nil
	})
	s := New(checker, testLogger())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/checkz", "", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Neon") || !strings.Contains(string(body), "ONLINE") {
		t.Errorf("body missing summary content:\n%s", body)
	}
}

func TestHandleCheckBusy(t *testing.T) {
	checker := checkerFunc(func(context.Context) (*tracker.Summary, error) {
		return nil, tracker.ErrCycleBusy
	})
	s := New(checker, testLogger())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/checkz", "", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "busy") {
		t.Errorf("body = %q, want busy status", body)
	}
}

func TestHandleCheckRejectsGet(t *testing.T) {
	s := New(nil, testLogger())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/checkz")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}
