package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/alexhritac/jellyfin-collection/internal/history"
	"github.com/alexhritac/jellyfin-collection/internal/report"
	"github.com/alexhritac/jellyfin-collection/internal/runner"
)

type fakeTrigger struct {
	mu      sync.Mutex
	running bool
	runs    []runner.Options
}

func (f *fakeTrigger) Run(ctx context.Context, opts runner.Options) (*report.RunReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, opts)
	return report.NewRunReport(opts.Trigger, opts.DryRun), nil
}

func (f *fakeTrigger) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

type fakeStore struct {
	entries []history.Entry
}

func (f *fakeStore) List(ctx context.Context, limit int) ([]history.Entry, error) {
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*history.Entry, error) {
	for i := range f.entries {
		if f.entries[i].ID == id {
			return &f.entries[i], nil
		}
	}
	return nil, history.ErrNotFound
}

func (f *fakeStore) Last(ctx context.Context) (*history.Entry, error) {
	if len(f.entries) == 0 {
		return nil, nil
	}
	return &f.entries[0], nil
}

func testServer(trigger *fakeTrigger, store RunStore) *Server {
	return NewServer(trigger, store, nil, "test", zerolog.Nop())
}

func TestHealthCheck(t *testing.T) {
	s := testServer(&fakeTrigger{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetStatusIncludesLastRun(t *testing.T) {
	store := &fakeStore{entries: []history.Entry{{ID: "abc12345", Trigger: "manual", Success: true}}}
	s := testServer(&fakeTrigger{}, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["running"] != false {
		t.Errorf("running = %v", body["running"])
	}
	lastRun, ok := body["last_run"].(map[string]any)
	if !ok || lastRun["id"] != "abc12345" {
		t.Errorf("last_run = %v", body["last_run"])
	}
}

func TestListRunsWithoutStore(t *testing.T) {
	s := testServer(&fakeTrigger{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q, want empty array", rec.Body.String())
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := testServer(&fakeTrigger{}, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestTriggerRun(t *testing.T) {
	trigger := &fakeTrigger{}
	s := testServer(trigger, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs",
		strings.NewReader(`{"library":"Films","dry_run":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	// The run is launched asynchronously.
	deadline := time.Now().Add(time.Second)
	for {
		trigger.mu.Lock()
		n := len(trigger.runs)
		trigger.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	trigger.mu.Lock()
	defer trigger.mu.Unlock()
	if len(trigger.runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(trigger.runs))
	}
	opts := trigger.runs[0]
	if opts.Library != "Films" || !opts.DryRun || opts.Trigger != "manual" {
		t.Errorf("opts = %+v", opts)
	}
}

func TestTriggerRunConflict(t *testing.T) {
	trigger := &fakeTrigger{running: true}
	s := testServer(trigger, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}
