package web

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/carecam/internal/chat"
	"github.com/kozaktomas/carecam/internal/config"
	"github.com/kozaktomas/carecam/internal/database"
	"github.com/kozaktomas/carecam/internal/database/mock"
	"github.com/kozaktomas/carecam/internal/enrollment"
	"github.com/kozaktomas/carecam/internal/facematch"
	"github.com/kozaktomas/carecam/internal/identity"
	"github.com/kozaktomas/carecam/internal/logger"
	"github.com/kozaktomas/carecam/internal/profile"
	"github.com/kozaktomas/carecam/internal/recognition"
	"github.com/kozaktomas/carecam/internal/reminder"
)

var serverNow = time.Date(2024, 3, 4, 9, 15, 0, 0, time.Local)

type staticRecognition struct {
	frames *recognition.Broadcaster
}

func (s *staticRecognition) Current() recognition.Identity {
	return recognition.Identity{Name: "Alice", UpdatedAt: serverNow}
}
func (s *staticRecognition) Status() recognition.Status       { return recognition.Status{Running: true} }
func (s *staticRecognition) Frames() *recognition.Broadcaster { return s.frames }
func (s *staticRecognition) LatestFrame() (image.Image, bool) { return nil, false }

type noFaces struct{}

func (noFaces) Detect(context.Context, []byte) ([]facematch.Face, error) { return nil, nil }

type parrot struct{}

func (parrot) Reply(_ context.Context, msg string) chat.Reply {
	return chat.Reply{Response: msg, Intent: "parrot"}
}

func newTestServer(t *testing.T) (*Server, *mock.MockReminderStore) {
	t.Helper()
	dir := t.TempDir()
	store := mock.NewMockReminderStore()
	people := mock.NewMockPeopleStore()
	rec := &staticRecognition{frames: recognition.NewBroadcaster()}
	ids := identity.NewStore(identity.NewFilePersister(filepath.Join(dir, "enc.gob")), nil)
	now := func() time.Time { return serverNow }

	cfg := &config.Config{Web: config.WebConfig{Host: "127.0.0.1", Port: 0}}
	s := NewServer(cfg, Deps{
		Recognition: rec,
		Reminders:   store,
		Engine:      reminder.NewEngine(store, reminder.Options{Now: now}, nil),
		People:      people,
		Profiles:    profile.Chain{profile.NewDBSource(people)},
		Capturer:    enrollment.NewCapturer(rec, filepath.Join(dir, "captures")),
		Pipeline:    enrollment.NewPipeline(noFaces{}, ids, enrollment.Options{Now: now}, nil),
		Assistant:   parrot{},
		Now:         now,
	}, logger.Nop())
	return s, store
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestServer_Routes(t *testing.T) {
	s, store := newTestServer(t)
	if _, err := store.Create(context.Background(), &database.Reminder{Title: "Pills", DueTime: serverNow.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/status", "", http.StatusOK},
		{http.MethodGet, "/api/v1/identity", "", http.StatusOK},
		{http.MethodGet, "/api/v1/reminders", "", http.StatusOK},
		{http.MethodGet, "/api/v1/reminders/today", "", http.StatusOK},
		{http.MethodGet, "/api/v1/reminders/tomorrow", "", http.StatusOK},
		{http.MethodGet, "/api/v1/reminders/upcoming", "", http.StatusOK},
		{http.MethodGet, "/api/v1/reminders/1", "", http.StatusOK},
		{http.MethodPost, "/api/v1/reminders/1/complete", "", http.StatusOK},
		{http.MethodDelete, "/api/v1/reminders/1", "", http.StatusNoContent},
		{http.MethodPost, "/api/v1/reminders", `{"title":"Walk","due_time":"2024-03-04T17:00"}`, http.StatusCreated},
		{http.MethodPost, "/api/v1/details", `{"name":"nobody"}`, http.StatusNotFound},
		{http.MethodGet, "/api/v1/people", "", http.StatusOK},
		{http.MethodPost, "/api/v1/capture", "", http.StatusServiceUnavailable},
		{http.MethodPost, "/api/v1/chat", `{"message":"hello"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/time", "", http.StatusOK},
		{http.MethodGet, "/api/v1/nope", "", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := do(t, s, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Errorf("expected %d, got %d\nBody: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestServer_ServesUI(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"/", "/some/client/route"} {
		rec := do(t, s, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
			t.Errorf("%s: expected html, got %q", path, ct)
		}
		if !strings.Contains(rec.Body.String(), "/video_feed") {
			t.Errorf("%s: expected the kiosk page", path)
		}
		if rec.Header().Get("X-Frame-Options") != "DENY" {
			t.Errorf("%s: expected security headers", path)
		}
	}

	rec := do(t, s, http.MethodGet, "/app.js", "")
	if ct := rec.Header().Get("Content-Type"); ct != "application/javascript; charset=utf-8" {
		t.Errorf("expected javascript content type, got %q", ct)
	}
}

func TestServer_CORS(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("expected localhost to be allowed, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestServer_DetectedName(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/v1/identity", "")

	var result map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if result["name"] != "Alice" {
		t.Errorf("expected Alice, got %v", result["name"])
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	s, _ := newTestServer(t)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("expected clean stop, got %v", err)
	}
}
