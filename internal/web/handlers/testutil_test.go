package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/carecam/internal/chat"
	"github.com/kozaktomas/carecam/internal/logger"
	"github.com/kozaktomas/carecam/internal/recognition"
)

// testNow is a Monday morning in the local zone.
var testNow = time.Date(2024, 3, 4, 9, 15, 0, 0, time.Local)

func fixedNow() time.Time { return testNow }

// fakeRecognition implements RecognitionView
type fakeRecognition struct {
	current recognition.Identity
	status  recognition.Status
	frames  *recognition.Broadcaster
}

func (f *fakeRecognition) Current() recognition.Identity    { return f.current }
func (f *fakeRecognition) Status() recognition.Status       { return f.status }
func (f *fakeRecognition) Frames() *recognition.Broadcaster { return f.frames }

// fakeReplier records the messages it was asked about
type fakeReplier struct {
	messages []string
}

func (f *fakeReplier) Reply(_ context.Context, message string) chat.Reply {
	f.messages = append(f.messages, message)
	return chat.Reply{Response: "echo: " + message, Intent: "test"}
}

func testLogger() *logger.Logger { return logger.Nop() }

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%v'", expectedMessage, result["error"])
	}
}
