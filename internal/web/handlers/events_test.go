package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kozaktomas/carecam/internal/database"
	"github.com/kozaktomas/carecam/internal/recognition"
)

func TestHub_PublishDoesNotBlock(t *testing.T) {
	hub := NewHub(nil, testLogger())
	ch := hub.AddListener()
	defer hub.RemoveListener(ch)

	for range cap(ch) + 10 {
		hub.Publish(Event{Type: EventIdentity})
	}
	if len(ch) != cap(ch) {
		t.Errorf("expected full buffer of %d, got %d", cap(ch), len(ch))
	}
}

func TestHub_RemoveListenerClosesChannel(t *testing.T) {
	hub := NewHub(nil, testLogger())
	ch := hub.AddListener()
	if hub.Listeners() != 1 {
		t.Fatalf("expected 1 listener, got %d", hub.Listeners())
	}

	hub.RemoveListener(ch)

	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
	if hub.Listeners() != 0 {
		t.Errorf("expected 0 listeners, got %d", hub.Listeners())
	}
}

func TestHub_IdentityAndReminderEvents(t *testing.T) {
	hub := NewHub(nil, testLogger())
	ch := hub.AddListener()
	defer hub.RemoveListener(ch)

	hub.IdentityChanged(recognition.Identity{Name: "unknown"}, recognition.Identity{Name: "Alice", UpdatedAt: testNow})
	hub.RemindersDue(context.Background(), []database.Reminder{{ID: 7, Title: "Pills", DueTime: testNow}})

	ev := <-ch
	if ev.Type != EventIdentity {
		t.Fatalf("expected identity event, got %s", ev.Type)
	}
	data := ev.Data.(map[string]any)
	if data["name"] != "Alice" || data["previous"] != "unknown" || data["known"] != true {
		t.Errorf("unexpected identity payload %v", data)
	}
	if !ev.Time.Equal(testNow) {
		t.Errorf("expected event time from the identity, got %v", ev.Time)
	}

	ev = <-ch
	if ev.Type != EventReminders {
		t.Fatalf("expected reminders event, got %s", ev.Type)
	}
	due := ev.Data.([]reminderDTO)
	if len(due) != 1 || due[0].ID != 7 {
		t.Errorf("unexpected reminders payload %+v", due)
	}
}

func TestHub_ServeWS(t *testing.T) {
	hub := NewHub(nil, testLogger())
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.CloseNow()

	// The subscription is registered after the handshake completes.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Listeners() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Listeners() != 1 {
		t.Fatalf("expected 1 listener, got %d", hub.Listeners())
	}

	hub.IdentityChanged(recognition.Identity{Name: "unknown"}, recognition.Identity{Name: "Bob", UpdatedAt: testNow})

	var ev struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if ev.Type != EventIdentity || ev.Data["name"] != "Bob" {
		t.Errorf("unexpected event %+v", ev)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	deadline = time.Now().Add(2 * time.Second)
	for hub.Listeners() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Listeners() != 0 {
		t.Errorf("expected listener removed after close, got %d", hub.Listeners())
	}
}

func TestHub_ServeWSRejectsForeignOrigin(t *testing.T) {
	hub := NewHub([]string{"localhost:*"}, testLogger())
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), &websocket.DialOptions{HTTPHeader: header})
	if err == nil {
		t.Fatal("expected handshake to be rejected")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}
