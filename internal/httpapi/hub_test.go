package httpapi_test

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/noor-app/noorvoice/internal/httpapi"
)

func dialHub(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func waitSubscribers(t *testing.T, hub *httpapi.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() != want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers, have %d", want, hub.Subscribers())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestHubDeliversEvents(t *testing.T) {
	hub := httpapi.NewHub(slog.New(slog.DiscardHandler))
	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn := dialHub(t, ts)
	waitSubscribers(t, hub, 1)

	hub.Publish("session.state", map[string]string{"state": "active"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev httpapi.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != "session.state" {
		t.Errorf("Type = %q, want %q", ev.Type, "session.state")
	}
	if ev.Time.IsZero() {
		t.Error("event has zero time")
	}
	data, ok := ev.Data.(map[string]any)
	if !ok || data["state"] != "active" {
		t.Errorf("Data = %v", ev.Data)
	}
}

func TestHubFansOutToAllSubscribers(t *testing.T) {
	hub := httpapi.NewHub(slog.New(slog.DiscardHandler))
	ts := httptest.NewServer(hub)
	defer ts.Close()

	first := dialHub(t, ts)
	second := dialHub(t, ts)
	waitSubscribers(t, hub, 2)

	hub.Publish("ping", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, conn := range []*websocket.Conn{first, second} {
		var ev httpapi.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("subscriber %d read: %v", i, err)
		}
		if ev.Type != "ping" {
			t.Errorf("subscriber %d Type = %q", i, ev.Type)
		}
	}
}

func TestHubPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	hub := httpapi.NewHub(slog.New(slog.DiscardHandler))
	ts := httptest.NewServer(hub)
	defer ts.Close()

	dialHub(t, ts)
	waitSubscribers(t, hub, 1)

	done := make(chan struct{})
	go func() {
		// Far more events than the subscriber queue holds, with nobody
		// reading the socket.
		for i := 0; i < 1000; i++ {
			hub.Publish("flood", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestHubUnsubscribesOnDisconnect(t *testing.T) {
	hub := httpapi.NewHub(slog.New(slog.DiscardHandler))
	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn := dialHub(t, ts)
	waitSubscribers(t, hub, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	waitSubscribers(t, hub, 0)
}

func TestHubCloseDetachesSubscribers(t *testing.T) {
	hub := httpapi.NewHub(slog.New(slog.DiscardHandler))
	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn := dialHub(t, ts)
	waitSubscribers(t, hub, 1)

	if err := hub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := hub.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev httpapi.Event
	if err := wsjson.Read(ctx, conn, &ev); err == nil {
		t.Fatal("read after hub close returned an event")
	}
	if hub.Subscribers() != 0 {
		t.Errorf("Subscribers = %d after close", hub.Subscribers())
	}

	// New connections are rejected once closed.
	rejected := dialHub(t, ts)
	if err := wsjson.Read(ctx, rejected, &ev); err == nil {
		t.Fatal("subscriber connected to a closed hub received an event")
	}
}
