package server_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voiceai/quill/internal/server"
)

func dialHub(t *testing.T, hub *server.Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) server.Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev server.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return ev
}

func waitForSubscribers(t *testing.T, hub *server.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Subscribers() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscribers = %d, want >= %d", hub.Subscribers(), n)
}

func TestHub_BroadcastReachesSubscriber(t *testing.T) {
	hub := server.NewHub(nil)
	conn := dialHub(t, hub)

	waitForSubscribers(t, hub, 1)
	hub.Broadcast(server.Event{
		Type:      server.EventText,
		SessionID: "sess-1",
		Seq:       2,
		Text:      "hello world ",
	})

	ev := readEvent(t, conn)
	if ev.Type != server.EventText {
		t.Errorf("type = %q, want %q", ev.Type, server.EventText)
	}
	if ev.Seq != 2 || ev.Text != "hello world " {
		t.Errorf("event = %+v", ev)
	}
	if ev.Time.IsZero() {
		t.Error("broadcast did not stamp the event time")
	}
}

func TestHub_BroadcastToMultipleSubscribers(t *testing.T) {
	hub := server.NewHub(nil)
	conn1 := dialHub(t, hub)
	conn2 := dialHub(t, hub)

	waitForSubscribers(t, hub, 2)
	hub.Broadcast(server.Event{Type: server.EventState, State: "capturing"})

	for i, conn := range []*websocket.Conn{conn1, conn2} {
		ev := readEvent(t, conn)
		if ev.State != "capturing" {
			t.Errorf("subscriber %d: state = %q, want %q", i, ev.State, "capturing")
		}
	}
}

func TestHub_EventsDeliveredInOrder(t *testing.T) {
	hub := server.NewHub(nil)
	conn := dialHub(t, hub)

	waitForSubscribers(t, hub, 1)
	for i := range 5 {
		hub.Broadcast(server.Event{Type: server.EventText, Seq: i})
	}

	for i := range 5 {
		ev := readEvent(t, conn)
		if ev.Seq != i {
			t.Fatalf("event %d has seq %d", i, ev.Seq)
		}
	}
}

func TestHub_DisconnectRemovesSubscriber(t *testing.T) {
	hub := server.NewHub(nil)
	conn := dialHub(t, hub)

	waitForSubscribers(t, hub, 1)
	conn.Close(websocket.StatusNormalClosure, "done")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Subscribers() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("subscribers = %d after disconnect, want 0", hub.Subscribers())
}

func TestHub_BroadcastWithoutSubscribersDoesNotBlock(t *testing.T) {
	hub := server.NewHub(nil)

	done := make(chan struct{})
	go func() {
		hub.Broadcast(server.Event{Type: server.EventText, Text: "nobody listening"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked with no subscribers")
	}
}
