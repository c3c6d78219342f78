package stream

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Capricia-k/WoSport/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

func serve(t *testing.T, hub *Hub, current func() tracking.Snapshot) string {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub, current)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/stream/ws/"
}

func TestStreamHandlersUpgradeRequired(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/session-1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected non-200 for non-websocket request")
	}
}

func TestStreamHandlersSendCurrentSnapshotThenUpdates(t *testing.T) {
	hub := NewHub(nil)
	current := func() tracking.Snapshot {
		return tracking.Snapshot{Phase: tracking.PhaseTracking, Session: &tracking.Session{ID: "42"}, Elapsed: "00:10"}
	}
	base := serve(t, hub, current)

	conn, _, err := websocket.DefaultDialer.Dial(base+"42", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	var snap tracking.Snapshot
	if err := json.Unmarshal(msg, &snap); err != nil || snap.Elapsed != "00:10" {
		t.Fatalf("unexpected initial snapshot: %s", msg)
	}

	hub.Broadcast("42", []byte("hello"))
	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != "hello" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestStreamHandlersOtherSessionGetsNoInitialSnapshot(t *testing.T) {
	hub := NewHub(nil)
	current := func() tracking.Snapshot {
		return tracking.Snapshot{Phase: tracking.PhaseTracking, Session: &tracking.Session{ID: "42"}}
	}
	base := serve(t, hub, current)

	conn, _, err := websocket.DefaultDialer.Dial(base+"7", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	// wait for the server side to register before broadcasting
	time.Sleep(50 * time.Millisecond)
	hub.Broadcast("7", []byte("first"))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != "first" {
		t.Fatalf("expected broadcast first, got %q", msg)
	}
}

func TestStreamHandlersWebsocketCloseMessage(t *testing.T) {
	hub := NewHub(nil)
	base := serve(t, hub, nil)

	conn, _, err := websocket.DefaultDialer.Dial(base+"session-3", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()

	hub.Broadcast("session-3", []byte("ping"))
	time.Sleep(20 * time.Millisecond)
}
