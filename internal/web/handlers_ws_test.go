package web

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"matter-light-bridge/internal/device"
	"matter-light-bridge/internal/host"
)

func newTestHub() *WSHub {
	return NewWSHub(testLogger())
}

func waitClients(t *testing.T, hub *WSHub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.Clients() != want {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.Clients(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWSHubRegisterUnregister(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	client := &wsClient{send: make(chan []byte, 16)}
	hub.register <- client
	waitClients(t, hub, 1)

	hub.unregister <- client
	waitClients(t, hub, 0)

	if _, ok := <-client.send; ok {
		t.Error("send channel still open after unregister")
	}
}

func TestWSHubBroadcast(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	c1 := &wsClient{send: make(chan []byte, 16)}
	c2 := &wsClient{send: make(chan []byte, 16)}
	hub.register <- c1
	hub.register <- c2
	waitClients(t, hub, 2)

	hub.Broadcast(host.Event{Type: host.EventEndpointAdded, Data: map[string]any{"endpoint": uint16(3)}})

	for i, c := range []*wsClient{c1, c2} {
		select {
		case msg := <-c.send:
			var ev struct {
				Type string         `json:"type"`
				Data map[string]any `json:"data"`
			}
			if err := json.Unmarshal(msg, &ev); err != nil {
				t.Fatalf("client %d: %v", i, err)
			}
			if ev.Type != host.EventEndpointAdded || ev.Data["endpoint"] != float64(3) {
				t.Errorf("client %d got %s", i, msg)
			}
		case <-time.After(time.Second):
			t.Errorf("client %d did not receive broadcast", i)
		}
	}
}

func TestWSHubSlowClientEviction(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	slow := &wsClient{send: make(chan []byte, 1)}
	fast := &wsClient{send: make(chan []byte, 64)}
	hub.register <- slow
	hub.register <- fast
	waitClients(t, hub, 2)

	hub.Broadcast("msg1")
	hub.Broadcast("msg2")
	waitClients(t, hub, 1)

	hub.mu.RLock()
	_, fastPresent := hub.clients[fast]
	hub.mu.RUnlock()
	if !fastPresent {
		t.Error("fast client was evicted")
	}
}

func TestWSHubBroadcastNeverBlocks(t *testing.T) {
	hub := newTestHub()
	defer hub.Stop()

	// Hub loop not running, so the queue fills up.
	done := make(chan struct{})
	go func() {
		for i := 0; i < wsBroadcastBuffer+10; i++ {
			hub.Broadcast(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Broadcast blocked on a full queue")
	}
}

func TestWSHubStop(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	client := &wsClient{send: make(chan []byte, 16)}
	hub.register <- client
	waitClients(t, hub, 1)

	hub.Stop()
	hub.Stop()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("unexpected message instead of close")
		}
	case <-time.After(time.Second):
		t.Error("client send channel not closed on stop")
	}
}

func TestWSHubUnregisterUnknownClient(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	unknown := &wsClient{send: make(chan []byte, 16)}
	hub.unregister <- unknown
	waitClients(t, hub, 0)

	select {
	case unknown.send <- []byte("test"):
	default:
		t.Error("send channel of an unknown client was closed")
	}
}

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readWS(ctx context.Context, t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("ws decode %s: %v", data, err)
	}
	return msg
}

func TestWSSnapshotAndReports(t *testing.T) {
	env := setupTestServer(t)
	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	first := readWS(ctx, t, conn)
	if first.Type != EventSnapshot {
		t.Fatalf("first message type = %q, want %q", first.Type, EventSnapshot)
	}
	var states []device.State
	if err := json.Unmarshal(first.Data, &states); err != nil {
		t.Fatal(err)
	}
	if len(states) != 2 {
		t.Fatalf("snapshot has %d lights, want 2", len(states))
	}

	waitClients(t, env.srv.wsHub, 1)
	env.dimmer.SetOnOff(true)

	for {
		msg := readWS(ctx, t, conn)
		if msg.Type != host.EventAttributeReport {
			continue
		}
		var report map[string]any
		if err := json.Unmarshal(msg.Data, &report); err != nil {
			t.Fatal(err)
		}
		if report["attribute_name"] == "OnOff" {
			if report["value"] != true || report["endpoint"] != float64(env.dimmer.EndpointID()) {
				t.Errorf("report = %v", report)
			}
			return
		}
	}
}

func TestWSOriginRejected(t *testing.T) {
	env := setupTestServer(t, WithAllowedOrigins([]string{"ui.local"}))
	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := &websocket.DialOptions{HTTPHeader: map[string][]string{"Origin": {"http://evil.example"}}}
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", opts)
	if err == nil {
		conn.Close(websocket.StatusNormalClosure, "")
		t.Fatal("dial from a foreign origin succeeded")
	}
}
