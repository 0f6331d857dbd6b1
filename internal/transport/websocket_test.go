package transport

import (
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketTransportBroadcastsJSON(t *testing.T) {
	wst := newWebSocketTransport("test")
	srv := httptest.NewServer(wst.Handler())
	defer srv.Close()
	defer wst.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + WebSocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return wst.ClientCount() == 1 })

	want := Frame{Source: "mic", Sequence: 7, Timestamp: 1234, Level: 0.5, Bands: []float32{0, 0.25, 1.5}}
	if err := wst.Send(want); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Frame
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if got.Source != want.Source || got.Sequence != want.Sequence ||
		got.Timestamp != want.Timestamp || got.Level != want.Level ||
		!slices.Equal(got.Bands, want.Bands) {
		t.Errorf("received %+v, want %+v", got, want)
	}
}

func TestWebSocketTransportEncodesBeforeQueueing(t *testing.T) {
	wst := newWebSocketTransport("test")
	srv := httptest.NewServer(wst.Handler())
	defer srv.Close()
	defer wst.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + WebSocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return wst.ClientCount() == 1 })

	bands := []float32{1, 2}
	if err := wst.Send(Frame{Source: "a", Bands: bands}); err != nil {
		t.Fatal(err)
	}
	bands[0], bands[1] = -1, -1

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Frame
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if !slices.Equal(got.Bands, []float32{1, 2}) {
		t.Errorf("bands = %v, mutation after Send leaked into the message", got.Bands)
	}
}

func TestWebSocketTransportClose(t *testing.T) {
	wst := newWebSocketTransport("test")
	srv := httptest.NewServer(wst.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + WebSocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return wst.ClientCount() == 1 })

	if err := wst.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := wst.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if wst.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after Close", wst.ClientCount())
	}
	if err := wst.Send(Frame{Source: "mic"}); err == nil {
		t.Error("Send() after Close should fail")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("client still readable after transport Close")
	}
}

func TestLoggingTransportNeverFails(t *testing.T) {
	lt := NewLoggingTransport()
	if err := lt.Send(Frame{Source: "mic", Bands: []float32{0.1, 0.9, 0.3}}); err != nil {
		t.Errorf("Send() error: %v", err)
	}
	if err := lt.Send(Frame{}); err != nil {
		t.Errorf("Send() of empty frame error: %v", err)
	}
	if err := lt.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
