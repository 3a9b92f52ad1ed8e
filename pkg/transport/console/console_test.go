package console

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"smartfeeder-go/pkg/config"
	"smartfeeder-go/pkg/transport"
)

func newTestServer() *Server {
	return New(config.HTTPConfig{Bind: "127.0.0.1:0"}, nil)
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
	return rr.Code, rr.Body.String()
}

func TestIndexPage(t *testing.T) {
	s := newTestServer()
	code, body := get(t, s.Handler(), "/")
	if code != http.StatusOK {
		t.Fatalf("GET / status = %d, want 200", code)
	}
	if !strings.Contains(body, "Smart Feeder") {
		t.Error("index page missing title")
	}
	if !strings.Contains(body, "/websocket") {
		t.Error("index page does not reference the websocket endpoint")
	}
}

func TestUnknownPathIs404(t *testing.T) {
	s := newTestServer()
	code, body := get(t, s.Handler(), "/nope")
	if code != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", code)
	}
	if body != "Not found" {
		t.Errorf("GET /nope body = %q, want %q", body, "Not found")
	}
}

func TestWeightEndpoint(t *testing.T) {
	s := newTestServer()
	if _, body := get(t, s.Handler(), "/weight"); body != "0.00" {
		t.Errorf("initial weight = %q, want %q", body, "0.00")
	}

	s.running.Store(true)
	if err := s.PublishWeight(12.5); err != nil {
		t.Fatalf("PublishWeight() error = %v", err)
	}
	if _, body := get(t, s.Handler(), "/weight"); body != "12.50" {
		t.Errorf("weight after publish = %q, want %q", body, "12.50")
	}
}

func TestPublishWhileDown(t *testing.T) {
	s := newTestServer()
	if err := s.PublishWeight(1); err != transport.ErrDisconnected {
		t.Errorf("PublishWeight() error = %v, want %v", err, transport.ErrDisconnected)
	}
}

func TestDispenseReturnsOutcome(t *testing.T) {
	s := newTestServer()

	go func() {
		cmd := <-s.Commands()
		if cmd.Name != transport.CommandDispense {
			t.Errorf("command name = %q, want %q", cmd.Name, transport.CommandDispense)
		}
		cmd.Respond("completed")
	}()

	code, body := get(t, s.Handler(), "/dispense")
	if code != http.StatusOK {
		t.Fatalf("GET /dispense status = %d, want 200", code)
	}
	if body != "completed" {
		t.Errorf("GET /dispense body = %q, want %q", body, "completed")
	}
}

func TestDispenseQueueFull(t *testing.T) {
	s := newTestServer()
	for i := 0; i < commandBuffer; i++ {
		s.commands <- transport.Command{Name: transport.CommandDispense}
	}

	code, _ := get(t, s.Handler(), "/dispense")
	if code != http.StatusServiceUnavailable {
		t.Errorf("GET /dispense status = %d with full queue, want 503", code)
	}
}

// A bind conflict at boot must not leave the device deaf: the serve loop
// keeps retrying until the port frees up.
func TestRelistensAfterBindFailure(t *testing.T) {
	old := listenRetryInterval
	listenRetryInterval = 20 * time.Millisecond
	defer func() { listenRetryInterval = old }()

	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := blocker.Addr().String()

	s := New(config.HTTPConfig{Bind: addr}, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	time.Sleep(60 * time.Millisecond)
	if s.Connected() {
		t.Fatal("Connected() = true while the port is taken")
	}

	blocker.Close()
	deadline := time.Now().Add(3 * time.Second)
	for !s.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("server never re-listened after the port became free")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebsocketReceivesPublishes(t *testing.T) {
	s := newTestServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	s.running.Store(true)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/websocket"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	defer conn.Close()

	// Registration happens just after the handshake completes.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.wsMu.Lock()
		n := len(s.wsClients)
		s.wsMu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.PublishWeight(7.25); err != nil {
		t.Fatalf("PublishWeight() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if string(msg) != "7.25" {
		t.Errorf("websocket message = %q, want %q", msg, "7.25")
	}
}
