package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"traincraft.dev/internal/sim/world"
	"traincraft.dev/internal/sim/worldtest"
)

func startWorld(t *testing.T) *world.World {
	t.Helper()
	cfg, cats, rw := worldtest.Railway(t)
	cfg.TickRateHz = 100
	w, err := world.New(cfg, cats)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	for _, sp := range rw.Trains {
		if err := w.Spawn(sp); err != nil {
			t.Fatalf("spawn: %v", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for len(w.State().Trains) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("world never published state")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return w
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5555": true,
		"[::1]:80":       true,
		"::1":            true,
		"10.0.0.7:1234":  false,
		"example.com:80": false,
		"":               false,
	}
	for in, want := range cases {
		if got := IsLoopbackRemote(in); got != want {
			t.Fatalf("IsLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}

func TestBootstrap(t *testing.T) {
	s := NewServer(startWorld(t), zerolog.Nop())
	srv := httptest.NewServer(s.BootstrapHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var b BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.ProtocolVersion != Version || b.TickRateHz != 100 || len(b.Trains) != 3 {
		t.Fatalf("bootstrap=%+v", b)
	}
	if b.Trains[0] != "T-emu-1" {
		t.Fatalf("trains not sorted: %v", b.Trains)
	}
}

func TestBootstrap_RejectsNonGet(t *testing.T) {
	s := NewServer(startWorld(t), zerolog.Nop())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "127.0.0.1:1"
	s.BootstrapHandler()(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("code=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1"
	s.BootstrapHandler()(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestWS_FramesFilteredByTrain(t *testing.T) {
	s := NewServer(startWorld(t), zerolog.Nop())
	srv := httptest.NewServer(s.WSHandler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: Version, TrainIDs: []string{"T-emu-1"}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write: %v", err)
	}

	var prev uint64
	for i := 0; i < 3; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var f FrameMsg
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read: %v", err)
		}
		if f.Type != "FRAME" || len(f.Trains) != 1 || f.Trains[0].ID != "T-emu-1" {
			t.Fatalf("frame=%+v", f)
		}
		if i > 0 && f.Tick <= prev {
			t.Fatalf("tick did not advance: %d after %d", f.Tick, prev)
		}
		prev = f.Tick
	}
}

func TestWS_RequiresSubscribe(t *testing.T) {
	s := NewServer(startWorld(t), zerolog.Nop())
	srv := httptest.NewServer(s.WSHandler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(map[string]string{"type": "HELLO"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation, got %v", err)
	}
}
