package observer

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"traincraft.dev/internal/protocol"
	"traincraft.dev/internal/sim/world"
)

const Version = "1.0"

// BootstrapResponse is served before a spectator subscribes.
type BootstrapResponse struct {
	ProtocolVersion string   `json:"protocol_version"`
	WorldID         string   `json:"world_id"`
	Tick            uint64   `json:"tick"`
	TickRateHz      int      `json:"tick_rate_hz"`
	Trains          []string `json:"trains"`
	Obstacles       [][2]int `json:"obstacles,omitempty"`
}

// SubscribeMsg selects which trains a spectator follows and how often.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	TrainIDs        []string `json:"train_ids,omitempty"`
	EveryTicks      int      `json:"every_ticks,omitempty"`
}

// FrameMsg is one spectator update.
type FrameMsg struct {
	Type   string                `json:"type"`
	Tick   uint64                `json:"tick"`
	Trains []protocol.TrainState `json:"trains"`
}

// Server streams read-only train state to loopback spectators. It never touches
// the world loop; frames come from the world's published state view.
type Server struct {
	world *world.World
	log   zerolog.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger zerolog.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.world.Config()
		view := s.world.State()
		ids := make([]string, 0, len(view.Trains))
		for _, t := range view.Trains {
			ids = append(ids, t.ID)
		}
		sort.Strings(ids)
		resp := BootstrapResponse{
			ProtocolVersion: Version,
			WorldID:         cfg.ID,
			Tick:            s.world.CurrentTick(),
			TickRateHz:      cfg.TickRateHz,
			Trains:          ids,
			Obstacles:       cfg.Obstacles,
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}
		normalizeSubscribe(&sub)

		subs := make(chan SubscribeMsg, 1)
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine polls the published state once per tick interval.
		writeErr := make(chan error, 1)
		go func() {
			writeErr <- s.stream(ctx, conn, sub, subs)
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var next SubscribeMsg
			if err := json.Unmarshal(msg, &next); err != nil {
				continue
			}
			if next.Type != "SUBSCRIBE" || next.ProtocolVersion != Version {
				continue
			}
			normalizeSubscribe(&next)
			select {
			case subs <- next:
			default:
				// Drop updates under load; the client may resend.
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) stream(ctx context.Context, conn *websocket.Conn, sub SubscribeMsg, subs <-chan SubscribeMsg) error {
	hz := s.world.Config().TickRateHz
	if hz <= 0 {
		hz = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	var lastTick uint64
	sent := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub = <-subs:
			sent = false
		case <-ticker.C:
			view := s.world.State()
			if sent && (view.Tick == lastTick || view.Tick < lastTick+uint64(sub.EveryTicks)) {
				continue
			}
			frame := FrameMsg{Type: "FRAME", Tick: view.Tick, Trains: filterTrains(view.Trains, sub.TrainIDs)}
			b, err := json.Marshal(frame)
			if err != nil {
				return err
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return err
			}
			lastTick = view.Tick
			sent = true
		}
	}
}

func filterTrains(all []protocol.TrainState, ids []string) []protocol.TrainState {
	if len(ids) == 0 {
		return all
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]protocol.TrainState, 0, len(ids))
	for _, t := range all {
		if want[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

func normalizeSubscribe(sub *SubscribeMsg) {
	if sub.EveryTicks <= 0 {
		sub.EveryTicks = 1
	}
	if sub.EveryTicks > 1200 {
		sub.EveryTicks = 1200
	}
	if len(sub.TrainIDs) > 64 {
		sub.TrainIDs = sub.TrainIDs[:64]
	}
}

// IsLoopbackRemote reports whether an http.Request RemoteAddr is a loopback address.
func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
