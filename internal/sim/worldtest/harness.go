package worldtest

import (
	"encoding/json"
	"fmt"
	"testing"

	"traincraft.dev/internal/persistence/snapshot"
	"traincraft.dev/internal/protocol"
	"traincraft.dev/internal/sim/catalogs"
	"traincraft.dev/internal/sim/tuning"
	world "traincraft.dev/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Attach() issues JoinRequest via StepOnce()
// - Step()/StepFor() issues CMD via StepOnce()
// - Per-driver Out channels carry STATE and ACK JSON
//
// It avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T    *testing.T
	Cats *catalogs.Catalogs
	W    *world.World

	DefaultDriverID string

	drivers map[string]*driverSession
	nextCmd int
}

type driverSession struct {
	DriverID string
	TrainID  string
	Out      chan []byte

	lastState protocol.StateMsg
	events    []protocol.Event
	acks      []protocol.AckMsg
}

// Railway loads the repo configs and spawns the default layout.
func Railway(t *testing.T) (world.WorldConfig, *catalogs.Catalogs, tuning.Railway) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	tu, err := tuning.Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	rw, err := tuning.LoadRailway("../../../configs/railway.yaml")
	if err != nil {
		t.Fatalf("load railway: %v", err)
	}
	cfg := world.ConfigFromTuning("test", tu)
	cfg.Obstacles = rw.Obstacles
	return cfg, cats, rw
}

func NewHarness(t *testing.T, cfg world.WorldConfig, cats *catalogs.Catalogs, spawns []tuning.TrainSpawn, trainID string) *Harness {
	t.Helper()

	w, err := world.New(cfg, cats)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	for _, s := range spawns {
		if err := w.Spawn(s); err != nil {
			t.Fatalf("spawn: %v", err)
		}
	}
	return NewHarnessWithWorld(t, w, cats, trainID)
}

// NewHarnessWithWorld is like NewHarness, but uses an already-constructed world instance.
// This is useful for snapshot round-trip tests where the snapshot is imported before attach.
func NewHarnessWithWorld(t *testing.T, w *world.World, cats *catalogs.Catalogs, trainID string) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	h := &Harness{
		T:       t,
		Cats:    cats,
		W:       w,
		drivers: map[string]*driverSession{},
	}
	h.DefaultDriverID = h.Attach(trainID)
	return h
}

func (h *Harness) Attach(trainID string) string {
	h.T.Helper()

	out := make(chan []byte, 64)
	resp := make(chan world.JoinResponse, 1)
	_, _ = h.W.StepOnce([]world.JoinRequest{{
		DriverName: "harness",
		TrainID:    trainID,
		Out:        out,
		Resp:       resp,
	}}, nil, nil)
	jr := <-resp
	if jr.Code != "" {
		h.T.Fatalf("attach %s: %s %s", trainID, jr.Code, jr.Message)
	}
	s := &driverSession{DriverID: jr.Welcome.DriverID, TrainID: jr.Welcome.TrainID, Out: out}
	h.drivers[s.DriverID] = s
	h.drainAll()
	return s.DriverID
}

// Cmd builds a command with a unique id.
func (h *Harness) Cmd(typ string) protocol.CmdReq {
	h.nextCmd++
	return protocol.CmdReq{ID: fmt.Sprintf("K%d", h.nextCmd), Type: typ}
}

func (h *Harness) Step(cmds ...protocol.CmdReq) protocol.StateMsg {
	return h.StepFor(h.DefaultDriverID, cmds...)
}

func (h *Harness) StepFor(driverID string, cmds ...protocol.CmdReq) protocol.StateMsg {
	h.T.Helper()
	s := h.drivers[driverID]
	if s == nil {
		h.T.Fatalf("unknown driver id: %q", driverID)
	}
	var env []world.CmdEnvelope
	if len(cmds) > 0 {
		env = []world.CmdEnvelope{{DriverID: driverID, TrainID: s.TrainID, Cmds: cmds}}
	}
	_, _ = h.W.StepOnce(nil, nil, env)
	h.drainAll()
	return s.lastState
}

func (h *Harness) StepN(n int) protocol.StateMsg {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.Step()
	}
	return h.LastState()
}

func (h *Harness) LastState() protocol.StateMsg { return h.session(h.DefaultDriverID).lastState }

// Events returns and clears every event seen by the default driver.
func (h *Harness) Events() []protocol.Event {
	s := h.session(h.DefaultDriverID)
	ev := s.events
	s.events = nil
	return ev
}

// Acks returns and clears every ACK seen by the default driver.
func (h *Harness) Acks() []protocol.AckMsg {
	s := h.session(h.DefaultDriverID)
	a := s.acks
	s.acks = nil
	return a
}

func (h *Harness) Snapshot() (tick uint64, snap snapshot.SnapshotV1) {
	h.T.Helper()
	// Keep tick stable: export at currentTick-1 then import would restore to currentTick.
	cur := h.W.CurrentTick()
	if cur == 0 {
		return 0, h.W.ExportSnapshot(0)
	}
	tick = cur - 1
	return tick, h.W.ExportSnapshot(tick)
}

func (h *Harness) session(id string) *driverSession {
	h.T.Helper()
	s := h.drivers[id]
	if s == nil {
		h.T.Fatalf("unknown driver id: %q", id)
	}
	return s
}

func (h *Harness) drainAll() {
	h.T.Helper()
	for _, s := range h.drivers {
		h.drainOne(s)
	}
}

func (h *Harness) drainOne(s *driverSession) {
	h.T.Helper()
	for {
		var b []byte
		select {
		case b = <-s.Out:
		default:
			return
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			h.T.Fatalf("decode: %v", err)
		}
		switch base.Type {
		case protocol.TypeState:
			var m protocol.StateMsg
			if err := json.Unmarshal(b, &m); err != nil {
				h.T.Fatalf("unmarshal STATE: %v", err)
			}
			s.lastState = m
			s.events = append(s.events, m.Events...)
		case protocol.TypeAck:
			var m protocol.AckMsg
			if err := json.Unmarshal(b, &m); err != nil {
				h.T.Fatalf("unmarshal ACK: %v", err)
			}
			s.acks = append(s.acks, m)
		}
	}
}
