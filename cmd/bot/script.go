package main

import (
	"fmt"

	"traincraft.dev/internal/protocol"
)

// script is a simple autopilot: start, hold a throttle notch, brake on
// collision and refuel after a stall.
type script struct {
	trainID   string
	fuelKind  string
	notch     int
	hornEvery uint64

	nextID    int
	started   bool
	refueling bool

	// lastStart is the id of the most recent START; a NO_RESOURCE ACK for it
	// triggers another refuel and retry, up to maxRestarts in a row.
	lastStart   string
	needRefuel  bool
	restarts    int
	maxRestarts int
}

func newScript(w protocol.WelcomeMsg, notch int, hornEvery uint64) *script {
	if notch <= 0 {
		notch = 1
	}
	return &script{trainID: w.TrainID, fuelKind: w.Class.FuelKind, notch: notch, hornEvery: hornEvery, maxRestarts: 5}
}

func (s *script) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s_%d", prefix, s.nextID)
}

func (s *script) cmd(typ string) protocol.CmdReq {
	c := protocol.CmdReq{ID: s.id(typ), Type: typ}
	if typ == protocol.CmdStart {
		s.lastStart = c.ID
	}
	return c
}

// onAck handles a rejected command.
func (s *script) onAck(a protocol.AckMsg) {
	if a.Accepted || a.AckFor == "" || a.AckFor != s.lastStart || a.Code != protocol.ErrNoResource {
		return
	}
	if s.restarts >= s.maxRestarts {
		return
	}
	s.restarts++
	s.needRefuel = true
	s.refueling = true
}

// onState returns the commands to send in reply to one STATE message.
func (s *script) onState(st protocol.StateMsg) []protocol.CmdReq {
	var out []protocol.CmdReq
	if !s.started {
		s.started = true
		out = append(out, s.cmd(protocol.CmdStart))
		for i := 0; i < s.notch; i++ {
			out = append(out, s.cmd(protocol.CmdThrottleUp))
		}
		return out
	}

	if st.Train.Running {
		s.restarts = 0
	}
	if s.needRefuel {
		s.needRefuel = false
		out = append(out, s.refuel(st.Train)...)
	}

	for _, ev := range st.Events {
		switch ev["type"] {
		case "COLLISION":
			out = append(out, s.cmd(protocol.CmdBrakeOn))
		case "COLLISION_CLEAR":
			out = append(out, s.cmd(protocol.CmdBrakeOff))
		case "STALL":
			s.refueling = true
			out = append(out, s.refuel(st.Train)...)
		}
	}
	if s.refueling && len(out) == 0 {
		s.refueling = false
		out = append(out, s.cmd(protocol.CmdStart))
	}

	if s.hornEvery > 0 && st.Tick > 0 && st.Tick%s.hornEvery == 0 {
		out = append(out, s.cmd(protocol.CmdHorn))
	}
	return out
}

func (s *script) refuel(t protocol.TrainState) []protocol.CmdReq {
	var out []protocol.CmdReq
	switch s.fuelKind {
	case "STEAM":
		c := s.cmd(protocol.CmdLoad)
		c.Item, c.Count = "COAL", 8
		out = append(out, c)
		if t.Tank.Capacity > 0 {
			f := s.cmd(protocol.CmdFill)
			f.Fluid, f.Amount = "WATER", t.Tank.Capacity-t.Tank.Amount
			out = append(out, f)
		}
	case "DIESEL":
		if t.Tank.Capacity > 0 {
			f := s.cmd(protocol.CmdFill)
			f.Fluid, f.Amount = "DIESEL", t.Tank.Capacity-t.Tank.Amount
			out = append(out, f)
		}
	}
	return out
}

func (s *script) message(tick uint64, cmds []protocol.CmdReq) protocol.CmdMsg {
	return protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		TrainID:         s.trainID,
		Cmds:            cmds,
	}
}
