// Package cab is a terminal driver's cab: it renders one train's STATE stream
// and maps keys to driver commands.
package cab

import (
	"encoding/json"
	"fmt"
	"math"

	"traincraft.dev/internal/protocol"
)

const maxLogLines = 8

// CueKind says what the audio player should do after a message.
type CueKind int

const (
	CueNone CueKind = iota
	CueHorn
	CueRunStart
	CueRunStop
)

type Cue struct {
	Kind  CueKind
	Sound *protocol.Sound
}

// Model is the cab's view of the attached train.
type Model struct {
	Welcome  protocol.WelcomeMsg
	Attached bool

	Tick  uint64
	Train protocol.TrainState

	Log []string

	nextID  int
	running bool
}

func (m *Model) logf(format string, args ...any) {
	m.Log = append(m.Log, fmt.Sprintf(format, args...))
	if len(m.Log) > maxLogLines {
		m.Log = m.Log[len(m.Log)-maxLogLines:]
	}
}

// Apply folds one server message into the model and returns the audio cues it implies.
func (m *Model) Apply(raw []byte) ([]Cue, error) {
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return nil, err
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		m.Welcome = w
		m.Attached = true
		m.logf("attached %s to %s (%s)", w.DriverID, w.TrainID, w.Class.ID)
		return nil, nil

	case protocol.TypeAck:
		var a protocol.AckMsg
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		if !a.Accepted {
			m.logf("rejected %s: %s", a.Code, a.Message)
		}
		return nil, nil

	case protocol.TypeState:
		var st protocol.StateMsg
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, err
		}
		return m.applyState(st), nil
	}
	return nil, nil
}

func (m *Model) applyState(st protocol.StateMsg) []Cue {
	m.Tick = st.Tick
	m.Train = st.Train

	var cues []Cue
	for _, ev := range st.Events {
		typ, _ := ev["type"].(string)
		switch typ {
		case "HORN":
			cues = append(cues, Cue{Kind: CueHorn, Sound: m.Welcome.Class.Horn})
			m.logf("%d horn", st.Tick)
		case "STALL":
			m.logf("%d stalled: %v", st.Tick, ev["reason"])
		case "":
		default:
			m.logf("%d %s", st.Tick, describeEvent(typ, ev))
		}
	}

	if st.Train.Running != m.running {
		m.running = st.Train.Running
		if m.running {
			cues = append(cues, Cue{Kind: CueRunStart, Sound: m.Welcome.Class.Running})
		} else {
			cues = append(cues, Cue{Kind: CueRunStop})
		}
	}
	return cues
}

func describeEvent(typ string, ev protocol.Event) string {
	switch typ {
	case "LOADED":
		return fmt.Sprintf("loaded %v x%v", ev["item"], ev["count"])
	case "FILLED":
		return fmt.Sprintf("filled %v +%v", ev["fluid"], ev["amount"])
	case "FURNACE_LOADED":
		return fmt.Sprintf("furnace +%v", ev["fuel"])
	case "DESTINATION":
		return fmt.Sprintf("destination %v", ev["destination"])
	case "COLLISION":
		return "collision"
	case "COLLISION_CLEAR":
		return "line clear"
	}
	return typ
}

// Command builds the CMD message for one command type.
func (m *Model) Command(typ string) protocol.CmdMsg {
	m.nextID++
	return protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		Tick:            m.Tick,
		TrainID:         m.Welcome.TrainID,
		Cmds:            []protocol.CmdReq{{ID: fmt.Sprintf("cab_%d", m.nextID), Type: typ}},
	}
}

// Speed is the horizontal speed of the consist.
func (m *Model) Speed() float64 {
	x, z := m.Train.Motion[0], m.Train.Motion[2]
	return math.Sqrt(x*x + z*z)
}
