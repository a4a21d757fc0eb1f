package cab

import (
	"github.com/gdamore/tcell/v2"

	"traincraft.dev/internal/protocol"
)

// Action is what a key press asks the cab to do.
type Action struct {
	Cmd  string
	Quit bool
}

// KeyAction maps a key to a driver command. Toggle keys read the current train state.
func KeyAction(key tcell.Key, r rune, t protocol.TrainState) (Action, bool) {
	switch key {
	case tcell.KeyUp:
		return Action{Cmd: protocol.CmdThrottleUp}, true
	case tcell.KeyDown:
		return Action{Cmd: protocol.CmdThrottleDown}, true
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return Action{Quit: true}, true
	case tcell.KeyRune:
	default:
		return Action{}, false
	}

	switch r {
	case 'w', 'k':
		return Action{Cmd: protocol.CmdThrottleUp}, true
	case 's', 'j':
		return Action{Cmd: protocol.CmdThrottleDown}, true
	case 'b':
		if t.Brake {
			return Action{Cmd: protocol.CmdBrakeOff}, true
		}
		return Action{Cmd: protocol.CmdBrakeOn}, true
	case 'e':
		if t.Running {
			return Action{Cmd: protocol.CmdStop}, true
		}
		return Action{Cmd: protocol.CmdStart}, true
	case ' ', 'h':
		return Action{Cmd: protocol.CmdHorn}, true
	case 'q':
		return Action{Quit: true}, true
	}
	return Action{}, false
}
