package cab

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"

	"traincraft.dev/internal/protocol"
)

func TestKeyAction(t *testing.T) {
	idle := protocol.TrainState{}
	busy := protocol.TrainState{Running: true, Brake: true}

	cases := []struct {
		name  string
		key   tcell.Key
		r     rune
		state protocol.TrainState
		want  Action
		ok    bool
	}{
		{"arrow up", tcell.KeyUp, 0, idle, Action{Cmd: protocol.CmdThrottleUp}, true},
		{"arrow down", tcell.KeyDown, 0, idle, Action{Cmd: protocol.CmdThrottleDown}, true},
		{"w", tcell.KeyRune, 'w', idle, Action{Cmd: protocol.CmdThrottleUp}, true},
		{"j", tcell.KeyRune, 'j', idle, Action{Cmd: protocol.CmdThrottleDown}, true},
		{"brake on", tcell.KeyRune, 'b', idle, Action{Cmd: protocol.CmdBrakeOn}, true},
		{"brake off", tcell.KeyRune, 'b', busy, Action{Cmd: protocol.CmdBrakeOff}, true},
		{"start", tcell.KeyRune, 'e', idle, Action{Cmd: protocol.CmdStart}, true},
		{"stop", tcell.KeyRune, 'e', busy, Action{Cmd: protocol.CmdStop}, true},
		{"horn", tcell.KeyRune, ' ', idle, Action{Cmd: protocol.CmdHorn}, true},
		{"quit q", tcell.KeyRune, 'q', idle, Action{Quit: true}, true},
		{"quit esc", tcell.KeyEscape, 0, idle, Action{Quit: true}, true},
		{"unbound rune", tcell.KeyRune, 'z', idle, Action{}, false},
		{"unbound key", tcell.KeyF5, 0, idle, Action{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := KeyAction(tc.key, tc.r, tc.state)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
