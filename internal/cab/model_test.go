package cab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traincraft.dev/internal/protocol"
)

var (
	hornSound = &protocol.Sound{ID: "HORN_STEAM", FreqHz: 392, DurationMs: 700}
	runSound  = &protocol.Sound{ID: "RUN_STEAM", FreqHz: 55, DurationMs: 120, Loop: true}
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func welcomeMsg() protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		DriverID:        "D1",
		TrainID:         "T-steam-1",
		Class: protocol.ClassInfo{
			ID: "steam_440", Name: "4-4-0 American", FuelKind: "STEAM", MaxSpeed: 0.55, MaxFuel: 100,
			Horn: hornSound, Running: runSound,
		},
	}
}

func stateMsg(tick uint64, tr protocol.TrainState, events ...protocol.Event) protocol.StateMsg {
	if events == nil {
		events = []protocol.Event{}
	}
	return protocol.StateMsg{Type: protocol.TypeState, ProtocolVersion: protocol.Version, Tick: tick, Train: tr, Events: events}
}

func TestModel_WelcomeAttaches(t *testing.T) {
	var m Model
	cues, err := m.Apply(mustJSON(t, welcomeMsg()))
	require.NoError(t, err)
	assert.Empty(t, cues)
	assert.True(t, m.Attached)
	assert.Equal(t, "T-steam-1", m.Welcome.TrainID)
	require.Len(t, m.Log, 1)
	assert.Contains(t, m.Log[0], "D1")
}

func TestModel_RunningCuesOnEdges(t *testing.T) {
	var m Model
	_, _ = m.Apply(mustJSON(t, welcomeMsg()))

	cues, err := m.Apply(mustJSON(t, stateMsg(1, protocol.TrainState{ID: "T-steam-1", Running: true})))
	require.NoError(t, err)
	require.Len(t, cues, 1)
	assert.Equal(t, CueRunStart, cues[0].Kind)
	assert.Equal(t, runSound, cues[0].Sound)

	cues, _ = m.Apply(mustJSON(t, stateMsg(2, protocol.TrainState{ID: "T-steam-1", Running: true})))
	assert.Empty(t, cues)

	cues, _ = m.Apply(mustJSON(t, stateMsg(3, protocol.TrainState{ID: "T-steam-1"}, protocol.Event{"type": "STALL", "reason": "NO_FUEL"})))
	require.Len(t, cues, 1)
	assert.Equal(t, CueRunStop, cues[0].Kind)
	assert.Contains(t, m.Log[len(m.Log)-1], "stalled")
}

func TestModel_HornEventCues(t *testing.T) {
	var m Model
	_, _ = m.Apply(mustJSON(t, welcomeMsg()))
	cues, err := m.Apply(mustJSON(t, stateMsg(7, protocol.TrainState{}, protocol.Event{"type": "HORN", "sound": "HORN_STEAM"})))
	require.NoError(t, err)
	require.Len(t, cues, 1)
	assert.Equal(t, CueHorn, cues[0].Kind)
	assert.Equal(t, hornSound, cues[0].Sound)
}

func TestModel_RejectionAndLogCap(t *testing.T) {
	var m Model
	for i := 0; i < maxLogLines+5; i++ {
		_, err := m.Apply(mustJSON(t, protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: protocol.TypeCmd, Code: protocol.ErrNoResource, Message: "no fuel"}))
		require.NoError(t, err)
	}
	assert.Len(t, m.Log, maxLogLines)
	assert.Contains(t, m.Log[0], protocol.ErrNoResource)
}

func TestModel_CommandIDsAndSpeed(t *testing.T) {
	var m Model
	_, _ = m.Apply(mustJSON(t, welcomeMsg()))
	_, _ = m.Apply(mustJSON(t, stateMsg(9, protocol.TrainState{Motion: [3]float64{0.3, 0.1, 0.4}})))

	a, b := m.Command(protocol.CmdStart), m.Command(protocol.CmdHorn)
	assert.Equal(t, "T-steam-1", a.TrainID)
	assert.Equal(t, uint64(9), a.Tick)
	assert.NotEqual(t, a.Cmds[0].ID, b.Cmds[0].ID)
	assert.InDelta(t, 0.5, m.Speed(), 1e-9)
}

func TestModel_BadMessage(t *testing.T) {
	var m Model
	_, err := m.Apply([]byte("not json"))
	assert.Error(t, err)
}
