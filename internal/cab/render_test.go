package cab

import (
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traincraft.dev/internal/protocol"
)

func newScreen(t *testing.T) tcell.Screen {
	t.Helper()
	s := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, s.Init())
	s.SetSize(80, 24)
	t.Cleanup(s.Fini)
	return s
}

func screenText(s tcell.Screen) []string {
	w, h := s.Size()
	rows := make([]string, h)
	for y := 0; y < h; y++ {
		var b strings.Builder
		for x := 0; x < w; x++ {
			r, _, _, _ := s.GetContent(x, y)
			if r == 0 {
				r = ' '
			}
			b.WriteRune(r)
		}
		rows[y] = strings.TrimRight(b.String(), " ")
	}
	return rows
}

func TestRender_Waiting(t *testing.T) {
	s := newScreen(t)
	Render(s, &Model{})
	rows := screenText(s)
	assert.Equal(t, "traincraft cab", rows[0])
	assert.Contains(t, rows[1], "waiting")
}

func TestRender_Cab(t *testing.T) {
	s := newScreen(t)
	m := &Model{Welcome: welcomeMsg(), Attached: true, Tick: 42}
	m.Train = protocol.TrainState{
		ID:          "T-steam-1",
		Accelerator: 2,
		Running:     true,
		Brake:       true,
		Collision:   true,
		FurnaceFuel: 50,
		MaxFuel:     100,
		Motion:      [3]float64{0.2, 0, 0},
		Tank:        protocol.TankObs{Fluid: "WATER", Amount: 1000, Capacity: 2000},
		Inventory:   []protocol.ItemStack{{Item: "COAL", Count: 12}},
	}
	m.logf("hello log")
	Render(s, m)

	text := strings.Join(screenText(s), "\n")
	assert.Contains(t, text, "T-steam-1  4-4-0 American (STEAM)  tick 42")
	assert.Contains(t, text, "throttle [......|##....] +2")
	assert.Contains(t, text, "speed    0.200 / 0.550")
	assert.Contains(t, text, "engine   RUNNING")
	assert.Contains(t, text, "brake    ON")
	assert.Contains(t, text, "furnace  [==========          ] 50/100")
	assert.Contains(t, text, "tank     [==========          ] 1000/2000 WATER")
	assert.Contains(t, text, "stores   COAL x12")
	assert.Contains(t, text, "OBSTRUCTION")
	assert.Contains(t, text, "hello log")

	rows := screenText(s)
	assert.Equal(t, helpLine, rows[len(rows)-1])
}

func TestThrottleBar(t *testing.T) {
	assert.Equal(t, "[......|......]", throttleBar(0))
	assert.Equal(t, "[......|######]", throttleBar(6))
	assert.Equal(t, "[....##|......]", throttleBar(-2))
}

func TestGauge(t *testing.T) {
	assert.Equal(t, "[     ]", gauge(0, 10, 5))
	assert.Equal(t, "[=====]", gauge(20, 10, 5))
	assert.Equal(t, "", gauge(1, 0, 5))
}
