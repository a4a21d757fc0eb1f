package cab

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
)

var (
	styleText  = tcell.StyleDefault
	styleTitle = tcell.StyleDefault.Bold(true)
	styleOK    = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleWarn  = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleAlarm = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	styleDim   = tcell.StyleDefault.Foreground(tcell.ColorGray)
)

const helpLine = "up/w throttle+  down/s throttle-  b brake  e engine  space horn  q quit"

// Render draws the cab onto s and shows it.
func Render(s tcell.Screen, m *Model) {
	s.Clear()
	w, h := s.Size()
	y := 0
	line := func(style tcell.Style, format string, args ...any) {
		if y < h {
			drawText(s, 0, y, w, style, fmt.Sprintf(format, args...))
		}
		y++
	}

	if !m.Attached {
		line(styleTitle, "traincraft cab")
		line(styleDim, "waiting for WELCOME...")
		y++
		for _, l := range m.Log {
			line(styleText, "%s", l)
		}
		s.Show()
		return
	}

	c := m.Welcome.Class
	t := m.Train
	line(styleTitle, "%s  %s (%s)  tick %d", t.ID, c.Name, c.FuelKind, m.Tick)
	y++

	line(styleText, "throttle %s %+d", throttleBar(t.Accelerator), t.Accelerator)
	speedStyle := styleText
	if c.MaxSpeed > 0 && m.Speed() >= c.MaxSpeed*0.95 {
		speedStyle = styleWarn
	}
	line(speedStyle, "speed    %.3f / %.3f", m.Speed(), c.MaxSpeed)

	switch {
	case t.Running:
		line(styleOK, "engine   RUNNING")
	default:
		line(styleDim, "engine   stopped")
	}
	if t.Brake {
		line(styleWarn, "brake    ON")
	} else {
		line(styleText, "brake    off")
	}
	if t.Reverse {
		line(styleText, "reverser REVERSE")
	} else {
		line(styleText, "reverser forward")
	}

	if t.MaxFuel > 0 {
		fuelStyle := styleText
		if t.FurnaceFuel*5 < t.MaxFuel {
			fuelStyle = styleWarn
		}
		line(fuelStyle, "furnace  %s %d/%d", gauge(t.FurnaceFuel, t.MaxFuel, 20), t.FurnaceFuel, t.MaxFuel)
	}
	if t.Tank.Capacity > 0 {
		line(styleText, "tank     %s %d/%d %s", gauge(t.Tank.Amount, t.Tank.Capacity, 20), t.Tank.Amount, t.Tank.Capacity, t.Tank.Fluid)
	}
	if len(t.Inventory) > 0 {
		parts := make([]string, 0, len(t.Inventory))
		for _, st := range t.Inventory {
			parts = append(parts, fmt.Sprintf("%s x%d", st.Item, st.Count))
		}
		line(styleText, "stores   %s", strings.Join(parts, ", "))
	}
	if t.Destination != "" {
		line(styleText, "dest     %s", t.Destination)
	}
	if t.Collision {
		line(styleAlarm, "!! OBSTRUCTION AHEAD !!")
	}

	y++
	for _, l := range m.Log {
		line(styleDim, "%s", l)
	}
	if h > 0 {
		drawText(s, 0, h-1, w, styleDim, helpLine)
	}
	s.Show()
}

// throttleBar renders notches -6..6 around a centre mark.
func throttleBar(level int) string {
	var b strings.Builder
	b.WriteByte('[')
	for i := -6; i <= 6; i++ {
		switch {
		case i == 0:
			b.WriteByte('|')
		case (level < 0 && i >= level && i < 0) || (level > 0 && i <= level && i > 0):
			b.WriteByte('#')
		default:
			b.WriteByte('.')
		}
	}
	b.WriteByte(']')
	return b.String()
}

func gauge(v, max, width int) string {
	if max <= 0 {
		return ""
	}
	n := v * width / max
	if n < 0 {
		n = 0
	}
	if n > width {
		n = width
	}
	return "[" + strings.Repeat("=", n) + strings.Repeat(" ", width-n) + "]"
}

func drawText(s tcell.Screen, x, y, maxW int, style tcell.Style, text string) {
	for _, r := range text {
		if x >= maxW {
			return
		}
		s.SetContent(x, y, r, nil, style)
		x++
	}
}
