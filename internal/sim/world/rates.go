package world

// rateWindow is a fixed window counter keyed on ticks.
type rateWindow struct {
	StartTick uint64
	Count     int
}

// allow counts one event at nowTick and reports whether it fits in the window.
// A zero window or max disables the limit.
func (r *rateWindow) allow(nowTick uint64, window uint64, max int) (ok bool, cooldownTicks uint64) {
	if window == 0 || max <= 0 {
		return true, 0
	}
	if nowTick-r.StartTick >= window {
		r.StartTick = nowTick
		r.Count = 0
	}
	r.Count++
	if r.Count <= max {
		return true, 0
	}
	return false, (r.StartTick + window) - nowTick
}
