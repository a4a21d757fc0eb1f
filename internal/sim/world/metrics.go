package world

import "traincraft.dev/internal/protocol"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Trains    int `json:"trains"`
	Drivers   int `json:"drivers"`
	Running   int `json:"running"`
	Colliding int `json:"colliding"`

	CmdsApplied  uint64 `json:"cmds_applied"`
	CmdsRejected uint64 `json:"cmds_rejected"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

func (w *World) storeMetrics(nextTick uint64, stepMS float64) {
	m := WorldMetrics{
		Tick:         nextTick,
		Trains:       len(w.trains),
		Drivers:      len(w.drivers),
		CmdsApplied:  w.cmdsApplied,
		CmdsRejected: w.cmdsRejected,
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS: stepMS,
	}
	for _, ent := range w.trains {
		if ent.ctrl.Running() {
			m.Running++
		}
		if ent.ctrl.LastCollision() {
			m.Colliding++
		}
	}
	w.metrics.Store(m)

	trains := make([]protocol.TrainState, 0, len(w.trainIDs))
	for _, id := range w.trainIDs {
		trains = append(trains, w.trainState(w.trains[id]))
	}
	w.stateView.Store(StateView{Tick: nextTick - 1, Trains: trains})
}

// StateView is the last stepped tick's train states, safe to read from any goroutine.
type StateView struct {
	Tick   uint64                `json:"tick"`
	Trains []protocol.TrainState `json:"trains"`
}

func (w *World) State() StateView {
	if w == nil {
		return StateView{}
	}
	v, ok := w.stateView.Load().(StateView)
	if !ok {
		return StateView{Trains: []protocol.TrainState{}}
	}
	return v
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
