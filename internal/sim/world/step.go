package world

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"traincraft.dev/internal/protocol"
)

func (w *World) step(joins []JoinRequest, leaves []string, cmds []CmdEnvelope) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// Apply leaves and joins deterministically at tick boundary.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if _, ok := w.drivers[id]; ok {
			delete(w.drivers, id)
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp, d := w.joinDriver(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
		if d != nil {
			recordedJoins = append(recordedJoins, RecordedJoin{DriverID: d.ID, TrainID: d.TrainID, Name: d.Name})
		}
	}

	// Commands in server receive order (the inbox order).
	recorded := make([]RecordedCmd, 0, len(cmds))
	var rejected []RejectedCmd
	for _, env := range cmds {
		w.applyCmds(env, nowTick, &recorded, &rejected)
	}

	// Trains in id order; each controller drives its bogies in assembly order.
	for _, id := range w.trainIDs {
		ent := w.trains[id]
		ent.ctrl.Tick(railEnv{w: w, ent: ent}, ent.traction())
		hit := ent.ctrl.LastCollision()
		if hit && !ent.wasColliding {
			ent.addEvent(protocol.Event{"type": "COLLISION"})
			w.log.Debug().Str("train", id).Uint64("tick", nowTick).Msg("collision")
		} else if !hit && ent.wasColliding {
			ent.addEvent(protocol.Event{"type": "COLLISION_CLEAR"})
		}
		ent.wasColliding = hit
	}

	w.broadcastState(nowTick)

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Joins: recordedJoins, Leaves: recordedLeaves, Cmds: recorded, Digest: digest}); err != nil {
			w.log.Warn().Err(err).Uint64("tick", nowTick).Msg("tick log write failed")
		}
	}

	// Snapshot every N ticks, starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				w.log.Warn().Uint64("tick", nowTick).Msg("snapshot sink full; dropped")
			}
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	if len(w.observers) > 0 {
		sum := TickSummary{
			Tick:     nowTick,
			Digest:   digest,
			StepMS:   stepMS,
			Cmds:     recorded,
			Rejected: rejected,
			Trains:   w.samples(),
		}
		for _, o := range w.observers {
			o.ObserveTick(sum)
		}
	}

	nextTick := w.tick.Add(1)
	w.storeMetrics(nextTick, stepMS)
}

func (w *World) samples() []TrainSample {
	out := make([]TrainSample, 0, len(w.trainIDs))
	for _, id := range w.trainIDs {
		ent := w.trains[id]
		c := ent.ctrl
		m := c.Motion()
		s := TrainSample{
			ID:          id,
			Class:       c.Class().ID,
			Accelerator: c.Accelerator(),
			Brake:       c.Brake(),
			Running:     c.Running(),
			Collision:   c.LastCollision(),
			FurnaceFuel: c.FurnaceFuel(),
			TankAmount:  c.Tank().Amount,
			Speed:       math.Hypot(m.X, m.Z),
		}
		if bs := c.Bogies(); len(bs) > 0 {
			p := bs[0].Position
			s.Pos = [3]float64{p.X, p.Y, p.Z}
		}
		out = append(out, s)
	}
	return out
}

func (w *World) broadcastState(nowTick uint64) {
	ids := make([]string, 0, len(w.drivers))
	for id := range w.drivers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	cache := map[string][]byte{}
	for _, id := range ids {
		d := w.drivers[id]
		if d.Out == nil {
			continue
		}
		b, ok := cache[d.TrainID]
		if !ok {
			ent := w.trains[d.TrainID]
			if ent == nil {
				continue
			}
			msg := protocol.StateMsg{
				Type:            protocol.TypeState,
				ProtocolVersion: protocol.Version,
				Tick:            nowTick,
				Train:           w.trainState(ent),
				Events:          ent.events,
			}
			if msg.Events == nil {
				msg.Events = []protocol.Event{}
			}
			var err error
			b, err = json.Marshal(msg)
			if err != nil {
				continue
			}
			cache[d.TrainID] = b
		}
		sendLatest(d.Out, b)
	}
	for _, ent := range w.trains {
		ent.events = ent.events[:0]
	}
}

func (w *World) trainState(ent *trainEntity) protocol.TrainState {
	c := ent.ctrl
	m := c.Motion()
	ts := protocol.TrainState{
		ID:          c.ID(),
		Class:       c.Class().ID,
		Owner:       c.Owner(),
		Destination: c.Destination(),
		Accelerator: c.Accelerator(),
		Reverse:     c.Reverse(),
		Brake:       c.Brake(),
		Running:     c.Running(),
		Collision:   c.LastCollision(),
		FurnaceFuel: c.FurnaceFuel(),
		MaxFuel:     c.Class().MaxFuel,
		Motion:      [3]float64{m.X, m.Y, m.Z},
		Bogies:      make([][3]float64, 0, len(c.Bogies())),
		Inventory:   []protocol.ItemStack{},
		Tank: protocol.TankObs{
			Fluid:    c.Tank().Fluid,
			Amount:   c.Tank().Amount,
			Capacity: c.Tank().Capacity,
		},
	}
	for _, b := range c.Bogies() {
		ts.Bogies = append(ts.Bogies, [3]float64{b.Position.X, b.Position.Y, b.Position.Z})
	}
	for _, item := range c.Inventory().SortedItems() {
		ts.Inventory = append(ts.Inventory, protocol.ItemStack{Item: item, Count: c.Inventory().Count(item)})
	}
	if c.Running() {
		ts.RunningSound = c.Class().Running
	}
	return ts
}
