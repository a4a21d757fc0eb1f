package world

import (
	"context"
	"errors"
	"fmt"

	"traincraft.dev/internal/persistence/snapshot"
	"traincraft.dev/internal/sim/train"
)

func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	// Snapshot must be called from the world loop goroutine.
	s := snapshot.SnapshotV1{
		Header:             snapshot.Header{Version: snapshot.Version, WorldID: w.cfg.ID, Tick: nowTick},
		TickRate:           w.cfg.TickRateHz,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		BrakeFactor:        w.cfg.BrakeFactor,
		CollisionRadius:    w.cfg.CollisionRadius,
		RailHeight:         w.cfg.RailHeight,
		RateLimits: snapshot.RateLimitsV1{
			CmdWindowTicks: w.cfg.RateLimits.CmdWindowTicks,
			CmdMax:         w.cfg.RateLimits.CmdMax,
		},
		VehiclesDigest: w.catalogs.Digest,
		Obstacles:      append([][2]int(nil), w.obstacles...),
		Trains:         make([]snapshot.TrainV1, 0, len(w.trainIDs)),
		NextDriverNum:  w.nextDriverNum.Load(),
	}
	for _, id := range w.trainIDs {
		ent := w.trains[id]
		r := ent.ctrl.Record()
		tv := snapshot.TrainV1{
			ID:          r.ID,
			ClassID:     ent.def.ID,
			Owner:       r.Owner,
			Destination: r.Destination,
			Heading:     ent.heading,
			Running:     r.Running,
			Brake:       r.Brake,
			FurnaceFuel: r.FurnaceFuel,
			Inventory:   r.Inventory,
			Tank:        snapshot.TankV1{Fluid: r.Tank.Fluid, Amount: r.Tank.Amount, Capacity: r.Tank.Capacity},
			Accelerator: r.Accelerator,
			Reverse:     r.Reverse,
			TickCounter: r.TickCounter,
			Motion:      [3]float64{r.Motion.X, r.Motion.Y, r.Motion.Z},
			Bogies:      make([]snapshot.BogieV1, 0, len(r.Bogies)),
			CmdWindow:   snapshot.RateWindowV1{StartTick: ent.cmdWindow.StartTick, Count: ent.cmdWindow.Count},
		}
		for _, b := range r.Bogies {
			tv.Bogies = append(tv.Bogies, snapshot.BogieV1{
				Pos: [3]float64{b.Position.X, b.Position.Y, b.Position.Z},
				Vel: [3]float64{b.Velocity.X, b.Velocity.Y, b.Velocity.Z},
			})
		}
		s.Trains = append(s.Trains, tv)
	}
	return s
}

// ImportSnapshot replaces all trains with the snapshot's. It must run before Run.
// Operational parameters captured in the snapshot override the world config.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	if s.VehiclesDigest != "" && s.VehiclesDigest != w.catalogs.Digest {
		w.log.Warn().Str("snapshot", s.VehiclesDigest).Str("loaded", w.catalogs.Digest).Msg("vehicle catalog changed since snapshot")
	}
	if s.TickRate > 0 {
		w.cfg.TickRateHz = s.TickRate
	}
	w.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	w.cfg.BrakeFactor = s.BrakeFactor
	w.cfg.CollisionRadius = s.CollisionRadius
	w.cfg.RailHeight = s.RailHeight
	w.cfg.RateLimits = RateLimitParams{CmdWindowTicks: s.RateLimits.CmdWindowTicks, CmdMax: s.RateLimits.CmdMax}
	w.obstacles = append([][2]int(nil), s.Obstacles...)

	trains := map[string]*trainEntity{}
	for _, tv := range s.Trains {
		if _, dup := trains[tv.ID]; dup {
			return fmt.Errorf("snapshot: duplicate train %q", tv.ID)
		}
		def, ok := w.catalogs.Vehicle(tv.ClassID)
		if !ok {
			return fmt.Errorf("snapshot: train %s: unknown class %q", tv.ID, tv.ClassID)
		}
		ent := w.newEntity(tv.ID, tv.Owner, def, tv.Heading)
		rec := train.Record{
			ID:          tv.ID,
			Owner:       tv.Owner,
			Destination: tv.Destination,
			Running:     tv.Running,
			Brake:       tv.Brake,
			FurnaceFuel: tv.FurnaceFuel,
			Inventory:   tv.Inventory,
			Tank:        train.Tank{Fluid: tv.Tank.Fluid, Amount: tv.Tank.Amount, Capacity: tv.Tank.Capacity},
			Accelerator: tv.Accelerator,
			Reverse:     tv.Reverse,
			TickCounter: tv.TickCounter,
			Motion:      train.Vec3{X: tv.Motion[0], Y: tv.Motion[1], Z: tv.Motion[2]},
		}
		for _, b := range tv.Bogies {
			ent.ctrl.AddBogie(train.Vec3{}, ent.integrator(w))
			rec.Bogies = append(rec.Bogies, train.BogieRecord{
				Position: train.Vec3{X: b.Pos[0], Y: b.Pos[1], Z: b.Pos[2]},
				Velocity: train.Vec3{X: b.Vel[0], Y: b.Vel[1], Z: b.Vel[2]},
			})
		}
		ent.ctrl.Restore(rec)
		ent.cmdWindow = rateWindow{StartTick: tv.CmdWindow.StartTick, Count: tv.CmdWindow.Count}
		trains[tv.ID] = ent
	}

	w.trains = map[string]*trainEntity{}
	w.trainIDs = w.trainIDs[:0]
	for _, tv := range s.Trains {
		w.addEntity(trains[tv.ID])
	}
	w.nextDriverNum.Store(s.NextDriverNum)
	w.tick.Store(s.Header.Tick + 1)
	return nil
}

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the world loop goroutine to enqueue a snapshot.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	if w == nil || w.admin == nil {
		return 0, errors.New("admin snapshot not available")
	}
	resp := make(chan adminSnapshotResp, 1)
	req := adminSnapshotReq{Resp: resp}

	select {
	case w.admin <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if w == nil || len(reqs) == 0 {
		return
	}
	cur := w.tick.Load()
	snapTick := uint64(0)
	if cur > 0 {
		snapTick = cur - 1
	}

	errStr := ""
	if w.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		snap := w.ExportSnapshot(snapTick)
		select {
		case w.snapshotSink <- snap:
		default:
			errStr = "snapshot sink busy"
		}
	}
	for _, r := range reqs {
		if r.Resp != nil {
			r.Resp <- adminSnapshotResp{Tick: snapTick, Err: errStr}
		}
	}
}
