package world

import (
	"traincraft.dev/internal/protocol"
	"traincraft.dev/internal/sim/catalogs"
	"traincraft.dev/internal/sim/train"
)

// trainEntity is the world's bookkeeping around one controller.
type trainEntity struct {
	ctrl    *train.Controller
	def     catalogs.VehicleDef
	heading [2]float64

	cmdWindow rateWindow

	// Per-tick events, flushed into STATE.
	events []protocol.Event

	wasColliding bool
}

func (w *World) newEntity(id, owner string, def catalogs.VehicleDef, heading [2]float64) *trainEntity {
	ctrl := train.New(def.Class(), train.Options{
		ID:             id,
		Owner:          owner,
		Authoritative:  true,
		InventorySlots: def.InventorySlots,
		TankCapacity:   def.TankCapacity,
	})
	return &trainEntity{ctrl: ctrl, def: def, heading: heading}
}

// integrator moves a bogie along its velocity and keeps it on the rail plane.
func (ent *trainEntity) integrator(w *World) train.Integrator {
	return train.IntegratorFunc(func(b *train.Bogie) {
		v := b.Velocity()
		b.Position = b.Position.Add(v)
		b.Position.Y = w.cfg.RailHeight
		if v.Y != 0 {
			b.SetVelocity(v.X, 0, v.Z)
		}
	})
}

func (ent *trainEntity) addEvent(e protocol.Event) { ent.events = append(ent.events, e) }

// traction returns the per-bogie impulse the engine applies this tick.
func (ent *trainEntity) traction() map[*train.Bogie]train.Planar {
	c := ent.ctrl
	if !c.Running() || c.Brake() || c.Accelerator() == 0 || ent.def.Traction == 0 {
		return nil
	}
	if ent.def.FuelKind != catalogs.FuelElectric && c.FurnaceFuel() <= 0 {
		return nil
	}
	imp := ent.def.Traction * float64(c.Accelerator()) / train.MaxAccelerator
	ext := make(map[*train.Bogie]train.Planar, len(c.Bogies()))
	for _, b := range c.Bogies() {
		ext[b] = train.Planar{X: ent.heading[0] * imp, Z: ent.heading[1] * imp}
	}
	return ext
}

// railEnv supplies the host physics a controller consumes during Tick.
type railEnv struct {
	w   *World
	ent *trainEntity
}

// HasCollision reports whether any bogie's next position closes in on an obstacle
// cell or another train's bogie within the collision radius. Moving away is never blocked.
func (e railEnv) HasCollision(c *train.Controller) bool {
	r2 := e.w.cfg.CollisionRadius * e.w.cfg.CollisionRadius
	if r2 == 0 {
		return false
	}
	closing := func(b *train.Bogie, tx, tz float64) bool {
		v := b.Velocity()
		nx, nz := b.Position.X+v.X-tx, b.Position.Z+v.Z-tz
		cx, cz := b.Position.X-tx, b.Position.Z-tz
		next := nx*nx + nz*nz
		return next < r2 && next < cx*cx+cz*cz
	}
	for _, b := range c.Bogies() {
		for _, o := range e.w.obstacles {
			if closing(b, float64(o[0])+0.5, float64(o[1])+0.5) {
				return true
			}
		}
		for _, id := range e.w.trainIDs {
			other := e.w.trains[id]
			if other == nil || other.ctrl == c {
				continue
			}
			for _, ob := range other.ctrl.Bogies() {
				if closing(b, ob.Position.X, ob.Position.Z) {
					return true
				}
			}
		}
	}
	return false
}

// BaseStep stops a blocked train and applies brake drag.
func (e railEnv) BaseStep(c *train.Controller) {
	blocked := c.LastCollision()
	bf := e.w.cfg.BrakeFactor
	for _, b := range c.Bogies() {
		v := b.Velocity()
		switch {
		case blocked:
			b.SetVelocity(0, 0, 0)
		case c.Brake():
			b.SetVelocity(v.X*bf, v.Y, v.Z*bf)
		}
	}
}

func (e railEnv) ManageFuel(c *train.Controller) {
	res := e.w.fuel.Manage(c)
	if res.Stalled {
		e.ent.addEvent(protocol.Event{"type": "STALL", "reason": res.Reason})
		e.w.log.Info().Str("train", c.ID()).Str("reason", res.Reason).Msg("engine stalled")
	}
	if res.Loaded > 0 {
		e.ent.addEvent(protocol.Event{"type": "FURNACE_LOADED", "fuel": res.Loaded})
	}
}
