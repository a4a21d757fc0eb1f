// Package fuel implements the per-class fuel policies run on the fuel
// check cadence of authoritative trains.
package fuel

import (
	"traincraft.dev/internal/sim/catalogs"
	"traincraft.dev/internal/sim/train"
)

// Stall reasons.
const (
	ReasonNoFuel  = "NO_FUEL"
	ReasonNoWater = "NO_WATER"
)

// Result reports what one fuel check did.
type Result struct {
	// Loaded is furnace fuel gained from inventory items.
	Loaded int
	// Burned is furnace fuel or tank fluid consumed.
	Burned int
	// Stalled is set when the check turned the engine off.
	Stalled bool
	Reason  string
}

type Manager struct {
	cats *catalogs.Catalogs

	water string
}

func NewManager(cats *catalogs.Catalogs) *Manager {
	return &Manager{cats: cats, water: "WATER"}
}

// Manage runs the policy for the controller's class. Unknown classes are left alone.
func (m *Manager) Manage(c *train.Controller) Result {
	return m.run(c, true)
}

// Prime refreshes furnaceFuel from the train's stores without burning anything or
// changing isRunning. It runs at spawn and after a driver restocks the train, so
// START sees fuel that arrived between checks.
func (m *Manager) Prime(c *train.Controller) Result {
	return m.run(c, false)
}

func (m *Manager) run(c *train.Controller, burn bool) Result {
	if m == nil || c == nil {
		return Result{}
	}
	def, ok := m.cats.Vehicle(c.Class().ID)
	if !ok {
		return Result{}
	}
	switch def.FuelKind {
	case catalogs.FuelSteam:
		return m.steam(c, def, burn)
	case catalogs.FuelDiesel:
		return m.diesel(c, def, burn)
	case catalogs.FuelElectric:
		c.SetFurnaceFuel(c.Class().MaxFuel)
	}
	return Result{}
}

func (m *Manager) steam(c *train.Controller, def catalogs.VehicleDef, burn bool) Result {
	var res Result
	maxFuel := c.Class().MaxFuel
	fuel := c.FurnaceFuel()
	inv := c.Inventory()
	for _, item := range m.cats.Fuels.Order {
		bv := m.cats.Fuels.BurnValue[item]
		for inv.Count(item) > 0 && fuel+bv <= maxFuel {
			inv.Take(item, 1)
			fuel += bv
			res.Loaded += bv
		}
	}

	if burn && c.Running() {
		if fuel <= 0 {
			res.Stalled, res.Reason = true, ReasonNoFuel
		} else {
			use := def.BurnPerCheck
			if use > fuel {
				use = fuel
			}
			fuel -= use
			res.Burned = use
			if need := def.WaterPerCheck; need > 0 {
				tank := c.Tank()
				got := 0
				if tank.Fluid == m.water {
					got = tank.Drain(need)
				}
				if got < need {
					res.Stalled, res.Reason = true, ReasonNoWater
				}
			}
		}
		if res.Stalled {
			c.SetRunning(false)
		}
	}
	c.SetFurnaceFuel(fuel)
	return res
}

func (m *Manager) diesel(c *train.Controller, def catalogs.VehicleDef, burn bool) Result {
	var res Result
	tank := c.Tank()
	if def.TankFluid != "" && tank.Amount > 0 && tank.Fluid != def.TankFluid {
		// Wrong fluid never burns.
		if burn && c.Running() {
			c.SetRunning(false)
			res.Stalled, res.Reason = true, ReasonNoFuel
		}
		c.SetFurnaceFuel(0)
		return res
	}
	if burn && c.Running() {
		need := def.BurnPerCheck
		got := tank.Drain(need)
		res.Burned = got
		if got < need || tank.Amount == 0 {
			c.SetRunning(false)
			res.Stalled, res.Reason = true, ReasonNoFuel
		}
	}
	// Rounded up so a tank holding any fuel never reads as empty.
	level := 0
	if tank.Capacity > 0 && tank.Amount > 0 {
		level = (tank.Amount*c.Class().MaxFuel + tank.Capacity - 1) / tank.Capacity
	}
	c.SetFurnaceFuel(level)
	return res
}
