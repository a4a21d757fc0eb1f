package fuel

import (
	"testing"

	"traincraft.dev/internal/sim/catalogs"
	"traincraft.dev/internal/sim/train"
)

func loadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	c, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	return c
}

func newTrain(t *testing.T, cats *catalogs.Catalogs, id string) *train.Controller {
	t.Helper()
	def, ok := cats.Vehicle(id)
	if !ok {
		t.Fatalf("missing vehicle %s", id)
	}
	return train.New(def.Class(), train.Options{
		ID:             "T1",
		Authoritative:  true,
		InventorySlots: def.InventorySlots,
		TankCapacity:   def.TankCapacity,
	})
}

func TestSteam_TopUpFitsUnderMax(t *testing.T) {
	cats := loadCatalogs(t)
	c := newTrain(t, cats, "steam_440")
	c.Inventory().Add("COAL", 5)
	c.SetFurnaceFuel(10)

	res := NewManager(cats).Manage(c)
	// COAL is worth 40: 10+40+40 = 90, a third would overflow 100.
	if c.FurnaceFuel() != 90 || res.Loaded != 80 {
		t.Fatalf("fuel=%d loaded=%d", c.FurnaceFuel(), res.Loaded)
	}
	if c.Inventory().Count("COAL") != 3 {
		t.Fatalf("coal=%d", c.Inventory().Count("COAL"))
	}
}

func TestSteam_RunningBurnsFuelAndWater(t *testing.T) {
	cats := loadCatalogs(t)
	c := newTrain(t, cats, "steam_440")
	c.SetFurnaceFuel(50)
	c.SetRunning(true)
	c.Tank().Fill("WATER", 100)

	res := NewManager(cats).Manage(c)
	if res.Stalled || c.FurnaceFuel() != 48 || c.Tank().Amount != 95 {
		t.Fatalf("res=%+v fuel=%d water=%d", res, c.FurnaceFuel(), c.Tank().Amount)
	}
}

func TestSteam_StallsWithoutWater(t *testing.T) {
	cats := loadCatalogs(t)
	c := newTrain(t, cats, "steam_440")
	c.SetFurnaceFuel(50)
	c.SetRunning(true)
	c.Tank().Fill("WATER", 3)

	res := NewManager(cats).Manage(c)
	if !res.Stalled || res.Reason != ReasonNoWater || c.Running() {
		t.Fatalf("res=%+v running=%v", res, c.Running())
	}
}

func TestSteam_StallsWithoutFuel(t *testing.T) {
	cats := loadCatalogs(t)
	c := newTrain(t, cats, "steam_440")
	c.SetRunning(true)
	c.Tank().Fill("WATER", 100)
	for i := 0; i < 3; i++ {
		NewManager(cats).Manage(c)
	}
	if c.Running() || c.FurnaceFuel() < 0 {
		t.Fatalf("running=%v fuel=%d", c.Running(), c.FurnaceFuel())
	}
}

func TestDiesel_MirrorsTankLevel(t *testing.T) {
	cats := loadCatalogs(t)
	c := newTrain(t, cats, "diesel_shunter")
	c.Tank().Fill("DIESEL", 500)
	m := NewManager(cats)

	m.Manage(c)
	if c.FurnaceFuel() != 50 {
		t.Fatalf("idle mirror fuel=%d", c.FurnaceFuel())
	}
	c.SetRunning(true)
	res := m.Manage(c)
	if res.Burned != 1 || c.Tank().Amount != 499 || c.FurnaceFuel() != 50 {
		t.Fatalf("res=%+v tank=%d fuel=%d", res, c.Tank().Amount, c.FurnaceFuel())
	}
}

func TestDiesel_EmptyTankStalls(t *testing.T) {
	cats := loadCatalogs(t)
	c := newTrain(t, cats, "diesel_shunter")
	c.Tank().Fill("DIESEL", 1)
	c.SetRunning(true)

	res := NewManager(cats).Manage(c)
	if !res.Stalled || c.Running() || c.FurnaceFuel() != 0 {
		t.Fatalf("res=%+v running=%v fuel=%d", res, c.Running(), c.FurnaceFuel())
	}
}

func TestElectric_PinnedToMax(t *testing.T) {
	cats := loadCatalogs(t)
	c := newTrain(t, cats, "electric_emu")
	c.SetRunning(true)
	NewManager(cats).Manage(c)
	if c.FurnaceFuel() != c.Class().MaxFuel || !c.Running() {
		t.Fatalf("fuel=%d running=%v", c.FurnaceFuel(), c.Running())
	}
}

func TestUnknownClassIsNoop(t *testing.T) {
	cats := loadCatalogs(t)
	cls := train.DefaultClass()
	cls.ID = "not_in_catalog"
	c := train.New(cls, train.Options{})
	c.SetFurnaceFuel(7)
	c.SetRunning(true)
	if res := NewManager(cats).Manage(c); res != (Result{}) {
		t.Fatalf("res=%+v", res)
	}
	if c.FurnaceFuel() != 7 || !c.Running() {
		t.Fatalf("state changed")
	}
}

func TestDiesel_LowTankStillReadsFuel(t *testing.T) {
	cats := loadCatalogs(t)
	c := newTrain(t, cats, "diesel_shunter")
	c.Tank().Fill("DIESEL", 3)

	NewManager(cats).Manage(c)
	if c.FurnaceFuel() != 1 {
		t.Fatalf("fuel=%d with tank=%d", c.FurnaceFuel(), c.Tank().Amount)
	}
}

func TestPrime_RefreshesWithoutBurning(t *testing.T) {
	cats := loadCatalogs(t)
	m := NewManager(cats)

	steam := newTrain(t, cats, "steam_440")
	steam.SetRunning(true)
	steam.Inventory().Add("COAL", 1)
	steam.Tank().Fill("WATER", 100)
	res := m.Prime(steam)
	if res.Loaded != 40 || res.Burned != 0 || res.Stalled {
		t.Fatalf("steam res=%+v", res)
	}
	if steam.FurnaceFuel() != 40 || steam.Tank().Amount != 100 || !steam.Running() {
		t.Fatalf("steam fuel=%d water=%d running=%v", steam.FurnaceFuel(), steam.Tank().Amount, steam.Running())
	}

	diesel := newTrain(t, cats, "diesel_shunter")
	diesel.Tank().Fill("DIESEL", 900)
	if res := m.Prime(diesel); res.Burned != 0 || diesel.FurnaceFuel() != 90 || diesel.Tank().Amount != 900 {
		t.Fatalf("diesel res=%+v fuel=%d tank=%d", res, diesel.FurnaceFuel(), diesel.Tank().Amount)
	}

	// An empty running steam train is not stalled by a prime.
	empty := newTrain(t, cats, "steam_440")
	empty.SetRunning(true)
	if res := m.Prime(empty); res.Stalled || !empty.Running() {
		t.Fatalf("prime stalled: %+v", res)
	}
}
