package train

import "testing"

func TestRecordRestore_RoundTrip(t *testing.T) {
	cls := DefaultClass()
	cls.MaxSpeed = 2
	src := New(cls, Options{ID: "T9", Owner: "owner-1", Authoritative: true, InventorySlots: 4, TankCapacity: 1000})
	src.AddBogie(Vec3{X: 1}, nil)
	src.AddBogie(Vec3{X: -1}, nil)
	src.SetAcceleration(false)
	src.SetBrake(true)
	src.SetRunning(true)
	src.SetFurnaceFuel(42)
	src.SetDestination("north yard")
	src.Inventory().Add("COAL", 7)
	src.Tank().Fill("WATER", 300)
	src.Bogies()[0].SetVelocity(0.5, 0, 0)
	src.Tick(Env{}, nil)

	rec := src.Record()

	dst := New(cls, Options{Authoritative: true, InventorySlots: 4, TankCapacity: 1000})
	dst.AddBogie(Vec3{}, nil)
	dst.AddBogie(Vec3{}, nil)
	dst.Restore(rec)

	if dst.ID() != "T9" || dst.Owner() != "owner-1" || dst.Destination() != "north yard" {
		t.Fatalf("identity: id=%s owner=%s dest=%s", dst.ID(), dst.Owner(), dst.Destination())
	}
	if dst.State() != src.State() {
		t.Fatalf("state mismatch: %+v vs %+v", dst.State(), src.State())
	}
	if dst.Inventory().Count("COAL") != 7 {
		t.Fatalf("coal=%d", dst.Inventory().Count("COAL"))
	}
	if *dst.Tank() != *src.Tank() {
		t.Fatalf("tank=%+v want %+v", *dst.Tank(), *src.Tank())
	}
	for i := range src.Bogies() {
		a, b := src.Bogies()[i], dst.Bogies()[i]
		if a.Position != b.Position || a.Velocity() != b.Velocity() {
			t.Fatalf("bogie %d: %+v/%+v vs %+v/%+v", i, a.Position, a.Velocity(), b.Position, b.Velocity())
		}
	}
}

func TestRestore_KeepsNegativeFuel(t *testing.T) {
	c := New(DefaultClass(), Options{})
	c.Restore(Record{FurnaceFuel: -5})
	if c.FurnaceFuel() != -5 {
		t.Fatalf("fuel=%d", c.FurnaceFuel())
	}
}

func TestInventory_SlotLimit(t *testing.T) {
	inv := NewInventory(2)
	if inv.Add("COAL", 3) != 3 || inv.Add("WOOD", 1) != 1 {
		t.Fatalf("add failed")
	}
	if got := inv.Add("CHARCOAL", 1); got != 0 {
		t.Fatalf("third kind accepted: %d", got)
	}
	if got := inv.Add("COAL", 2); got != 2 {
		t.Fatalf("existing stack rejected: %d", got)
	}
	if got := inv.Take("COAL", 10); got != 5 {
		t.Fatalf("take=%d", got)
	}
	if got := inv.Add("CHARCOAL", 1); got != 1 {
		t.Fatalf("slot not freed: %d", got)
	}
	if items := inv.SortedItems(); len(items) != 2 || items[0] != "CHARCOAL" || items[1] != "WOOD" {
		t.Fatalf("items=%v", items)
	}
}

func TestTank_FillDrain(t *testing.T) {
	tk := &Tank{Capacity: 100}
	if got := tk.Fill("WATER", 150); got != 100 {
		t.Fatalf("fill=%d", got)
	}
	if got := tk.Fill("DIESEL", 1); got != 0 {
		t.Fatalf("mixed fluid accepted")
	}
	if got := tk.Drain(30); got != 30 || tk.Amount != 70 {
		t.Fatalf("drain=%d amount=%d", got, tk.Amount)
	}
	if got := tk.Drain(100); got != 70 || tk.Fluid != "" {
		t.Fatalf("drain=%d fluid=%q", got, tk.Fluid)
	}
	if got := tk.Fill("DIESEL", 10); got != 10 {
		t.Fatalf("empty tank should accept new fluid")
	}
}
