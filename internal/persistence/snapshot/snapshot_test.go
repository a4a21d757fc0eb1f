package snapshot

import (
	"path/filepath"
	"reflect"
	"testing"
)

func sampleSnapshot() SnapshotV1 {
	return SnapshotV1{
		Header:          Header{WorldID: "main", Tick: 120},
		TickRate:        20,
		BrakeFactor:     0.8,
		CollisionRadius: 1,
		RailHeight:      64,
		RateLimits:      RateLimitsV1{CmdWindowTicks: 20, CmdMax: 40},
		VehiclesDigest:  "abc",
		Obstacles:       [][2]int{{120, 0}},
		Trains: []TrainV1{{
			ID:          "T1",
			ClassID:     "steam_440",
			Heading:     [2]float64{1, 0},
			Running:     true,
			FurnaceFuel: -3,
			Inventory:   map[string]int{"COAL": 4},
			Tank:        TankV1{Fluid: "WATER", Amount: 10, Capacity: 2000},
			Accelerator: -2,
			Reverse:     true,
			TickCounter: 120,
			Motion:      [3]float64{0.25, 0, 0},
			Bogies:      []BogieV1{{Pos: [3]float64{2.5, 64, 0}, Vel: [3]float64{0.25, 0, 0}}},
			CmdWindow:   RateWindowV1{StartTick: 100, Count: 3},
		}},
		NextDriverNum: 2,
	}
}

func TestWriteReadSnapshot_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "120.snap.zst")
	src := sampleSnapshot()
	if err := WriteSnapshot(path, src); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	src.Header.Version = Version
	src.Header.Trains = 1
	if !reflect.DeepEqual(got, src) {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, src)
	}
}

func TestReadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.snap.zst")
	if err := WriteSnapshot(path, sampleSnapshot()); err != nil {
		t.Fatalf("write: %v", err)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.Version != Version || h.Tick != 120 || h.WorldID != "main" || h.Trains != 1 {
		t.Fatalf("header=%+v", h)
	}
}

func TestReadSnapshot_Missing(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.snap.zst")); err == nil {
		t.Fatalf("expected error")
	}
}
