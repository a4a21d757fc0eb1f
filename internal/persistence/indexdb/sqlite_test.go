package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"traincraft.dev/internal/persistence/snapshot"
	"traincraft.dev/internal/protocol"
	"traincraft.dev/internal/sim/catalogs"
	"traincraft.dev/internal/sim/tuning"
	"traincraft.dev/internal/sim/world"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	s.ObserveTick(world.TickSummary{Tick: 2, Trains: []world.TrainSample{{ID: "T1"}}})
	s.ObserveTick(world.TickSummary{Tick: 3})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.DropSampleTotal != 1 {
		t.Fatalf("DropSampleTotal=%d want=1 (empty summaries are skipped)", st.DropSampleTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("DropSnapshotTotal=%d want=1", st.DropSnapshotTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	if err := s.WriteTick(world.TickLogEntry{Tick: 1}); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	s.ObserveTick(world.TickSummary{Tick: 1})
	s.RecordSnapshot("x", snapshot.SnapshotV1{})
	if st := s.Stats(); st != (Stats{}) {
		t.Fatalf("stats=%+v", st)
	}
}

func TestSQLiteIndex_WriteAndQuery(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	if err := idx.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}

	_ = idx.WriteTick(world.TickLogEntry{
		Tick:   0,
		Joins:  []world.RecordedJoin{{DriverID: "D1", TrainID: "T1", Name: "alice"}},
		Digest: "d0",
	})
	_ = idx.WriteTick(world.TickLogEntry{
		Tick: 1,
		Cmds: []world.RecordedCmd{
			{DriverID: "D1", TrainID: "T1", Cmd: protocol.CmdReq{ID: "c1", Type: protocol.CmdStart}},
			{DriverID: "D1", TrainID: "T1", Cmd: protocol.CmdReq{ID: "c2", Type: protocol.CmdThrottleUp}},
		},
		Digest: "d1",
	})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 2, Leaves: []string{"D1"}, Digest: "d2"})

	idx.ObserveTick(world.TickSummary{
		Tick:     1,
		Rejected: []world.RejectedCmd{{TrainID: "T1", CmdID: "c9", Type: protocol.CmdStart, Code: protocol.ErrNoResource}},
		Trains: []world.TrainSample{
			{ID: "T1", Class: "steam_440", Accelerator: 1, Running: true, FurnaceFuel: 80, Speed: 0.25, Pos: [3]float64{1, 64, 0}},
		},
	})
	idx.RecordSnapshot("/tmp/1.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{WorldID: "w1", Tick: 1},
		Trains: []snapshot.TrainV1{{ID: "T1", ClassID: "steam_440", Running: true, FurnaceFuel: 80}},
	})

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := idx.Stats(); st.DropTickTotal != 0 || st.WriteErrTotal != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	r, err := OpenReader(dbPath)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	ticks, err := r.Ticks(ctx, 1, 10)
	if err != nil {
		t.Fatalf("Ticks: %v", err)
	}
	if len(ticks) != 2 || ticks[0].Tick != 1 || ticks[0].Cmds != 2 || ticks[1].Leaves != 1 {
		t.Fatalf("ticks=%+v", ticks)
	}

	cmds, err := r.Commands(ctx, "T1", 10)
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(cmds) != 2 || cmds[0].CmdID != "c1" || cmds[1].Type != protocol.CmdThrottleUp {
		t.Fatalf("cmds=%+v", cmds)
	}

	rej, err := r.Rejections(ctx, "", 10)
	if err != nil {
		t.Fatalf("Rejections: %v", err)
	}
	if len(rej) != 1 || rej[0].Code != protocol.ErrNoResource {
		t.Fatalf("rejections=%+v", rej)
	}

	samples, err := r.Samples(ctx, "T1", 0, 10)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 1 || !samples[0].Running || samples[0].Pos[0] != 1 || samples[0].FurnaceFuel != 80 {
		t.Fatalf("samples=%+v", samples)
	}

	snaps, err := r.Snapshots(ctx)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].WorldID != "w1" || snaps[0].Trains != 1 {
		t.Fatalf("snapshots=%+v", snaps)
	}

	d, err := r.CatalogDigest(ctx, "vehicles")
	if err != nil {
		t.Fatalf("CatalogDigest: %v", err)
	}
	if d != cats.Digest {
		t.Fatalf("vehicles digest=%q want %q", d, cats.Digest)
	}
	if d, _ := r.CatalogDigest(ctx, "nope"); d != "" {
		t.Fatalf("missing catalog digest=%q", d)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := OpenReader(filepath.Join(t.TempDir(), "missing.sqlite")); err == nil {
		t.Fatalf("expected error for missing db")
	}
}
