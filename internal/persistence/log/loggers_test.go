package log

import (
	"testing"

	"traincraft.dev/internal/protocol"
	"traincraft.dev/internal/sim/world"
)

func TestTickLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	want := []world.TickLogEntry{
		{Tick: 0, Joins: []world.RecordedJoin{{DriverID: "D1", TrainID: "T1", Name: "bot"}}, Digest: "a"},
		{Tick: 1, Cmds: []world.RecordedCmd{{TrainID: "T1", Cmd: protocol.CmdReq{ID: "C1", Type: protocol.CmdLoad, Item: "COAL", Count: 2}}}, Digest: "b"},
		{Tick: 2, Leaves: []string{"D1"}, Digest: "c"},
	}
	for _, e := range want {
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListEventFiles(dir + "/events")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("no event files")
	}
	var got []world.TickLogEntry
	for _, f := range files {
		if err := ReadTickLog(f, func(e world.TickLogEntry) error {
			got = append(got, e)
			return nil
		}); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("entries=%d want %d", len(got), len(want))
	}
	if got[1].Cmds[0].Cmd.Item != "COAL" || got[1].Cmds[0].Cmd.Count != 2 {
		t.Fatalf("cmd=%+v", got[1].Cmds[0])
	}
	if got[0].Joins[0].DriverID != "D1" || got[2].Leaves[0] != "D1" || got[2].Digest != "c" {
		t.Fatalf("entries=%+v", got)
	}
}

func TestReadTickLog_Stop(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for i := uint64(0); i < 5; i++ {
		_ = l.WriteTick(world.TickLogEntry{Tick: i})
	}
	_ = l.Close()
	files, _ := ListEventFiles(dir + "/events")
	n := 0
	for _, f := range files {
		err := ReadTickLog(f, func(e world.TickLogEntry) error {
			n++
			if e.Tick == 2 {
				return ErrStop
			}
			return nil
		})
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if n != 3 {
		t.Fatalf("read %d entries before stop", n)
	}
}

func TestAuditLogger_WritesRejections(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	l.ObserveTick(world.TickSummary{Tick: 9, Rejected: []world.RejectedCmd{{TrainID: "T1", CmdID: "C1", Type: "START", Code: protocol.ErrNoResource}}})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if l.Dropped() != 0 {
		t.Fatalf("dropped=%d", l.Dropped())
	}
}
