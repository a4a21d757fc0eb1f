package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "traincraft.dev/internal/persistence/log"
	"traincraft.dev/internal/persistence/snapshot"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst (optional; replays from tick 0 without one)")
		eventsDir = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		configDir = flag.String("configs", "./configs", "config directory")
		worldID   = flag.String("world", "rail-1", "world id for a replay from tick 0")
		fromTick  = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" && *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot or -events")
		os.Exit(2)
	}

	var snap *snapshot.SnapshotV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d world=%s tick=%d trains=%d tick_rate=%d vehicles=%s\n",
			s.Header.Version, s.Header.WorldID, s.Header.Tick, len(s.Trains), s.TickRate, shortDigest(s.VehiclesDigest))
		for _, t := range s.Trains {
			fmt.Printf("  %s class=%s running=%v accel=%d bogies=%d\n", t.ID, t.ClassID, t.Running, t.Accelerator, len(t.Bogies))
		}
		snap = &s
	}
	if *eventsDir == "" {
		return
	}

	w, err := newReplayWorld(*configDir, *worldID, snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	files, err := persistlog.ListEventFiles(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", *eventsDir)
		os.Exit(1)
	}

	startTick := w.CurrentTick()
	res, err := replay(w, files, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (start tick=%d, last=%d, files=%d)\n", res.Checked, startTick, res.LastTick, len(files))
	if res.LastDigest != "" {
		fmt.Printf("final digest %s (%s)\n", res.LastDigest, filepath.Base(files[len(files)-1]))
	}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
