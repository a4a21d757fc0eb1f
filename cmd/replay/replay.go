package main

import (
	"fmt"
	"path/filepath"

	persistlog "traincraft.dev/internal/persistence/log"
	"traincraft.dev/internal/persistence/snapshot"
	"traincraft.dev/internal/protocol"
	"traincraft.dev/internal/sim/catalogs"
	"traincraft.dev/internal/sim/tuning"
	"traincraft.dev/internal/sim/world"
)

type replayResult struct {
	Checked    uint64
	LastTick   uint64
	LastDigest string
}

// newReplayWorld rebuilds the world a tick log was recorded against: either the
// snapshot's trains or a fresh spawn of railway.yaml at tick 0.
func newReplayWorld(configDir, worldID string, snap *snapshot.SnapshotV1) (*world.World, error) {
	cats, err := catalogs.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load catalogs: %w", err)
	}

	if snap != nil {
		cfg := world.WorldConfig{ID: snap.Header.WorldID, TickRateHz: snap.TickRate}
		if cfg.TickRateHz <= 0 {
			cfg.TickRateHz = tuning.Defaults().TickRateHz
		}
		w, err := world.New(cfg, cats)
		if err != nil {
			return nil, fmt.Errorf("world: %w", err)
		}
		if err := w.ImportSnapshot(*snap); err != nil {
			return nil, fmt.Errorf("import snapshot: %w", err)
		}
		return w, nil
	}

	tune, err := tuning.Load(filepath.Join(configDir, "tuning.yaml"))
	if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}
	rw, err := tuning.LoadRailway(filepath.Join(configDir, "railway.yaml"))
	if err != nil {
		return nil, fmt.Errorf("load railway: %w", err)
	}
	cfg := world.ConfigFromTuning(worldID, tune)
	cfg.Obstacles = rw.Obstacles
	w, err := world.New(cfg, cats)
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	for _, sp := range rw.Trains {
		if err := w.Spawn(sp); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// replay re-steps w with every logged tick at or after its current tick and
// compares state digests from verifyFrom on. Commands route by train id, so
// drivers attached before a snapshot do not need to exist.
func replay(w *world.World, files []string, verifyFrom, toTick uint64) (replayResult, error) {
	var res replayResult
	startTick := w.CurrentTick()
	if verifyFrom == 0 {
		verifyFrom = startTick
	}

	for _, path := range files {
		name := filepath.Base(path)
		err := persistlog.ReadTickLog(path, func(entry world.TickLogEntry) error {
			if entry.Tick < startTick {
				return nil
			}
			if toTick != 0 && entry.Tick > toTick {
				return persistlog.ErrStop
			}
			if entry.Tick != w.CurrentTick() {
				return fmt.Errorf("tick mismatch: want=%d got=%d (file=%s)", w.CurrentTick(), entry.Tick, name)
			}

			joins := make([]world.JoinRequest, 0, len(entry.Joins))
			for _, j := range entry.Joins {
				joins = append(joins, world.JoinRequest{DriverName: j.Name, TrainID: j.TrainID})
			}
			cmds := make([]world.CmdEnvelope, 0, len(entry.Cmds))
			for _, rc := range entry.Cmds {
				cmds = append(cmds, world.CmdEnvelope{TrainID: rc.TrainID, Cmds: []protocol.CmdReq{rc.Cmd}})
			}

			tick, digest := w.StepOnce(joins, entry.Leaves, cmds)
			if tick != entry.Tick {
				return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d (file=%s)", tick, entry.Tick, name)
			}
			if tick >= verifyFrom {
				res.Checked++
				if digest != entry.Digest {
					return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
				}
			}
			res.LastTick = tick
			res.LastDigest = digest
			return nil
		})
		if err != nil {
			return res, err
		}
		if toTick != 0 && w.CurrentTick() > toTick {
			break
		}
	}
	return res, nil
}
