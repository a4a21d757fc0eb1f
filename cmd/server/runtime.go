package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"traincraft.dev/internal/config"
	"traincraft.dev/internal/logging"
	persistlog "traincraft.dev/internal/persistence/log"
	"traincraft.dev/internal/persistence/snapshot"
	"traincraft.dev/internal/protocol"
	"traincraft.dev/internal/sim/catalogs"
	"traincraft.dev/internal/sim/tuning"
	"traincraft.dev/internal/sim/world"
	"traincraft.dev/internal/telemetry"
)

// serverRuntime owns the world and every sink attached to it.
type serverRuntime struct {
	cfg      config.Config
	log      zerolog.Logger
	worldDir string

	world     *world.World
	cats      *catalogs.Catalogs
	validator *protocol.Validator

	tickLog  *persistlog.TickLogger
	auditLog *persistlog.AuditLogger
	index    runtimeIndex
	influx   *telemetry.InfluxSink

	snapCh chan snapshot.SnapshotV1
}

// buildRuntime loads configs, creates or resumes the world and wires its sinks.
// resume is a snapshot path; "latest" picks the newest snapshot in the world dir.
func buildRuntime(cfg config.Config, log zerolog.Logger) (*serverRuntime, error) {
	rt := &serverRuntime{
		cfg:      cfg,
		log:      log,
		worldDir: filepath.Join(cfg.DataDir, "worlds", cfg.WorldID),
	}
	if err := os.MkdirAll(rt.worldDir, 0o755); err != nil {
		return nil, err
	}

	cats, err := catalogs.Load(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("load catalogs: %w", err)
	}
	rt.cats = cats

	rt.validator, err = protocol.DefaultValidator()
	if err != nil {
		return nil, fmt.Errorf("compile schemas: %w", err)
	}

	snapPath := strings.TrimSpace(cfg.Resume)
	if snapPath == "latest" {
		snapPath = latestSnapshot(rt.worldDir)
	}

	// Tuning is required for a fresh world; a resume takes its values from the snapshot.
	tp := filepath.Join(cfg.ConfigDir, "tuning.yaml")
	tune, err := tuning.Load(tp)
	if err != nil {
		if snapPath == "" || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load tuning: %w", err)
		}
		log.Warn().Str("path", tp).Msg("tuning not found; using defaults")
		tune = tuning.Defaults()
	}

	wcfg := world.ConfigFromTuning(cfg.WorldID, tune)
	wcfg.TuningDigest = tune.Digest()

	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != cfg.WorldID {
			return nil, fmt.Errorf("snapshot world id mismatch: config=%s snap=%s", cfg.WorldID, snap.Header.WorldID)
		}
		if rt.world, err = world.New(wcfg, cats); err != nil {
			return nil, fmt.Errorf("world: %w", err)
		}
		rt.world.SetLogger(logging.Component(log, "world"))
		if err := rt.world.ImportSnapshot(snap); err != nil {
			return nil, fmt.Errorf("import snapshot: %w", err)
		}
		log.Info().Str("snapshot", filepath.Base(snapPath)).Uint64("tick", rt.world.CurrentTick()).Msg("resumed from snapshot")
	} else {
		rw, err := tuning.LoadRailway(filepath.Join(cfg.ConfigDir, "railway.yaml"))
		if err != nil {
			return nil, fmt.Errorf("load railway: %w", err)
		}
		wcfg.Obstacles = rw.Obstacles
		if rt.world, err = world.New(wcfg, cats); err != nil {
			return nil, fmt.Errorf("world: %w", err)
		}
		rt.world.SetLogger(logging.Component(log, "world"))
		for _, sp := range rw.Trains {
			if err := rt.world.Spawn(sp); err != nil {
				return nil, err
			}
		}
		log.Info().Int("trains", len(rw.Trains)).Msg("spawned railway")
	}

	rt.index, err = openRuntimeIndex(cfg.Index, rt.worldDir)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if rt.index != nil {
		if err := rt.index.UpsertCatalogs(cfg.ConfigDir, cats, tune); err != nil {
			log.Warn().Err(err).Msg("index: upsert catalogs")
		}
		rt.world.AddObserver(rt.index)
	}

	rt.tickLog = persistlog.NewTickLogger(rt.worldDir)
	rt.auditLog = persistlog.NewAuditLogger(rt.worldDir)
	rt.world.SetTickLogger(multiTickLogger{a: rt.tickLog, b: rt.index})
	rt.world.AddObserver(rt.auditLog)

	if cfg.Telemetry.Enabled {
		in, err := telemetry.NewInstruments(nil)
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		rt.world.AddObserver(in)
	}
	if cfg.Influx.Enabled {
		rt.influx = telemetry.NewInfluxSink(telemetry.InfluxOptions{
			URL:           cfg.Influx.URL,
			Token:         cfg.Influx.Token,
			Org:           cfg.Influx.Org,
			Bucket:        cfg.Influx.Bucket,
			SampleEvery:   cfg.Influx.SampleEvery,
			FlushInterval: cfg.Influx.FlushInterval,
		}, logging.Component(log, "influx"))
		rt.world.AddObserver(rt.influx)
	}

	rt.snapCh = make(chan snapshot.SnapshotV1, 2)
	rt.world.SetSnapshotSink(rt.snapCh)
	return rt, nil
}

// writeSnapshots persists snapshots the world emits until ctx is done.
func (rt *serverRuntime) writeSnapshots(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-rt.snapCh:
			path := filepath.Join(rt.worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				rt.log.Error().Err(err).Str("path", path).Msg("snapshot write")
				continue
			}
			rt.log.Info().Uint64("tick", snap.Header.Tick).Int("trains", len(snap.Trains)).Msg("snapshot written")
			if rt.index != nil {
				rt.index.RecordSnapshot(path, snap)
			}
		}
	}
}

// Close flushes the sinks. The world loop must have stopped.
func (rt *serverRuntime) Close() {
	if rt.influx != nil {
		rt.influx.Close()
	}
	if rt.auditLog != nil {
		_ = rt.auditLog.Close()
	}
	if rt.tickLog != nil {
		_ = rt.tickLog.Close()
	}
	if rt.index != nil {
		_ = rt.index.Close()
	}
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
