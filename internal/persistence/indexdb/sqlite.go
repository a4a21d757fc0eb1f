package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"traincraft.dev/internal/persistence/snapshot"
	"traincraft.dev/internal/sim/catalogs"
	"traincraft.dev/internal/sim/tuning"
	"traincraft.dev/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index of the tick log, per-train samples,
// rejected commands and snapshots. The JSONL tick log stays the source of truth:
// writes are queued and dropped when the writer falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropSample   atomic.Uint64
	dropSnapshot atomic.Uint64
	writeErrs    atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSummary
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	summary  world.TickSummary
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick           uint64
	Path           string
	WorldID        string
	VehiclesDigest string
	Trains         []snapshot.TrainV1
}

// Stats is a point-in-time view of the writer queue.
type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropTickTotal     uint64
	DropSampleTotal   uint64
	DropSnapshotTotal uint64
	WriteErrTotal     uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			cmds INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS joins (
			tick INTEGER NOT NULL,
			driver_id TEXT NOT NULL,
			train_id TEXT NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (tick, driver_id)
		);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			tick INTEGER NOT NULL,
			driver_id TEXT NOT NULL,
			PRIMARY KEY (tick, driver_id)
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			driver_id TEXT NOT NULL,
			train_id TEXT NOT NULL,
			cmd_id TEXT NOT NULL,
			cmd_type TEXT NOT NULL,
			cmd_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_train_tick ON commands(train_id, tick);`,
		`CREATE TABLE IF NOT EXISTS rejections (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			train_id TEXT NOT NULL,
			cmd_id TEXT NOT NULL,
			cmd_type TEXT NOT NULL,
			code TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rejections_train_tick ON rejections(train_id, tick);`,
		`CREATE TABLE IF NOT EXISTS train_samples (
			tick INTEGER NOT NULL,
			train_id TEXT NOT NULL,
			class_id TEXT NOT NULL,
			accelerator INTEGER NOT NULL,
			brake INTEGER NOT NULL,
			running INTEGER NOT NULL,
			collision INTEGER NOT NULL,
			furnace_fuel INTEGER NOT NULL,
			tank_amount INTEGER NOT NULL,
			speed REAL NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			PRIMARY KEY (train_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			world_id TEXT NOT NULL,
			trains INTEGER NOT NULL,
			vehicles_digest TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshot_trains (
			tick INTEGER NOT NULL,
			train_id TEXT NOT NULL,
			class_id TEXT NOT NULL,
			owner TEXT NOT NULL,
			destination TEXT NOT NULL,
			running INTEGER NOT NULL,
			furnace_fuel INTEGER NOT NULL,
			tank_fluid TEXT NOT NULL,
			tank_amount INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, train_id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes queued writes and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropSampleTotal:   s.dropSample.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WriteErrTotal:     s.writeErrs.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

// WriteTick implements world.TickLogger.
func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

// ObserveTick implements world.TickObserver. It indexes train samples and rejections.
func (s *SQLiteIndex) ObserveTick(sum world.TickSummary) {
	if s == nil {
		return
	}
	if len(sum.Trains) == 0 && len(sum.Rejected) == 0 {
		return
	}
	s.enqueue(req{kind: reqSummary, summary: sum}, &s.dropSample)
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Tick:           snap.Header.Tick,
		Path:           path,
		WorldID:        snap.Header.WorldID,
		VehiclesDigest: snap.VehiclesDigest,
		Trains:         snap.Trains,
	}}, &s.dropSnapshot)
}

// UpsertCatalogs stores the vehicle catalog file and the applied tuning so a
// database can be interpreted without the configs directory.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if cats != nil {
		if b, err := json.Marshal(vehicleList(cats)); err == nil {
			rows = append(rows, kv{name: "vehicles", digest: cats.Digest, json: b})
		}
	}
	if configDir != "" {
		if raw, err := os.ReadFile(filepath.Join(configDir, "railway.yaml")); err == nil {
			b, _ := json.Marshal(string(raw))
			rows = append(rows, kv{name: "railway", digest: sha256Hex(raw), json: b})
		}
	}
	if b, err := json.Marshal(tune); err == nil {
		rows = append(rows, kv{name: "tuning", digest: sha256Hex(b), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func vehicleList(cats *catalogs.Catalogs) []catalogs.VehicleDef {
	out := make([]catalogs.VehicleDef, 0, len(cats.Vehicles.IDs))
	for _, id := range cats.Vehicles.IDs {
		out = append(out, cats.Vehicles.ByID[id])
	}
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	prep := func(q string) *sql.Stmt {
		st, err := s.db.Prepare(q)
		if err != nil {
			return nil
		}
		return st
	}
	insertTick := prep(`INSERT OR REPLACE INTO ticks(tick,digest,joins,leaves,cmds,raw_json) VALUES(?,?,?,?,?,?)`)
	insertJoin := prep(`INSERT OR REPLACE INTO joins(tick,driver_id,train_id,name) VALUES(?,?,?,?)`)
	insertLeave := prep(`INSERT OR REPLACE INTO leaves(tick,driver_id) VALUES(?,?)`)
	insertCmd := prep(`INSERT OR REPLACE INTO commands(tick,seq,driver_id,train_id,cmd_id,cmd_type,cmd_json) VALUES(?,?,?,?,?,?,?)`)
	insertReject := prep(`INSERT OR REPLACE INTO rejections(tick,seq,train_id,cmd_id,cmd_type,code) VALUES(?,?,?,?,?,?)`)
	insertSample := prep(`INSERT OR REPLACE INTO train_samples(tick,train_id,class_id,accelerator,brake,running,collision,furnace_fuel,tank_amount,speed,x,y,z) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot := prep(`INSERT OR REPLACE INTO snapshots(tick,path,world_id,trains,vehicles_digest) VALUES(?,?,?,?,?)`)
	insertSnapTrain := prep(`INSERT OR REPLACE INTO snapshot_trains(tick,train_id,class_id,owner,destination,running,furnace_fuel,tank_fluid,tank_amount,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	stmts := []*sql.Stmt{insertTick, insertJoin, insertLeave, insertCmd, insertReject, insertSample, insertSnapshot, insertSnapTrain}
	defer func() {
		for _, st := range stmts {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	end := func(commit bool) {
		if tx == nil {
			return
		}
		if commit {
			_ = tx.Commit()
		} else {
			_ = tx.Rollback()
			s.writeErrs.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	// exec runs one insert inside the open tx; a failure rolls the batch back.
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			end(false)
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			raw, _ := json.Marshal(e)
			if !exec(insertTick, int64(e.Tick), e.Digest, len(e.Joins), len(e.Leaves), len(e.Cmds), string(raw)) {
				continue
			}
			for _, j := range e.Joins {
				if !exec(insertJoin, int64(e.Tick), j.DriverID, j.TrainID, j.Name) {
					break
				}
			}
			for _, id := range e.Leaves {
				if !exec(insertLeave, int64(e.Tick), id) {
					break
				}
			}
			for i, c := range e.Cmds {
				cj, _ := json.Marshal(c.Cmd)
				if !exec(insertCmd, int64(e.Tick), i, c.DriverID, c.TrainID, c.Cmd.ID, c.Cmd.Type, string(cj)) {
					break
				}
			}

		case reqSummary:
			sum := r.summary
			for i, rej := range sum.Rejected {
				if !exec(insertReject, int64(sum.Tick), i, rej.TrainID, rej.CmdID, rej.Type, rej.Code) {
					break
				}
			}
			for _, ts := range sum.Trains {
				if !exec(insertSample, int64(sum.Tick), ts.ID, ts.Class, ts.Accelerator,
					boolInt(ts.Brake), boolInt(ts.Running), boolInt(ts.Collision),
					ts.FurnaceFuel, ts.TankAmount, ts.Speed, ts.Pos[0], ts.Pos[1], ts.Pos[2]) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			if !exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.WorldID, len(sn.Trains), sn.VehiclesDigest) {
				continue
			}
			for _, tr := range sn.Trains {
				raw, _ := json.Marshal(tr)
				if !exec(insertSnapTrain, int64(sn.Tick), tr.ID, tr.ClassID, tr.Owner, tr.Destination,
					boolInt(tr.Running), tr.FurnaceFuel, tr.Tank.Fluid, tr.Tank.Amount, string(raw)) {
					break
				}
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			end(true)
		}
	}

	end(true)
}
