package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

// Reader runs queries against an index written by SQLiteIndex.
type Reader struct {
	db *sql.DB
}

type TickRow struct {
	Tick   uint64 `json:"tick"`
	Digest string `json:"digest"`
	Joins  int    `json:"joins"`
	Leaves int    `json:"leaves"`
	Cmds   int    `json:"cmds"`
}

type CommandRow struct {
	Tick     uint64 `json:"tick"`
	Seq      int    `json:"seq"`
	DriverID string `json:"driver_id"`
	TrainID  string `json:"train_id"`
	CmdID    string `json:"cmd_id"`
	Type     string `json:"cmd_type"`
}

type RejectionRow struct {
	Tick    uint64 `json:"tick"`
	TrainID string `json:"train_id"`
	CmdID   string `json:"cmd_id"`
	Type    string `json:"cmd_type"`
	Code    string `json:"code"`
}

type SampleRow struct {
	Tick        uint64     `json:"tick"`
	TrainID     string     `json:"train_id"`
	Accelerator int        `json:"accelerator"`
	Running     bool       `json:"running"`
	Collision   bool       `json:"collision"`
	FurnaceFuel int        `json:"furnace_fuel"`
	Speed       float64    `json:"speed"`
	Pos         [3]float64 `json:"pos"`
}

type SnapshotRow struct {
	Tick    uint64 `json:"tick"`
	Path    string `json:"path"`
	WorldID string `json:"world_id"`
	Trains  int    `json:"trains"`
}

func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

func clampLimit(limit int) int {
	if limit <= 0 || limit > 10000 {
		return 100
	}
	return limit
}

// Ticks returns tick rows with tick >= from, in tick order.
func (r *Reader) Ticks(ctx context.Context, from uint64, limit int) ([]TickRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tick,digest,joins,leaves,cmds FROM ticks WHERE tick >= ? ORDER BY tick LIMIT ?`,
		int64(from), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TickRow
	for rows.Next() {
		var t TickRow
		var tick int64
		if err := rows.Scan(&tick, &t.Digest, &t.Joins, &t.Leaves, &t.Cmds); err != nil {
			return nil, err
		}
		t.Tick = uint64(tick)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Commands returns the commands routed to one train, oldest first.
func (r *Reader) Commands(ctx context.Context, trainID string, limit int) ([]CommandRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tick,seq,driver_id,train_id,cmd_id,cmd_type FROM commands WHERE train_id = ? ORDER BY tick, seq LIMIT ?`,
		trainID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CommandRow
	for rows.Next() {
		var c CommandRow
		var tick int64
		if err := rows.Scan(&tick, &c.Seq, &c.DriverID, &c.TrainID, &c.CmdID, &c.Type); err != nil {
			return nil, err
		}
		c.Tick = uint64(tick)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Rejections returns rejected commands; an empty trainID matches every train.
func (r *Reader) Rejections(ctx context.Context, trainID string, limit int) ([]RejectionRow, error) {
	q := `SELECT tick,train_id,cmd_id,cmd_type,code FROM rejections`
	args := []any{}
	if trainID != "" {
		q += ` WHERE train_id = ?`
		args = append(args, trainID)
	}
	q += ` ORDER BY tick, seq LIMIT ?`
	args = append(args, clampLimit(limit))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RejectionRow
	for rows.Next() {
		var rr RejectionRow
		var tick int64
		if err := rows.Scan(&tick, &rr.TrainID, &rr.CmdID, &rr.Type, &rr.Code); err != nil {
			return nil, err
		}
		rr.Tick = uint64(tick)
		out = append(out, rr)
	}
	return out, rows.Err()
}

// Samples returns one train's samples with tick >= from.
func (r *Reader) Samples(ctx context.Context, trainID string, from uint64, limit int) ([]SampleRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tick,train_id,accelerator,running,collision,furnace_fuel,speed,x,y,z
		 FROM train_samples WHERE train_id = ? AND tick >= ? ORDER BY tick LIMIT ?`,
		trainID, int64(from), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SampleRow
	for rows.Next() {
		var sr SampleRow
		var tick int64
		var running, collision int
		if err := rows.Scan(&tick, &sr.TrainID, &sr.Accelerator, &running, &collision, &sr.FurnaceFuel,
			&sr.Speed, &sr.Pos[0], &sr.Pos[1], &sr.Pos[2]); err != nil {
			return nil, err
		}
		sr.Tick = uint64(tick)
		sr.Running = running != 0
		sr.Collision = collision != 0
		out = append(out, sr)
	}
	return out, rows.Err()
}

func (r *Reader) Snapshots(ctx context.Context) ([]SnapshotRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tick,path,world_id,trains FROM snapshots ORDER BY tick`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var sr SnapshotRow
		var tick int64
		if err := rows.Scan(&tick, &sr.Path, &sr.WorldID, &sr.Trains); err != nil {
			return nil, err
		}
		sr.Tick = uint64(tick)
		out = append(out, sr)
	}
	return out, rows.Err()
}

// CatalogDigest returns the stored digest for a catalog row, or "" when missing.
func (r *Reader) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := r.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name = ?`, name).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}
