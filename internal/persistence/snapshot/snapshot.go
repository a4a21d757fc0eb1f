package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	Trains  int    `json:"trains"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Operational parameters (captured for deterministic replay/resume).
	TickRate           int          `json:"tick_rate_hz"`
	SnapshotEveryTicks int          `json:"snapshot_every_ticks,omitempty"`
	BrakeFactor        float64      `json:"brake_factor"`
	CollisionRadius    float64      `json:"collision_radius"`
	RailHeight         float64      `json:"rail_height"`
	RateLimits         RateLimitsV1 `json:"rate_limits,omitempty"`

	VehiclesDigest string `json:"vehicles_digest"`

	Obstacles [][2]int  `json:"obstacles,omitempty"`
	Trains    []TrainV1 `json:"trains"`

	NextDriverNum uint64 `json:"next_driver_num"`
}

type RateLimitsV1 struct {
	CmdWindowTicks int `json:"cmd_window_ticks"`
	CmdMax         int `json:"cmd_max"`
}

type TrainV1 struct {
	ID          string     `json:"id"`
	ClassID     string     `json:"class_id"`
	Owner       string     `json:"owner,omitempty"`
	Destination string     `json:"destination,omitempty"`
	Heading     [2]float64 `json:"heading"`

	Running     bool `json:"running"`
	Brake       bool `json:"brake"`
	FurnaceFuel int  `json:"furnace_fuel"`

	Inventory map[string]int `json:"inventory,omitempty"`
	Tank      TankV1         `json:"tank"`

	Accelerator int        `json:"accelerator"`
	Reverse     bool       `json:"reverse"`
	TickCounter uint64     `json:"tick_counter"`
	Motion      [3]float64 `json:"motion"`
	Bogies      []BogieV1  `json:"bogies"`

	CmdWindow RateWindowV1 `json:"cmd_window,omitempty"`
}

type TankV1 struct {
	Fluid    string `json:"fluid,omitempty"`
	Amount   int    `json:"amount"`
	Capacity int    `json:"capacity"`
}

type BogieV1 struct {
	Pos [3]float64 `json:"pos"`
	Vel [3]float64 `json:"vel"`
}

type RateWindowV1 struct {
	StartTick uint64 `json:"start_tick"`
	Count     int    `json:"count"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	snap.Header.Trains = len(snap.Trains)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}
