package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"traincraft.dev/internal/persistence/snapshot"
)

type inspectReport struct {
	Version         int           `json:"version"`
	WorldID         string        `json:"world_id"`
	Tick            uint64        `json:"tick"`
	TickRateHz      int           `json:"tick_rate_hz"`
	BrakeFactor     float64       `json:"brake_factor"`
	CollisionRadius float64       `json:"collision_radius"`
	RailHeight      float64       `json:"rail_height"`
	CmdMax          int           `json:"cmd_max"`
	CmdWindowTicks  int           `json:"cmd_window_ticks"`
	VehiclesDigest  string        `json:"vehicles_digest"`
	Obstacles       int           `json:"obstacles"`
	NextDriverNum   uint64        `json:"next_driver_num"`
	Trains          []trainReport `json:"trains"`
}

type trainReport struct {
	ID          string             `json:"id"`
	Class       string             `json:"class"`
	Owner       string             `json:"owner,omitempty"`
	Destination string             `json:"destination,omitempty"`
	Running     bool               `json:"running"`
	Brake       bool               `json:"brake"`
	Reverse     bool               `json:"reverse"`
	Accelerator int                `json:"accelerator"`
	Speed       float64            `json:"speed"`
	FurnaceFuel int                `json:"furnace_fuel"`
	Tank        snapshot.TankV1    `json:"tank"`
	Inventory   map[string]int     `json:"inventory,omitempty"`
	Bogies      []snapshot.BogieV1 `json:"bogies"`
}

func newInspectCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <snapshot.snap.zst>",
		Short: "Summarise a world snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := snapshot.ReadSnapshot(args[0])
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			rep := buildInspectReport(snap)
			if root.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			writeInspectText(cmd.OutOrStdout(), rep)
			return nil
		},
	}
}

func buildInspectReport(s snapshot.SnapshotV1) inspectReport {
	rep := inspectReport{
		Version:         s.Header.Version,
		WorldID:         s.Header.WorldID,
		Tick:            s.Header.Tick,
		TickRateHz:      s.TickRate,
		BrakeFactor:     s.BrakeFactor,
		CollisionRadius: s.CollisionRadius,
		RailHeight:      s.RailHeight,
		CmdMax:          s.RateLimits.CmdMax,
		CmdWindowTicks:  s.RateLimits.CmdWindowTicks,
		VehiclesDigest:  s.VehiclesDigest,
		Obstacles:       len(s.Obstacles),
		NextDriverNum:   s.NextDriverNum,
		Trains:          make([]trainReport, 0, len(s.Trains)),
	}
	for _, t := range s.Trains {
		rep.Trains = append(rep.Trains, trainReport{
			ID:          t.ID,
			Class:       t.ClassID,
			Owner:       t.Owner,
			Destination: t.Destination,
			Running:     t.Running,
			Brake:       t.Brake,
			Reverse:     t.Reverse,
			Accelerator: t.Accelerator,
			Speed:       math.Hypot(t.Motion[0], t.Motion[2]),
			FurnaceFuel: t.FurnaceFuel,
			Tank:        t.Tank,
			Inventory:   t.Inventory,
			Bogies:      t.Bogies,
		})
	}
	sort.Slice(rep.Trains, func(i, j int) bool { return rep.Trains[i].ID < rep.Trains[j].ID })
	return rep
}

func writeInspectText(w io.Writer, r inspectReport) {
	fmt.Fprintf(w, "snapshot v%d world=%s tick=%d trains=%d\n", r.Version, r.WorldID, r.Tick, len(r.Trains))
	fmt.Fprintf(w, "tick_rate=%dHz brake_factor=%.2f collision_radius=%.2f rail_height=%.1f\n",
		r.TickRateHz, r.BrakeFactor, r.CollisionRadius, r.RailHeight)
	fmt.Fprintf(w, "rate_limit=%d/%d ticks obstacles=%d next_driver=%d vehicles=%s\n",
		r.CmdMax, r.CmdWindowTicks, r.Obstacles, r.NextDriverNum, r.VehiclesDigest)
	for _, t := range r.Trains {
		fmt.Fprintf(w, "\n%s class=%s", t.ID, t.Class)
		if t.Owner != "" {
			fmt.Fprintf(w, " owner=%s", t.Owner)
		}
		if t.Destination != "" {
			fmt.Fprintf(w, " dest=%s", t.Destination)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  running=%v brake=%v reverse=%v accel=%+d speed=%.3f fuel=%d\n",
			t.Running, t.Brake, t.Reverse, t.Accelerator, t.Speed, t.FurnaceFuel)
		fluid := t.Tank.Fluid
		if fluid == "" {
			fluid = "-"
		}
		fmt.Fprintf(w, "  tank=%s %d/%d stores=%s\n", fluid, t.Tank.Amount, t.Tank.Capacity, formatStores(t.Inventory))
		for i, b := range t.Bogies {
			fmt.Fprintf(w, "  bogie[%d] pos=(%.2f, %.2f, %.2f) vel=(%.3f, %.3f, %.3f)\n",
				i, b.Pos[0], b.Pos[1], b.Pos[2], b.Vel[0], b.Vel[1], b.Vel[2])
		}
	}
}

func formatStores(inv map[string]int) string {
	if len(inv) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(inv))
	for k := range inv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", k, inv[k]))
	}
	return strings.Join(parts, ",")
}
