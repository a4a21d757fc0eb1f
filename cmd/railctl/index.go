package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"traincraft.dev/internal/persistence/indexdb"
)

type indexOptions struct {
	*rootOptions
	Database string
	TrainID  string
	From     uint64
	Limit    int
}

func (o *indexOptions) bind(cmd *cobra.Command, withTrain bool) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to world.sqlite (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&o.Limit, "limit", 100, "max rows")
	if withTrain {
		cmd.Flags().StringVar(&o.TrainID, "train", "", "train id")
	}
}

func (o *indexOptions) open() (*indexdb.Reader, error) {
	r, err := indexdb.OpenReader(o.Database)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return r, nil
}

func newTicksCommand(root *rootOptions) *cobra.Command {
	opts := &indexOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "ticks",
		Short: "List logged ticks and their digests",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.open()
			if err != nil {
				return err
			}
			defer r.Close()
			rows, err := r.Ticks(cmd.Context(), opts.From, opts.Limit)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			for _, t := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%8d %s joins=%d leaves=%d cmds=%d\n", t.Tick, t.Digest, t.Joins, t.Leaves, t.Cmds)
			}
			return nil
		},
	}
	opts.bind(cmd, false)
	cmd.Flags().Uint64Var(&opts.From, "from", 0, "first tick")
	return cmd
}

func newCommandsCommand(root *rootOptions) *cobra.Command {
	opts := &indexOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List commands routed to one train",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.TrainID == "" {
				return fmt.Errorf("--train is required")
			}
			r, err := opts.open()
			if err != nil {
				return err
			}
			defer r.Close()
			rows, err := r.Commands(cmd.Context(), opts.TrainID, opts.Limit)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			for _, c := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%8d #%d %s %s %s\n", c.Tick, c.Seq, c.DriverID, c.CmdID, c.Type)
			}
			return nil
		},
	}
	opts.bind(cmd, true)
	return cmd
}

func newRejectionsCommand(root *rootOptions) *cobra.Command {
	opts := &indexOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "rejections",
		Short: "List rejected commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.open()
			if err != nil {
				return err
			}
			defer r.Close()
			rows, err := r.Rejections(cmd.Context(), opts.TrainID, opts.Limit)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			for _, rr := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%8d %s %s %s %s\n", rr.Tick, rr.TrainID, rr.CmdID, rr.Type, rr.Code)
			}
			return nil
		},
	}
	opts.bind(cmd, true)
	return cmd
}

func newSamplesCommand(root *rootOptions) *cobra.Command {
	opts := &indexOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "samples",
		Short: "List per-tick samples for one train",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.TrainID == "" {
				return fmt.Errorf("--train is required")
			}
			r, err := opts.open()
			if err != nil {
				return err
			}
			defer r.Close()
			rows, err := r.Samples(cmd.Context(), opts.TrainID, opts.From, opts.Limit)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			for _, s := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%8d accel=%+d running=%v collision=%v fuel=%d speed=%.3f pos=(%.2f, %.2f, %.2f)\n",
					s.Tick, s.Accelerator, s.Running, s.Collision, s.FurnaceFuel, s.Speed, s.Pos[0], s.Pos[1], s.Pos[2])
			}
			return nil
		},
	}
	opts.bind(cmd, true)
	cmd.Flags().Uint64Var(&opts.From, "from", 0, "first tick")
	return cmd
}

func newSnapshotsCommand(root *rootOptions) *cobra.Command {
	opts := &indexOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List recorded snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.open()
			if err != nil {
				return err
			}
			defer r.Close()
			rows, err := r.Snapshots(cmd.Context())
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			for _, s := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%8d %s trains=%d %s\n", s.Tick, s.WorldID, s.Trains, s.Path)
			}
			return nil
		},
	}
	opts.bind(cmd, false)
	return cmd
}
