package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"traincraft.dev/internal/persistence/snapshot"
)

type adminOptions struct {
	*rootOptions
	BaseURL string
}

func adminRequest(cmd *cobra.Command, method, u string, timeout time.Duration) error {
	req, err := http.NewRequestWithContext(cmd.Context(), method, u, nil)
	if err != nil {
		return err
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s", method, u, resp.Status)
	}
	return nil
}

func newStateCommand(root *rootOptions) *cobra.Command {
	opts := &adminOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the live world state from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			u := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/") + "/admin/v1/state"
			return adminRequest(cmd, http.MethodGet, u, 5*time.Second)
		},
	}
	cmd.Flags().StringVar(&opts.BaseURL, "url", "http://127.0.0.1:8080", "server base url")
	return cmd
}

func newSnapshotCommand(root *rootOptions) *cobra.Command {
	opts := &adminOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Ask a running server to write a snapshot now",
		RunE: func(cmd *cobra.Command, args []string) error {
			u := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/") + "/admin/v1/snapshot"
			return adminRequest(cmd, http.MethodPost, u, 10*time.Second)
		},
	}
	cmd.Flags().StringVar(&opts.BaseURL, "url", "http://127.0.0.1:8080", "server base url")
	return cmd
}

type listedSnapshot struct {
	Path   string `json:"path"`
	Tick   uint64 `json:"tick"`
	Trains int    `json:"trains"`
}

func newListCommand(root *rootOptions) *cobra.Command {
	var dataDir, worldID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List worlds, or one world's snapshots, under a data dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			base := filepath.Join(dataDir, "worlds")
			if worldID == "" {
				ents, err := os.ReadDir(base)
				if err != nil {
					return err
				}
				for _, e := range ents {
					if e.IsDir() {
						fmt.Fprintln(cmd.OutOrStdout(), e.Name())
					}
				}
				return nil
			}

			dir := filepath.Join(base, worldID, "snapshots")
			ents, err := os.ReadDir(dir)
			if err != nil {
				return err
			}
			var out []listedSnapshot
			for _, e := range ents {
				if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
					continue
				}
				p := filepath.Join(dir, e.Name())
				h, err := snapshot.ReadHeader(p)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "skip %s: %v\n", e.Name(), err)
					continue
				}
				out = append(out, listedSnapshot{Path: p, Tick: h.Tick, Trains: h.Trains})
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
			if root.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			for _, s := range out {
				fmt.Fprintf(cmd.OutOrStdout(), "%8d trains=%d %s\n", s.Tick, s.Trains, s.Path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data", "./data", "runtime data directory")
	cmd.Flags().StringVar(&worldID, "world", "", "world id (lists its snapshots)")
	return cmd
}
