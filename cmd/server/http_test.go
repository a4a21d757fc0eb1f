package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traincraft.dev/internal/config"
	"traincraft.dev/internal/persistence/snapshot"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		WorldID:   "test-1",
		ConfigDir: filepath.Join("..", "..", "configs"),
		DataDir:   t.TempDir(),
		HTTP:      config.HTTPConfig{Addr: "127.0.0.1:0", AdminLoopbackOnly: true},
		Log:       config.LogConfig{Level: "error"},
		Index:     config.IndexConfig{Enabled: true},
	}
}

func newTestRuntime(t *testing.T, cfg config.Config) *serverRuntime {
	t.Helper()
	rt, err := buildRuntime(cfg, zerolog.Nop())
	require.NoError(t, err)
	return rt
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	rt := newTestRuntime(t, testConfig(t))
	t.Cleanup(rt.Close)
	for i := 0; i < 3; i++ {
		rt.world.StepOnce(nil, nil, nil)
	}
	mux := rt.newMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `traincraft_world_tick{world="test-1"} 3`)
	assert.Contains(t, body, `traincraft_world_trains{world="test-1"} 3`)
	assert.Contains(t, body, `traincraft_world_queue_depth{world="test-1",queue="inbox"} 0`)
	assert.Contains(t, body, "# TYPE traincraft_index_dropped_total counter")
	assert.NotContains(t, body, "traincraft_influx_dropped_total")
}

func TestHTTP_AdminStateLoopbackOnly(t *testing.T) {
	rt := newTestRuntime(t, testConfig(t))
	t.Cleanup(rt.Close)
	rt.world.StepOnce(nil, nil, nil)
	mux := rt.newMux()

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "192.0.2.10:4000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		WorldID string `json:"world_id"`
		Tick    uint64 `json:"tick"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "test-1", resp.WorldID)
	assert.Equal(t, uint64(1), resp.Tick)
}

func TestHTTP_SnapshotAndResume(t *testing.T) {
	cfg := testConfig(t)
	rt := newTestRuntime(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rt.world.Run(ctx)
	}()
	go rt.writeSnapshots(ctx)

	srv := httptest.NewServer(rt.newMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/admin/v1/snapshot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/admin/v1/snapshot", "application/json", nil)
	require.NoError(t, err)
	var out struct {
		OK   bool   `json:"ok"`
		Tick uint64 `json:"tick"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.True(t, out.OK)

	snapPath := filepath.Join(rt.worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", out.Tick))
	require.Eventually(t, func() bool {
		_, err := os.Stat(snapPath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	rt.Close()

	cfg.Resume = "latest"
	rt2 := newTestRuntime(t, cfg)
	t.Cleanup(rt2.Close)
	assert.Equal(t, out.Tick+1, rt2.world.CurrentTick())
	assert.Len(t, rt2.world.TrainIDs(), 3)
}

func TestBuildRuntime_WorldMismatch(t *testing.T) {
	cfg := testConfig(t)
	rt := newTestRuntime(t, cfg)
	rt.world.StepOnce(nil, nil, nil)
	snap := rt.world.ExportSnapshot(rt.world.CurrentTick())
	rt.Close()

	path := filepath.Join(t.TempDir(), "1.snap.zst")
	require.NoError(t, snapshot.WriteSnapshot(path, snap))

	cfg.WorldID = "other"
	cfg.Resume = path
	_, err := buildRuntime(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "world id mismatch")
}

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	require.NoError(t, os.MkdirAll(snaps, 0o755))
	for _, name := range []string{"20.snap.zst", "100.snap.zst", "9.snap.zst", "junk.snap.zst", "5.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(snaps, name), nil, 0o644))
	}
	assert.Equal(t, filepath.Join(snaps, "100.snap.zst"), latestSnapshot(dir))
	assert.Equal(t, "", latestSnapshot(t.TempDir()))
}
