package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"traincraft.dev/internal/logging"
	"traincraft.dev/internal/sim/world"
	"traincraft.dev/internal/transport/observer"
	"traincraft.dev/internal/transport/ws"
)

func (rt *serverRuntime) newMux() *http.ServeMux {
	w := rt.world
	worldID := rt.cfg.WorldID

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		rt.writeMetrics(rw, worldID)
	})

	// Local-only admin endpoints (do not affect simulation determinism).
	adminOK := func(rw http.ResponseWriter, r *http.Request) bool {
		if rt.cfg.HTTP.AdminLoopbackOnly && !observer.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return false
		}
		return true
	}
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !adminOK(rw, r) {
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			WorldID string             `json:"world_id"`
			Tick    uint64             `json:"tick"`
			Metrics world.WorldMetrics `json:"metrics"`
			State   world.StateView    `json:"state"`
		}{
			WorldID: worldID,
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
			State:   w.State(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !adminOK(rw, r) {
			return
		}
		ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel2()
		tick, err := w.RequestSnapshot(ctx2)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
	})

	obsSrv := observer.NewServer(w, logging.Component(rt.log, "observer"))
	mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())

	mux.HandleFunc("/v1/ws", ws.NewServer(w, rt.validator, logging.Component(rt.log, "ws")).Handler())
	return mux
}

// writeMetrics renders the minimal Prometheus exposition format.
func (rt *serverRuntime) writeMetrics(rw http.ResponseWriter, worldID string) {
	w := rt.world
	m := w.Metrics()
	tick := w.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	gauge := func(name, help string) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
	}
	counter := func(name, help string) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s counter\n", name)
	}

	gauge("traincraft_world_tick", "Current world tick.")
	fmt.Fprintf(rw, "traincraft_world_tick{world=%q} %d\n", worldID, tick)

	gauge("traincraft_world_trains", "Trains in the world.")
	fmt.Fprintf(rw, "traincraft_world_trains{world=%q} %d\n", worldID, m.Trains)

	gauge("traincraft_world_drivers", "Connected drivers.")
	fmt.Fprintf(rw, "traincraft_world_drivers{world=%q} %d\n", worldID, m.Drivers)

	gauge("traincraft_world_trains_running", "Trains with the engine running.")
	fmt.Fprintf(rw, "traincraft_world_trains_running{world=%q} %d\n", worldID, m.Running)

	gauge("traincraft_world_trains_colliding", "Trains blocked by a collision on the last tick.")
	fmt.Fprintf(rw, "traincraft_world_trains_colliding{world=%q} %d\n", worldID, m.Colliding)

	counter("traincraft_world_cmds_applied_total", "Driver commands applied.")
	fmt.Fprintf(rw, "traincraft_world_cmds_applied_total{world=%q} %d\n", worldID, m.CmdsApplied)

	counter("traincraft_world_cmds_rejected_total", "Driver commands rejected.")
	fmt.Fprintf(rw, "traincraft_world_cmds_rejected_total{world=%q} %d\n", worldID, m.CmdsRejected)

	gauge("traincraft_world_queue_depth", "Channel backlog depth.")
	fmt.Fprintf(rw, "traincraft_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "traincraft_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "traincraft_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)

	gauge("traincraft_world_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(rw, "traincraft_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	if rt.index != nil {
		s := rt.index.Stats()
		gauge("traincraft_index_queue_depth", "Index writer queue depth.")
		fmt.Fprintf(rw, "traincraft_index_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)
		counter("traincraft_index_dropped_total", "Index writes dropped under backpressure.")
		fmt.Fprintf(rw, "traincraft_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", s.DropTickTotal)
		fmt.Fprintf(rw, "traincraft_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "sample", s.DropSampleTotal)
		fmt.Fprintf(rw, "traincraft_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", s.DropSnapshotTotal)
	}
	if rt.auditLog != nil {
		counter("traincraft_audit_dropped_total", "Audit entries dropped under backpressure.")
		fmt.Fprintf(rw, "traincraft_audit_dropped_total{world=%q} %d\n", worldID, rt.auditLog.Dropped())
	}
	if rt.influx != nil {
		counter("traincraft_influx_dropped_total", "Influx samples dropped under backpressure.")
		fmt.Fprintf(rw, "traincraft_influx_dropped_total{world=%q} %d\n", worldID, rt.influx.Dropped())
	}
}
