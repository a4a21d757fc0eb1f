package telemetry

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"traincraft.dev/internal/sim/world"
)

const instrumentationName = "traincraft.dev/internal/telemetry"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Instruments records per-tick world telemetry through OpenTelemetry. It is a
// world.TickObserver and runs on the world goroutine, so it only touches
// instruments and atomics.
type Instruments struct {
	ticks      metric.Int64Counter
	cmds       metric.Int64Counter
	rejected   metric.Int64Counter
	collisions metric.Int64Counter
	stepMS     metric.Float64Histogram
	running    metric.Int64ObservableGauge

	lastRunning atomic.Int64
	observed    atomic.Uint64
}

// NewInstruments registers the instruments on m, or on the global meter when m is nil.
func NewInstruments(m metric.Meter) (*Instruments, error) {
	if m == nil {
		m = meter()
	}
	in := &Instruments{}
	var err error

	in.ticks, err = m.Int64Counter(
		"traincraft.world.ticks",
		metric.WithDescription("World steps executed"),
	)
	if err != nil {
		return nil, err
	}
	in.cmds, err = m.Int64Counter(
		"traincraft.world.cmds",
		metric.WithDescription("Driver commands routed to a train"),
	)
	if err != nil {
		return nil, err
	}
	in.rejected, err = m.Int64Counter(
		"traincraft.world.cmds_rejected",
		metric.WithDescription("Driver commands rejected, by error code"),
	)
	if err != nil {
		return nil, err
	}
	in.collisions, err = m.Int64Counter(
		"traincraft.train.collision_ticks",
		metric.WithDescription("Train ticks spent blocked by a collision"),
	)
	if err != nil {
		return nil, err
	}
	in.stepMS, err = m.Float64Histogram(
		"traincraft.world.step_ms",
		metric.WithDescription("Wall time of one world step"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	in.running, err = m.Int64ObservableGauge(
		"traincraft.world.trains_running",
		metric.WithDescription("Trains with the engine running at the last step"),
	)
	if err != nil {
		return nil, err
	}
	if _, err := m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(in.running, in.lastRunning.Load())
		return nil
	}, in.running); err != nil {
		return nil, err
	}
	return in, nil
}

func (in *Instruments) ObserveTick(s world.TickSummary) {
	ctx := context.Background()
	in.ticks.Add(ctx, 1)
	in.stepMS.Record(ctx, s.StepMS)
	if len(s.Cmds) > 0 {
		in.cmds.Add(ctx, int64(len(s.Cmds)))
	}
	for _, r := range s.Rejected {
		in.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("code", r.Code)))
	}
	var running int64
	for _, t := range s.Trains {
		if t.Running {
			running++
		}
		if t.Collision {
			in.collisions.Add(ctx, 1, metric.WithAttributes(attribute.String("train_id", t.ID)))
		}
	}
	in.lastRunning.Store(running)
	in.observed.Add(1)
}

// Observed is the number of summaries seen.
func (in *Instruments) Observed() uint64 { return in.observed.Load() }

// RunningTrains is the running count from the last summary.
func (in *Instruments) RunningTrains() int64 { return in.lastRunning.Load() }
