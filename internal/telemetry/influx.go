package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/rs/zerolog"

	"traincraft.dev/internal/sim/world"
)

type InfluxOptions struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// SampleEvery writes one point set every N ticks.
	SampleEvery   int
	FlushInterval time.Duration
}

// InfluxSink writes sampled train and world points to InfluxDB. Summaries are
// queued from the world goroutine and converted to points off-thread; a full
// queue drops the sample.
type InfluxSink struct {
	client influxdb2.Client
	write  influxdb2_api.WriteAPI
	every  uint64
	log    zerolog.Logger

	now func() time.Time

	queue chan world.TickSummary
	wg    sync.WaitGroup
	once  sync.Once

	dropped atomic.Uint64
	written atomic.Uint64
}

func NewInfluxSink(opts InfluxOptions, log zerolog.Logger) *InfluxSink {
	every := opts.SampleEvery
	if every <= 0 {
		every = 20
	}
	flushMS := uint(opts.FlushInterval / time.Millisecond)
	if flushMS == 0 {
		flushMS = 1000
	}
	client := influxdb2.NewClientWithOptions(
		opts.URL,
		opts.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(flushMS),
	)
	s := &InfluxSink{
		client: client,
		write:  client.WriteAPI(opts.Org, opts.Bucket),
		every:  uint64(every),
		log:    log,
		now:    time.Now,
		queue:  make(chan world.TickSummary, 256),
	}

	errorsCh := s.write.Errors()
	go func() {
		for err := range errorsCh {
			s.log.Error().Err(err).Str("bucket", opts.Bucket).Msg("influx write failed")
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for sum := range s.queue {
			s.writeSummary(sum)
		}
	}()
	return s
}

func (s *InfluxSink) ObserveTick(sum world.TickSummary) {
	if sum.Tick%s.every != 0 {
		return
	}
	select {
	case s.queue <- sum:
	default:
		s.dropped.Add(1)
	}
}

func (s *InfluxSink) writeSummary(sum world.TickSummary) {
	ts := s.now()
	var running int
	for _, t := range sum.Trains {
		if t.Running {
			running++
		}
		s.write.WritePoint(influxdb2.NewPoint(
			"train",
			map[string]string{"train_id": t.ID, "class": t.Class},
			map[string]interface{}{
				"tick":         int64(sum.Tick),
				"speed":        t.Speed,
				"accelerator":  t.Accelerator,
				"furnace_fuel": t.FurnaceFuel,
				"tank_amount":  t.TankAmount,
				"running":      t.Running,
				"brake":        t.Brake,
				"collision":    t.Collision,
				"x":            t.Pos[0],
				"z":            t.Pos[2],
			},
			ts,
		))
		s.written.Add(1)
	}
	s.write.WritePoint(influxdb2.NewPoint(
		"world",
		nil,
		map[string]interface{}{
			"tick":          int64(sum.Tick),
			"step_ms":       sum.StepMS,
			"cmds":          len(sum.Cmds),
			"rejected":      len(sum.Rejected),
			"trains":        len(sum.Trains),
			"running_count": running,
		},
		ts,
	))
	s.written.Add(1)
}

// Dropped is the number of sampled summaries lost to a full queue.
func (s *InfluxSink) Dropped() uint64 { return s.dropped.Load() }

// Written is the number of points handed to the write API.
func (s *InfluxSink) Written() uint64 { return s.written.Load() }

// Close drains the queue, flushes pending points and closes the client.
// ObserveTick must not be called afterwards.
func (s *InfluxSink) Close() {
	s.once.Do(func() {
		close(s.queue)
		s.wg.Wait()
		s.write.Flush()
		s.client.Close()
	})
}
