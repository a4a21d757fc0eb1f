package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"traincraft.dev/internal/sim/world"
)

func sampleSummary(tick uint64) world.TickSummary {
	return world.TickSummary{
		Tick:     tick,
		StepMS:   0.4,
		Cmds:     []world.RecordedCmd{{TrainID: "T1"}},
		Rejected: []world.RejectedCmd{{TrainID: "T2", Code: "E_RATE_LIMIT"}},
		Trains: []world.TrainSample{
			{ID: "T1", Class: "steam_440", Running: true, Speed: 0.5, FurnaceFuel: 80, Pos: [3]float64{3, 64, 0}},
			{ID: "T2", Class: "diesel_shunter", Collision: true},
		},
	}
}

func TestInstruments_ObserveTick(t *testing.T) {
	in, err := NewInstruments(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	in.ObserveTick(sampleSummary(1))
	in.ObserveTick(world.TickSummary{Tick: 2})

	assert.Equal(t, uint64(2), in.Observed())
	assert.Equal(t, int64(0), in.RunningTrains())

	in.ObserveTick(sampleSummary(3))
	assert.Equal(t, int64(1), in.RunningTrains())
}

func TestInstruments_GlobalMeter(t *testing.T) {
	in, err := NewInstruments(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() { in.ObserveTick(sampleSummary(1)) })
}

type writeCapture struct {
	mu    sync.Mutex
	lines []string
	query []string
}

func (c *writeCapture) handler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v2/write" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	b, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.query = append(c.query, r.URL.RawQuery)
	for _, l := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		if l != "" {
			c.lines = append(c.lines, l)
		}
	}
	c.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func TestInfluxSink_WritesSampledPoints(t *testing.T) {
	capture := &writeCapture{}
	srv := httptest.NewServer(http.HandlerFunc(capture.handler))
	defer srv.Close()

	sink := NewInfluxSink(InfluxOptions{
		URL:           srv.URL,
		Token:         "tok",
		Org:           "traincraft",
		Bucket:        "trains",
		SampleEvery:   10,
		FlushInterval: 50 * time.Millisecond,
	}, zerolog.Nop())
	sink.now = func() time.Time { return time.Unix(1700000000, 0) }

	for tick := uint64(0); tick < 25; tick++ {
		sink.ObserveTick(sampleSummary(tick))
	}
	sink.Close()

	// ticks 0, 10, 20: two trains plus one world point each
	assert.Equal(t, uint64(9), sink.Written())
	assert.Equal(t, uint64(0), sink.Dropped())

	capture.mu.Lock()
	defer capture.mu.Unlock()
	require.Len(t, capture.lines, 9)

	var trainLines, worldLines int
	for _, l := range capture.lines {
		switch {
		case strings.HasPrefix(l, "train,"):
			trainLines++
			assert.Contains(t, l, "train_id=")
			assert.Contains(t, l, "speed=")
		case strings.HasPrefix(l, "world "):
			worldLines++
			assert.Contains(t, l, "step_ms=0.4")
			assert.Contains(t, l, "rejected=1i")
		default:
			t.Fatalf("unexpected line %q", l)
		}
	}
	assert.Equal(t, 6, trainLines)
	assert.Equal(t, 3, worldLines)
	require.NotEmpty(t, capture.query)
	assert.Contains(t, capture.query[0], "bucket=trains")
	assert.Contains(t, capture.query[0], "org=traincraft")
}
