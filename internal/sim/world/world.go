package world

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"traincraft.dev/internal/persistence/snapshot"
	"traincraft.dev/internal/protocol"
	"traincraft.dev/internal/sim/catalogs"
	"traincraft.dev/internal/sim/fuel"
	"traincraft.dev/internal/sim/train"
	"traincraft.dev/internal/sim/tuning"
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	SnapshotEveryTicks int

	BrakeFactor     float64
	CollisionRadius float64
	RailHeight      float64

	RateLimits RateLimitParams

	// TuningDigest is echoed to drivers in WELCOME.
	TuningDigest string

	Obstacles [][2]int
}

type RateLimitParams struct {
	CmdWindowTicks int
	CmdMax         int
}

// ConfigFromTuning maps a tuning file onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		BrakeFactor:        t.BrakeFactor,
		CollisionRadius:    t.CollisionRadius,
		RailHeight:         t.RailHeight,
		RateLimits: RateLimitParams{
			CmdWindowTicks: t.RateLimits.CmdWindowTicks,
			CmdMax:         t.RateLimits.CmdMax,
		},
	}
}

type JoinRequest struct {
	DriverName string
	TrainID    string
	Out        chan []byte
	Resp       chan JoinResponse
}

// JoinResponse carries WELCOME on success, or a protocol error code.
type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Code    string
	Message string
}

// CmdEnvelope is one CMD message routed to the world. DriverID is empty for
// commands replayed from a tick log.
type CmdEnvelope struct {
	DriverID string
	TrainID  string
	Cmds     []protocol.CmdReq
}

type RecordedJoin struct {
	DriverID string `json:"driver_id"`
	TrainID  string `json:"train_id"`
	Name     string `json:"name"`
}

type RecordedCmd struct {
	DriverID string          `json:"driver_id,omitempty"`
	TrainID  string          `json:"train_id"`
	Cmd      protocol.CmdReq `json:"cmd"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	Tick   uint64         `json:"tick"`
	Joins  []RecordedJoin `json:"joins,omitempty"`
	Leaves []string       `json:"leaves,omitempty"`
	Cmds   []RecordedCmd  `json:"cmds,omitempty"`
	Digest string         `json:"digest"`
}

// TickObserver receives a summary after every step. Implementations must not block.
type TickObserver interface {
	ObserveTick(s TickSummary)
}

type TickSummary struct {
	Tick     uint64
	Digest   string
	StepMS   float64
	Cmds     []RecordedCmd
	Rejected []RejectedCmd
	Trains   []TrainSample
}

type RejectedCmd struct {
	TrainID string
	CmdID   string
	Type    string
	Code    string
}

// TrainSample is the per-tick numeric view of one train.
type TrainSample struct {
	ID          string
	Class       string
	Accelerator int
	Brake       bool
	Running     bool
	Collision   bool
	FurnaceFuel int
	TankAmount  int
	Speed       float64
	Pos         [3]float64
}

type driverState struct {
	ID      string
	Name    string
	TrainID string
	Out     chan []byte
}

// World is a single-threaded authoritative railway simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	fuel     *fuel.Manager

	tick atomic.Uint64

	trains   map[string]*trainEntity
	trainIDs []string
	drivers  map[string]*driverState

	obstacles [][2]int

	inbox chan CmdEnvelope
	join  chan JoinRequest
	leave chan string
	admin chan adminSnapshotReq
	stop  chan struct{}

	nextDriverNum atomic.Uint64

	// Optional sinks (may be nil). Implemented in internal/persistence/* and internal/telemetry.
	tickLogger   TickLogger
	observers    []TickObserver
	snapshotSink chan<- snapshot.SnapshotV1

	log zerolog.Logger

	cmdsApplied  uint64
	cmdsRejected uint64

	metrics   atomic.Value
	stateView atomic.Value
}

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world %s: nil catalogs", cfg.ID)
	}
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("world %s: tick_rate_hz must be > 0", cfg.ID)
	}
	w := &World{
		cfg:       cfg,
		catalogs:  cats,
		fuel:      fuel.NewManager(cats),
		trains:    map[string]*trainEntity{},
		drivers:   map[string]*driverState{},
		obstacles: append([][2]int(nil), cfg.Obstacles...),
		inbox:     make(chan CmdEnvelope, 1024),
		join:      make(chan JoinRequest, 64),
		leave:     make(chan string, 64),
		admin:     make(chan adminSnapshotReq, 8),
		stop:      make(chan struct{}),
		log:       zerolog.Nop(),
	}
	return w, nil
}

// Spawn adds a train before the world loop starts.
func (w *World) Spawn(s tuning.TrainSpawn) error {
	if _, dup := w.trains[s.ID]; dup {
		return fmt.Errorf("spawn %s: duplicate train", s.ID)
	}
	def, ok := w.catalogs.Vehicle(s.Class)
	if !ok {
		return fmt.Errorf("spawn %s: unknown class %q", s.ID, s.Class)
	}
	hx, hz, ok := tuning.HeadingVector(s.Heading)
	if !ok {
		return fmt.Errorf("spawn %s: bad heading %q", s.ID, s.Heading)
	}
	owner := s.Owner
	if owner == "" {
		owner = uuid.NewSHA1(uuid.NameSpaceURL, []byte("traincraft:"+s.ID)).String()
	}
	ent := w.newEntity(s.ID, owner, def, [2]float64{hx, hz})
	base := train.Vec3{X: s.Pos[0], Y: w.cfg.RailHeight, Z: s.Pos[2]}
	for _, off := range def.Bogies {
		ent.ctrl.AddBogie(base.Add(train.Vec3{X: hx * off, Z: hz * off}), ent.integrator(w))
	}
	for item, n := range s.Inventory {
		ent.ctrl.Inventory().Add(item, n)
	}
	if s.Tank.Amount > 0 {
		ent.ctrl.Tank().Fill(s.Tank.Fluid, s.Tank.Amount)
	}
	// Prime the furnace so a fresh train reports its real fuel level.
	w.fuel.Prime(ent.ctrl)
	ent.ctrl.SetRunning(s.Running && ent.ctrl.FurnaceFuel() > 0)
	w.addEntity(ent)
	return nil
}

func (w *World) addEntity(ent *trainEntity) {
	w.trains[ent.ctrl.ID()] = ent
	w.trainIDs = append(w.trainIDs, ent.ctrl.ID())
	sort.Strings(w.trainIDs)
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) SetLogger(l zerolog.Logger)                    { w.log = l }
func (w *World) AddObserver(o TickObserver)                    { w.observers = append(w.observers, o) }

func (w *World) Inbox() chan<- CmdEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest  { return w.join }
func (w *World) Leave() chan<- string      { return w.leave }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// TrainIDs returns the sorted train ids. Loop goroutine or before Run only.
func (w *World) TrainIDs() []string { return append([]string(nil), w.trainIDs...) }

// Train returns the controller for id. Loop goroutine or before Run only.
func (w *World) Train(id string) *train.Controller {
	if ent := w.trains[id]; ent != nil {
		return ent.ctrl
	}
	return nil
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingCmds []CmdEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingAdmin []adminSnapshotReq

	w.log.Info().Str("world", w.cfg.ID).Int("trains", len(w.trains)).Int("tick_rate_hz", w.cfg.TickRateHz).Msg("world loop started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingCmds = append(pendingCmds, env)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingCmds)
			w.handleAdminSnapshotRequests(pendingAdmin)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingCmds = pendingCmds[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances exactly one tick. It is the deterministic entry point for tests and replay.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, cmds []CmdEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.step(joins, leaves, cmds)
	return tick, w.stateDigest(tick)
}

func (w *World) joinDriver(req JoinRequest) (JoinResponse, *driverState) {
	trainID := req.TrainID
	if trainID == "" && len(w.trainIDs) > 0 {
		trainID = w.trainIDs[0]
	}
	ent := w.trains[trainID]
	if ent == nil {
		return JoinResponse{Code: protocol.ErrUnknownTrain, Message: fmt.Sprintf("no train %q", req.TrainID)}, nil
	}
	name := req.DriverName
	if name == "" {
		name = "driver"
	}
	d := &driverState{
		ID:      fmt.Sprintf("D%d", w.nextDriverNum.Add(1)),
		Name:    name,
		TrainID: trainID,
		Out:     req.Out,
	}
	w.drivers[d.ID] = d

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		DriverID:        d.ID,
		TrainID:         trainID,
		WorldParams: protocol.WorldParams{
			TickRateHz:     w.cfg.TickRateHz,
			FuelEveryTicks: train.FuelCheckEvery,
		},
		Catalogs: protocol.CatalogDigests{
			VehiclesDigest: w.catalogs.Digest,
			TuningDigest:   w.cfg.TuningDigest,
		},
		Class: w.classInfo(ent),
	}
	return JoinResponse{Welcome: welcome}, d
}

func (w *World) classInfo(ent *trainEntity) protocol.ClassInfo {
	cls := ent.ctrl.Class()
	ci := protocol.ClassInfo{
		ID:               cls.ID,
		Name:             ent.def.Name,
		FuelKind:         ent.def.FuelKind,
		MaxSpeed:         cls.MaxSpeed,
		MaxFuel:          cls.MaxFuel,
		AccelerationRate: cls.AccelerationRate,
		Bogies:           len(ent.ctrl.Bogies()),
	}
	ci.Horn = w.sound(cls.Horn)
	ci.Running = w.sound(cls.Running)
	return ci
}

func (w *World) sound(id string) *protocol.Sound {
	if id == "" {
		return nil
	}
	s, ok := w.catalogs.Sounds.ByID[id]
	if !ok {
		return nil
	}
	return &protocol.Sound{ID: s.ID, FreqHz: s.FreqHz, DurationMs: s.DurationMs, Loop: s.Loop}
}

func sendLatest(ch chan []byte, b []byte) {
	if ch == nil {
		return
	}
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
