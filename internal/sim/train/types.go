package train

// Vec3 is a velocity or position in world units per tick.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3) Scale(k float64) Vec3 { return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k} }

// Planar is a horizontal (x,z) velocity contribution.
type Planar struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

const (
	MaxAccelerator = 6

	// DampingFactor is applied to every axis speed each tick.
	DampingFactor = 0.9

	FuelCheckEvery = 5
	FuelCheckPhase = 1
)

// Class holds the per-vehicle-type constants.
type Class struct {
	ID               string
	MaxSpeed         float64
	MaxFuel          int
	AccelerationRate float64

	// Audio cue handles; empty means none.
	Horn    string
	Running string
}

func DefaultClass() Class {
	return Class{
		MaxSpeed:         0,
		MaxFuel:          100,
		AccelerationRate: 0.025,
	}
}

// State is the authoritative per-train state mutated by the controller and driver input.
type State struct {
	Accelerator int
	Reverse     bool
	Brake       bool
	Running     bool
	FurnaceFuel int
	Motion      Vec3
	TickCounter uint64
}
