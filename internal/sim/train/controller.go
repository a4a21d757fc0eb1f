package train

// Options configures a controller at construction.
type Options struct {
	ID    string
	Owner string

	// Authoritative controllers run the fuel policy; remote replicas do not.
	Authoritative bool

	InventorySlots int
	TankCapacity   int
}

// Controller owns one train's state and its bogies, and advances them one tick at a time.
// It is not safe for concurrent use; the host must serialize Tick and SetAcceleration.
type Controller struct {
	id          string
	owner       string
	destination string

	class         Class
	authoritative bool

	state  State
	bogies []*Bogie

	inventory *Inventory
	tank      *Tank

	lastCollision bool
}

func New(class Class, opts Options) *Controller {
	return &Controller{
		id:            opts.ID,
		owner:         opts.Owner,
		class:         class,
		authoritative: opts.Authoritative,
		inventory:     NewInventory(opts.InventorySlots),
		tank:          &Tank{Capacity: opts.TankCapacity},
	}
}

// AddBogie appends a bogie. Bogies are only added while the train is assembled.
func (c *Controller) AddBogie(pos Vec3, integ Integrator) *Bogie {
	b := &Bogie{owner: c, Position: pos, integrator: integ}
	c.bogies = append(c.bogies, b)
	return b
}

func (c *Controller) ID() string            { return c.id }
func (c *Controller) Owner() string         { return c.owner }
func (c *Controller) Class() Class          { return c.class }
func (c *Controller) Authoritative() bool   { return c.authoritative }
func (c *Controller) Bogies() []*Bogie      { return c.bogies }
func (c *Controller) Inventory() *Inventory { return c.inventory }
func (c *Controller) Tank() *Tank           { return c.tank }

// State returns a copy of the current state.
func (c *Controller) State() State { return c.state }

func (c *Controller) Accelerator() int    { return c.state.Accelerator }
func (c *Controller) Reverse() bool       { return c.state.Reverse }
func (c *Controller) Brake() bool         { return c.state.Brake }
func (c *Controller) Running() bool       { return c.state.Running }
func (c *Controller) FurnaceFuel() int    { return c.state.FurnaceFuel }
func (c *Controller) Motion() Vec3        { return c.state.Motion }
func (c *Controller) TickCounter() uint64 { return c.state.TickCounter }
func (c *Controller) Destination() string { return c.destination }

// LastCollision reports the collision result of the most recent tick.
func (c *Controller) LastCollision() bool { return c.lastCollision }

func (c *Controller) SetBrake(on bool)        { c.state.Brake = on }
func (c *Controller) SetRunning(on bool)      { c.state.Running = on }
func (c *Controller) SetFurnaceFuel(n int)    { c.state.FurnaceFuel = n }
func (c *Controller) SetDestination(d string) { c.destination = d }

// SetAcceleration moves the throttle one notch and clamps at ±MaxAccelerator.
//
// The reverse flag is only ever set here, when the throttle goes negative.
// Returning to a positive notch leaves it as it was.
func (c *Controller) SetAcceleration(increase bool) {
	if increase && c.state.Accelerator < MaxAccelerator {
		c.state.Accelerator++
	} else if !increase && c.state.Accelerator > -MaxAccelerator {
		c.state.Accelerator--
	}
	if c.state.Accelerator < 0 && !c.state.Reverse {
		c.state.Reverse = true
	}
}

// ProcessMovement damps one axis speed, scales it by the throttle and clamps it
// to the class top speed. Only the forward direction is clamped.
func (c *Controller) ProcessMovement(axis float64) float64 {
	speed := axis * DampingFactor
	if c.state.Accelerator != 0 {
		speed *= 1 + (float64(c.state.Accelerator)/MaxAccelerator)*c.class.AccelerationRate
	}
	if speed > c.class.MaxSpeed {
		speed = c.class.MaxSpeed
	}
	return speed
}

// Tick advances the train by one simulation step. ext carries per-bogie horizontal
// velocity contributions from the host (traction, track impulses) and may be nil.
func (c *Controller) Tick(env Environment, ext map[*Bogie]Planar) {
	if env == nil {
		env = Env{}
	}
	if len(c.bogies) > 0 {
		for b, p := range ext {
			if b == nil || b.owner != c {
				continue
			}
			b.velocity.X += p.X
			b.velocity.Z += p.Z
		}

		collision := env.HasCollision(c)
		c.lastCollision = collision
		for _, b := range c.bogies {
			b.collided = collision
			if collision {
				c.state.Motion = Vec3{}
				continue
			}
			target := Vec3{
				X: c.ProcessMovement(b.velocity.X),
				Y: b.velocity.Y,
				Z: c.ProcessMovement(b.velocity.Z),
			}
			c.state.Motion = target
			b.SetVelocity(target.X, target.Y, target.Z)
			b.IntegrateMotion()
		}
	}

	env.BaseStep(c)

	c.state.TickCounter++
	if c.authoritative && c.state.TickCounter%FuelCheckEvery == FuelCheckPhase {
		env.ManageFuel(c)
	}
}
