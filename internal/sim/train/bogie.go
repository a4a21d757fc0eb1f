package train

// Integrator applies a bogie's velocity to its positional state.
type Integrator interface {
	Integrate(b *Bogie)
}

// IntegratorFunc adapts a func to Integrator.
type IntegratorFunc func(b *Bogie)

func (f IntegratorFunc) Integrate(b *Bogie) { f(b) }

// Bogie is a driven running-gear unit. It carries velocity and delegates
// positional integration; it makes no decisions of its own.
type Bogie struct {
	owner *Controller

	Position Vec3
	velocity Vec3
	collided bool

	integrator Integrator
}

func (b *Bogie) Owner() *Controller { return b.owner }

func (b *Bogie) Velocity() Vec3 { return b.velocity }

func (b *Bogie) SetVelocity(x, y, z float64) {
	b.velocity = Vec3{X: x, Y: y, Z: z}
}

// Collided reports whether the owning train was obstructed on the last tick.
func (b *Bogie) Collided() bool { return b.collided }

// IntegrateMotion runs one positional integration step.
func (b *Bogie) IntegrateMotion() {
	if b.integrator == nil {
		b.Position = b.Position.Add(b.velocity)
		return
	}
	b.integrator.Integrate(b)
}
