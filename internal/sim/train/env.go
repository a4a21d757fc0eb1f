package train

// Environment is what a controller needs from its host on every tick.
type Environment interface {
	HasCollision(c *Controller) bool
	BaseStep(c *Controller)
	ManageFuel(c *Controller)
}

// Env implements Environment from optional funcs. A nil func means "no collision",
// "no base physics" and "no fuel policy" respectively.
type Env struct {
	HasCollisionFn func(c *Controller) bool
	BaseStepFn     func(c *Controller)
	ManageFuelFn   func(c *Controller)
}

func (e Env) HasCollision(c *Controller) bool {
	if e.HasCollisionFn == nil {
		return false
	}
	return e.HasCollisionFn(c)
}

func (e Env) BaseStep(c *Controller) {
	if e.BaseStepFn == nil {
		return
	}
	e.BaseStepFn(c)
}

func (e Env) ManageFuel(c *Controller) {
	if e.ManageFuelFn == nil {
		return
	}
	e.ManageFuelFn(c)
}
