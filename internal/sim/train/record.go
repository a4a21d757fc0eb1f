package train

// BogieRecord is the persisted form of one bogie.
type BogieRecord struct {
	Position Vec3
	Velocity Vec3
}

// Record is everything a persistence collaborator needs to rebuild a controller.
type Record struct {
	ID          string
	Owner       string
	Destination string

	Running     bool
	Brake       bool
	FurnaceFuel int
	Inventory   map[string]int
	Tank        Tank

	Accelerator int
	Reverse     bool
	TickCounter uint64
	Motion      Vec3
	Bogies      []BogieRecord
}

func (c *Controller) Record() Record {
	r := Record{
		ID:          c.id,
		Owner:       c.owner,
		Destination: c.destination,
		Running:     c.state.Running,
		Brake:       c.state.Brake,
		FurnaceFuel: c.state.FurnaceFuel,
		Inventory:   c.inventory.Items(),
		Accelerator: c.state.Accelerator,
		Reverse:     c.state.Reverse,
		TickCounter: c.state.TickCounter,
		Motion:      c.state.Motion,
	}
	if c.tank != nil {
		r.Tank = *c.tank
	}
	r.Bogies = make([]BogieRecord, 0, len(c.bogies))
	for _, b := range c.bogies {
		r.Bogies = append(r.Bogies, BogieRecord{Position: b.Position, Velocity: b.velocity})
	}
	return r
}

// Restore overwrites state from r. Bogies are matched by index; extra records are
// ignored since the bogie set is fixed at assembly. Values are not validated.
func (c *Controller) Restore(r Record) {
	if r.ID != "" {
		c.id = r.ID
	}
	c.owner = r.Owner
	c.destination = r.Destination
	c.state = State{
		Accelerator: r.Accelerator,
		Reverse:     r.Reverse,
		Brake:       r.Brake,
		Running:     r.Running,
		FurnaceFuel: r.FurnaceFuel,
		Motion:      r.Motion,
		TickCounter: r.TickCounter,
	}
	slots := 0
	if c.inventory != nil {
		slots = c.inventory.Slots
	}
	c.inventory = NewInventory(slots)
	for item, n := range r.Inventory {
		c.inventory.items[item] = n
	}
	tank := r.Tank
	if c.tank != nil && tank.Capacity == 0 {
		tank.Capacity = c.tank.Capacity
	}
	c.tank = &tank
	for i, br := range r.Bogies {
		if i >= len(c.bogies) {
			break
		}
		c.bogies[i].Position = br.Position
		c.bogies[i].velocity = br.Velocity
	}
}
