package protocol

// CMD (driver -> server)
type CmdMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Tick            uint64   `json:"tick"`
	TrainID         string   `json:"train_id"`
	Cmds            []CmdReq `json:"cmds"`
}

type CmdReq struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	// LOAD
	Item  string `json:"item,omitempty"`
	Count int    `json:"count,omitempty"`

	// FILL
	Fluid  string `json:"fluid,omitempty"`
	Amount int    `json:"amount,omitempty"`

	// SET_DESTINATION
	Destination string `json:"destination,omitempty"`
}

// STATE (server -> driver), once per tick.
type StateMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	Train           TrainState `json:"train"`
	Events          []Event    `json:"events"`
}

type TrainState struct {
	ID          string `json:"id"`
	Class       string `json:"class"`
	Owner       string `json:"owner,omitempty"`
	Destination string `json:"destination,omitempty"`

	Accelerator int  `json:"accelerator"`
	Reverse     bool `json:"reverse"`
	Brake       bool `json:"brake"`
	Running     bool `json:"running"`
	Collision   bool `json:"collision"`

	FurnaceFuel int `json:"furnace_fuel"`
	MaxFuel     int `json:"max_fuel"`

	Motion [3]float64   `json:"motion"`
	Bogies [][3]float64 `json:"bogies"`

	Inventory []ItemStack `json:"inventory"`
	Tank      TankObs     `json:"tank"`

	// RunningSound is the looping cue id while the engine runs.
	RunningSound string `json:"running_sound,omitempty"`
}

type ItemStack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type TankObs struct {
	Fluid    string `json:"fluid,omitempty"`
	Amount   int    `json:"amount"`
	Capacity int    `json:"capacity"`
}

type Event map[string]interface{}
