package protocol

// HELLO (driver -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	DriverName      string            `json:"driver_name"`
	TrainID         string            `json:"train_id,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> driver)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	DriverID        string         `json:"driver_id"`
	TrainID         string         `json:"train_id"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
	Class           ClassInfo      `json:"class"`
}

type WorldParams struct {
	TickRateHz     int `json:"tick_rate_hz"`
	FuelEveryTicks int `json:"fuel_every_ticks"`
}

type CatalogDigests struct {
	VehiclesDigest string `json:"vehicles_digest"`
	TuningDigest   string `json:"tuning_digest,omitempty"`
}

// ClassInfo describes the vehicle class the driver is attached to.
type ClassInfo struct {
	ID               string  `json:"id"`
	Name             string  `json:"name,omitempty"`
	FuelKind         string  `json:"fuel_kind"`
	MaxSpeed         float64 `json:"max_speed"`
	MaxFuel          int     `json:"max_fuel"`
	AccelerationRate float64 `json:"acceleration_rate"`
	Bogies           int     `json:"bogies"`
	Horn             *Sound  `json:"horn,omitempty"`
	Running          *Sound  `json:"running,omitempty"`
}

type Sound struct {
	ID         string  `json:"id"`
	FreqHz     float64 `json:"freq_hz"`
	DurationMs int     `json:"duration_ms"`
	Loop       bool    `json:"loop,omitempty"`
}

// ACK (server -> driver), sent for rejected commands.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}
