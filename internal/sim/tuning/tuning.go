package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	// BrakeFactor multiplies horizontal bogie velocity each tick while the brake is set.
	BrakeFactor     float64 `yaml:"brake_factor"`
	CollisionRadius float64 `yaml:"collision_radius"`
	RailHeight      float64 `yaml:"rail_height"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

type RateLimits struct {
	CmdWindowTicks int `yaml:"cmd_window_ticks"`
	CmdMax         int `yaml:"cmd_max"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         20,
		SnapshotEveryTicks: 6000,
		BrakeFactor:        0.8,
		CollisionRadius:    1.0,
		RailHeight:         64,
		RateLimits: RateLimits{
			CmdWindowTicks: 20,
			CmdMax:         40,
		},
	}
}

// Load reads a tuning file on top of Defaults. Missing keys keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.BrakeFactor < 0 || t.BrakeFactor > 1 {
		return fmt.Errorf("brake_factor must be in [0,1]")
	}
	if t.CollisionRadius < 0 {
		return fmt.Errorf("collision_radius must be >= 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	return nil
}

// Digest is a stable hash of the applied values, echoed to drivers in WELCOME.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
