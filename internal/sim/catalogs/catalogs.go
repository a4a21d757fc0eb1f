package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"traincraft.dev/internal/sim/train"
)

// Fuel kinds understood by the fuel manager.
const (
	FuelSteam    = "STEAM"
	FuelDiesel   = "DIESEL"
	FuelElectric = "ELECTRIC"
)

type Catalogs struct {
	Vehicles VehicleCatalog
	Fuels    FuelCatalog
	Sounds   SoundCatalog

	// Digest covers the whole vehicles.yaml file.
	Digest string
}

type VehicleCatalog struct {
	IDs  []string
	ByID map[string]VehicleDef
}

type VehicleDef struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	FuelKind string `yaml:"fuel_kind" json:"fuel_kind"`

	MaxSpeed         float64 `yaml:"max_speed" json:"max_speed"`
	MaxFuel          int     `yaml:"max_fuel" json:"max_fuel"`
	// AccelerationRate is optional; unset means the base default, and 0 is a valid rate.
	AccelerationRate *float64 `yaml:"acceleration_rate" json:"acceleration_rate,omitempty"`

	// Traction is the horizontal impulse per tick at full throttle.
	Traction float64 `yaml:"traction" json:"traction"`

	BurnPerCheck  int `yaml:"burn_per_check" json:"burn_per_check"`
	WaterPerCheck int `yaml:"water_per_check" json:"water_per_check"`

	InventorySlots int    `yaml:"inventory_slots" json:"inventory_slots"`
	TankCapacity   int    `yaml:"tank_capacity" json:"tank_capacity"`
	TankFluid      string `yaml:"tank_fluid" json:"tank_fluid,omitempty"`

	// Bogie offsets along the heading, in blocks from the train origin.
	Bogies []float64 `yaml:"bogies" json:"bogies"`

	Horn    string `yaml:"horn" json:"horn,omitempty"`
	Running string `yaml:"running" json:"running,omitempty"`
}

// Class maps the definition to the controller's constant record. Zero max_fuel and an
// unset acceleration_rate fall back to the base defaults; max_speed has no fallback.
func (d VehicleDef) Class() train.Class {
	c := train.DefaultClass()
	c.ID = d.ID
	c.MaxSpeed = d.MaxSpeed
	if d.MaxFuel > 0 {
		c.MaxFuel = d.MaxFuel
	}
	if d.AccelerationRate != nil {
		c.AccelerationRate = *d.AccelerationRate
	}
	c.Horn = d.Horn
	c.Running = d.Running
	return c
}

type FuelCatalog struct {
	// BurnValue is furnace fuel gained per item.
	BurnValue map[string]int
	// Order is the deterministic order the furnace tries items in.
	Order []string
}

type SoundCatalog struct {
	ByID map[string]SoundDef
}

type SoundDef struct {
	ID         string  `yaml:"id" json:"id"`
	FreqHz     float64 `yaml:"freq_hz" json:"freq_hz"`
	DurationMs int     `yaml:"duration_ms" json:"duration_ms"`
	Loop       bool    `yaml:"loop" json:"loop,omitempty"`
}

type vehiclesFile struct {
	Vehicles []VehicleDef `yaml:"vehicles"`
	Fuels    []struct {
		Item      string `yaml:"item"`
		BurnValue int    `yaml:"burn_value"`
	} `yaml:"fuels"`
	Sounds []SoundDef `yaml:"sounds"`
}

func Load(configDir string) (*Catalogs, error) {
	return LoadFile(filepath.Join(configDir, "vehicles.yaml"))
}

func LoadFile(path string) (*Catalogs, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalogs, error) {
	var f vehiclesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("vehicles.yaml: %w", err)
	}

	c := &Catalogs{
		Vehicles: VehicleCatalog{ByID: map[string]VehicleDef{}},
		Fuels:    FuelCatalog{BurnValue: map[string]int{}},
		Sounds:   SoundCatalog{ByID: map[string]SoundDef{}},
		Digest:   sha256Hex(raw),
	}

	for _, s := range f.Sounds {
		if s.ID == "" {
			return nil, fmt.Errorf("vehicles.yaml: sound with empty id")
		}
		c.Sounds.ByID[s.ID] = s
	}

	for _, fu := range f.Fuels {
		if fu.Item == "" || fu.BurnValue <= 0 {
			return nil, fmt.Errorf("vehicles.yaml: bad fuel entry %q", fu.Item)
		}
		if _, dup := c.Fuels.BurnValue[fu.Item]; !dup {
			c.Fuels.Order = append(c.Fuels.Order, fu.Item)
		}
		c.Fuels.BurnValue[fu.Item] = fu.BurnValue
	}

	for _, v := range f.Vehicles {
		if v.ID == "" {
			return nil, fmt.Errorf("vehicles.yaml: vehicle with empty id")
		}
		if _, dup := c.Vehicles.ByID[v.ID]; dup {
			return nil, fmt.Errorf("vehicles.yaml: duplicate vehicle %q", v.ID)
		}
		v.FuelKind = strings.ToUpper(strings.TrimSpace(v.FuelKind))
		switch v.FuelKind {
		case FuelSteam, FuelDiesel, FuelElectric:
		case "":
			v.FuelKind = FuelElectric
		default:
			return nil, fmt.Errorf("vehicles.yaml: %s: unknown fuel_kind %q", v.ID, v.FuelKind)
		}
		if v.MaxSpeed < 0 {
			return nil, fmt.Errorf("vehicles.yaml: %s: max_speed must be >= 0", v.ID)
		}
		for _, cue := range []string{v.Horn, v.Running} {
			if cue == "" {
				continue
			}
			if _, ok := c.Sounds.ByID[cue]; !ok {
				return nil, fmt.Errorf("vehicles.yaml: %s: unknown sound %q", v.ID, cue)
			}
		}
		c.Vehicles.ByID[v.ID] = v
		c.Vehicles.IDs = append(c.Vehicles.IDs, v.ID)
	}
	sort.Strings(c.Vehicles.IDs)
	return c, nil
}

func (c *Catalogs) Vehicle(id string) (VehicleDef, bool) {
	if c == nil {
		return VehicleDef{}, false
	}
	v, ok := c.Vehicles.ByID[id]
	return v, ok
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
