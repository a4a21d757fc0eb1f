package tuning

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Railway is the initial layout of a fresh world.
type Railway struct {
	Trains    []TrainSpawn `yaml:"trains"`
	Obstacles [][2]int     `yaml:"obstacles"`
}

type TrainSpawn struct {
	ID        string         `yaml:"id"`
	Class     string         `yaml:"class"`
	Owner     string         `yaml:"owner"`
	Pos       [3]float64     `yaml:"pos"`
	Heading   string         `yaml:"heading"`
	Running   bool           `yaml:"running"`
	Inventory map[string]int `yaml:"inventory"`
	Tank      struct {
		Fluid  string `yaml:"fluid"`
		Amount int    `yaml:"amount"`
	} `yaml:"tank"`
}

// HeadingVector maps "+X", "-X", "+Z", "-Z" to a unit planar direction.
func HeadingVector(h string) (x, z float64, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(h)) {
	case "+X", "X", "":
		return 1, 0, true
	case "-X":
		return -1, 0, true
	case "+Z", "Z":
		return 0, 1, true
	case "-Z":
		return 0, -1, true
	}
	return 0, 0, false
}

func LoadRailway(path string) (Railway, error) {
	var r Railway
	raw, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("railway.yaml: %w", err)
	}
	seen := map[string]bool{}
	for i := range r.Trains {
		s := &r.Trains[i]
		if s.Class == "" {
			return r, fmt.Errorf("railway.yaml: train %d needs a class", i)
		}
		if s.ID == "" {
			s.ID = SpawnID(s.Class, i)
		}
		if seen[s.ID] {
			return r, fmt.Errorf("railway.yaml: duplicate train %q", s.ID)
		}
		seen[s.ID] = true
		if _, _, ok := HeadingVector(s.Heading); !ok {
			return r, fmt.Errorf("railway.yaml: %s: bad heading %q", s.ID, s.Heading)
		}
	}
	return r, nil
}

// SpawnID names an unnamed train from its class and position in the file, so
// reloading the same railway yields the same ids.
func SpawnID(class string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("traincraft:%s:%d", class, index))).String()
}
