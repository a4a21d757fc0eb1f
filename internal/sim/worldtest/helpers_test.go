package worldtest

import (
	"testing"

	"traincraft.dev/internal/protocol"
)

func hasEvent(events []protocol.Event, typ string) bool {
	for _, e := range events {
		if e["type"] == typ {
			return true
		}
	}
	return false
}

func newSteamHarness(t *testing.T) *Harness {
	t.Helper()
	cfg, cats, rw := Railway(t)
	return NewHarness(t, cfg, cats, rw.Trains, "T-steam-1")
}
