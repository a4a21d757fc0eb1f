package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sort"
)

// stateDigest hashes every piece of simulation state that affects future ticks.
// Drivers and per-tick events are excluded.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	writeU64(h, &tmp, nowTick)
	writeU64(h, &tmp, uint64(len(w.trainIDs)))
	for _, id := range w.trainIDs {
		w.digestTrain(h, &tmp, w.trains[id])
	}
	writeU64(h, &tmp, uint64(len(w.obstacles)))
	for _, o := range w.obstacles {
		writeU64(h, &tmp, uint64(int64(o[0])))
		writeU64(h, &tmp, uint64(int64(o[1])))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (w *World) digestTrain(h hash.Hash, tmp *[8]byte, ent *trainEntity) {
	c := ent.ctrl
	writeString(h, c.ID())
	writeString(h, c.Class().ID)
	writeString(h, c.Owner())
	writeString(h, c.Destination())
	writeF64(h, tmp, ent.heading[0])
	writeF64(h, tmp, ent.heading[1])

	s := c.State()
	writeU64(h, tmp, uint64(int64(s.Accelerator)))
	h.Write([]byte{boolByte(s.Reverse), boolByte(s.Brake), boolByte(s.Running)})
	writeU64(h, tmp, uint64(int64(s.FurnaceFuel)))
	writeU64(h, tmp, s.TickCounter)
	writeF64(h, tmp, s.Motion.X)
	writeF64(h, tmp, s.Motion.Y)
	writeF64(h, tmp, s.Motion.Z)

	for _, b := range c.Bogies() {
		v := b.Velocity()
		for _, f := range []float64{b.Position.X, b.Position.Y, b.Position.Z, v.X, v.Y, v.Z} {
			writeF64(h, tmp, f)
		}
	}

	writeSortedNonZeroIntMap(h, tmp, c.Inventory().Items())
	t := c.Tank()
	writeString(h, t.Fluid)
	writeU64(h, tmp, uint64(int64(t.Amount)))
	writeU64(h, tmp, uint64(int64(t.Capacity)))

	writeU64(h, tmp, ent.cmdWindow.StartTick)
	writeU64(h, tmp, uint64(int64(ent.cmdWindow.Count)))
}

func writeU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeF64(h hash.Hash, tmp *[8]byte, f float64) { writeU64(h, tmp, math.Float64bits(f)) }

// writeString is length-prefixed so adjacent fields cannot alias.
func writeString(h hash.Hash, s string) {
	var tmp [8]byte
	writeU64(h, &tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func writeSortedNonZeroIntMap(h hash.Hash, tmp *[8]byte, m map[string]int) {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	writeU64(h, tmp, uint64(len(keys)))
	for _, k := range keys {
		writeString(h, k)
		writeU64(h, tmp, uint64(int64(m[k])))
	}
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
