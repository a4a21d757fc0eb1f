package world

import (
	"encoding/json"
	"fmt"

	"traincraft.dev/internal/protocol"
	"traincraft.dev/internal/sim/catalogs"
)

// applyCmds resolves one envelope to its train and applies its commands in order.
// Commands that pass routing are recorded even if they are rejected later, so a
// replay sees the same rate limit windows.
func (w *World) applyCmds(env CmdEnvelope, nowTick uint64, recorded *[]RecordedCmd, rejected *[]RejectedCmd) {
	var out chan []byte
	if env.DriverID != "" {
		d := w.drivers[env.DriverID]
		if d == nil {
			return
		}
		out = d.Out
		if env.TrainID == "" {
			env.TrainID = d.TrainID
		}
		if d.TrainID != env.TrainID {
			for _, cmd := range env.Cmds {
				w.reject(out, nowTick, env.TrainID, cmd, protocol.ErrUnknownTrain, "driver is not attached to this train", rejected)
			}
			return
		}
	}
	ent := w.trains[env.TrainID]
	if ent == nil {
		for _, cmd := range env.Cmds {
			w.reject(out, nowTick, env.TrainID, cmd, protocol.ErrUnknownTrain, "unknown train", rejected)
		}
		return
	}

	for _, cmd := range env.Cmds {
		*recorded = append(*recorded, RecordedCmd{DriverID: env.DriverID, TrainID: env.TrainID, Cmd: cmd})
		window := uint64(w.cfg.RateLimits.CmdWindowTicks)
		if ok, cd := ent.cmdWindow.allow(nowTick, window, w.cfg.RateLimits.CmdMax); !ok {
			w.reject(out, nowTick, env.TrainID, cmd, protocol.ErrRateLimit, fmt.Sprintf("too many commands; retry in %d ticks", cd), rejected)
			continue
		}
		if code, msg := w.applyCmd(ent, cmd); code != "" {
			w.reject(out, nowTick, env.TrainID, cmd, code, msg, rejected)
			continue
		}
		w.cmdsApplied++
	}
}

func (w *World) applyCmd(ent *trainEntity, cmd protocol.CmdReq) (code string, msg string) {
	c := ent.ctrl
	switch cmd.Type {
	case protocol.CmdThrottleUp:
		c.SetAcceleration(true)
	case protocol.CmdThrottleDown:
		c.SetAcceleration(false)
	case protocol.CmdBrakeOn:
		c.SetBrake(true)
	case protocol.CmdBrakeOff:
		c.SetBrake(false)
	case protocol.CmdStart:
		w.primeFuel(ent)
		if ent.def.FuelKind != catalogs.FuelElectric && c.FurnaceFuel() <= 0 {
			return protocol.ErrNoResource, "no fuel"
		}
		c.SetRunning(true)
	case protocol.CmdStop:
		c.SetRunning(false)
	case protocol.CmdHorn:
		horn := c.Class().Horn
		if horn == "" {
			return protocol.ErrBadRequest, "class has no horn"
		}
		ent.addEvent(protocol.Event{"type": "HORN", "sound": horn})
	case protocol.CmdLoad:
		if cmd.Item == "" || cmd.Count <= 0 {
			return protocol.ErrBadRequest, "item and count required"
		}
		n := c.Inventory().Add(cmd.Item, cmd.Count)
		if n == 0 {
			return protocol.ErrNoResource, "inventory full"
		}
		ent.addEvent(protocol.Event{"type": "LOADED", "item": cmd.Item, "count": n})
		w.primeFuel(ent)
	case protocol.CmdFill:
		if cmd.Fluid == "" || cmd.Amount <= 0 {
			return protocol.ErrBadRequest, "fluid and amount required"
		}
		if ent.def.TankFluid != "" && cmd.Fluid != ent.def.TankFluid {
			return protocol.ErrBadRequest, fmt.Sprintf("tank takes %s", ent.def.TankFluid)
		}
		n := c.Tank().Fill(cmd.Fluid, cmd.Amount)
		if n == 0 {
			return protocol.ErrNoResource, "tank full"
		}
		ent.addEvent(protocol.Event{"type": "FILLED", "fluid": cmd.Fluid, "amount": n})
		w.primeFuel(ent)
	case protocol.CmdSetDestination:
		c.SetDestination(cmd.Destination)
		ent.addEvent(protocol.Event{"type": "DESTINATION", "destination": cmd.Destination})
	default:
		return protocol.ErrBadRequest, "unknown command type"
	}
	return "", ""
}

func (w *World) reject(out chan []byte, nowTick uint64, trainID string, cmd protocol.CmdReq, code, msg string, rejected *[]RejectedCmd) {
	w.cmdsRejected++
	*rejected = append(*rejected, RejectedCmd{TrainID: trainID, CmdID: cmd.ID, Type: cmd.Type, Code: code})
	if out == nil {
		return
	}
	b, err := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          cmd.ID,
		Accepted:        false,
		Code:            code,
		Message:         msg,
		ServerTick:      nowTick,
	})
	if err != nil {
		return
	}
	sendLatest(out, b)
}

// primeFuel brings furnaceFuel up to date with the train's stores between fuel checks.
func (w *World) primeFuel(ent *trainEntity) {
	if res := w.fuel.Prime(ent.ctrl); res.Loaded > 0 {
		ent.addEvent(protocol.Event{"type": "FURNACE_LOADED", "fuel": res.Loaded})
	}
}
