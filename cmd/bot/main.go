package main

import (
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"traincraft.dev/internal/logging"
	"traincraft.dev/internal/protocol"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name      = flag.String("name", "bot", "driver name")
		trainID   = flag.String("train", "", "train to drive (empty: server picks)")
		notch     = flag.Int("notch", 2, "throttle notch to hold")
		hornEvery = flag.Uint64("horn_every", 400, "sound the horn every N ticks (0 disables)")
		logEvery  = flag.Uint64("log_every", 100, "log train state every N ticks")
		level     = flag.String("log_level", "info", "log level")
	)
	flag.Parse()

	logger := logging.New(*level, os.Stdout, true).With().Str("component", "bot").Logger()
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial")
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		DriverName:      *name,
		TrainID:         *trainID,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatal().Err(err).Msg("send HELLO")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	var sc *script
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Info().Err(err).Msg("connection closed")
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Info().Str("driver_id", w.DriverID).Str("train_id", w.TrainID).
				Str("class", w.Class.ID).Str("fuel", w.Class.FuelKind).Int("tick_rate", w.WorldParams.TickRateHz).Msg("WELCOME")
			sc = newScript(w, *notch, *hornEvery)

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			logger.Warn().Str("ack_for", a.AckFor).Str("code", a.Code).Str("message", a.Message).Msg("rejected")
			if sc != nil {
				sc.onAck(a)
			}

		case protocol.TypeState:
			if sc == nil {
				continue
			}
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			if *logEvery > 0 && st.Tick%*logEvery == 0 {
				logger.Info().Uint64("tick", st.Tick).Bool("running", st.Train.Running).Int("accel", st.Train.Accelerator).
					Int("fuel", st.Train.FurnaceFuel).Int("tank", st.Train.Tank.Amount).Interface("motion", st.Train.Motion).Msg("STATE")
			}
			for _, ev := range st.Events {
				logger.Debug().Uint64("tick", st.Tick).Interface("event", ev).Msg("event")
			}
			if cmds := sc.onState(st); len(cmds) > 0 {
				if err := conn.WriteJSON(sc.message(st.Tick, cmds)); err != nil {
					logger.Error().Err(err).Msg("send CMD")
					return
				}
			}
		}
	}
}
