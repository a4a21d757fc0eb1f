package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"traincraft.dev/internal/logging"
	"traincraft.dev/internal/protocol"
	"traincraft.dev/internal/sim/world"
)

// Server attaches websocket drivers to a world. One connection drives one train.
type Server struct {
	world     *world.World
	validator *protocol.Validator
	log       zerolog.Logger
	noisy     zerolog.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, v *protocol.Validator, logger zerolog.Logger) *Server {
	return &Server{
		world:     w,
		validator: v,
		log:       logger,
		noisy:     logging.Sampled(logger, 50),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		driverID, trainID, out := s.handshake(conn)
		if driverID == "" {
			return
		}
		log := s.noisy.With().Str("driver_id", driverID).Str("train_id", trainID).Logger()
		s.log.Info().Str("driver_id", driverID).Str("train_id", trainID).Str("remote", r.RemoteAddr).Msg("driver attached")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeCmd {
				continue
			}
			if err := s.validator.Validate(protocol.SchemaCmd, msg); err != nil {
				log.Debug().Err(err).Msg("CMD failed schema")
				s.nack(out, protocol.ErrProtoBadRequest, firstLine(err.Error()))
				continue
			}
			var cmd protocol.CmdMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				s.nack(out, protocol.ErrProtoBadRequest, "bad CMD")
				continue
			}
			if cmd.ProtocolVersion != protocol.Version {
				s.nack(out, protocol.ErrProtoBadRequest, "bad protocol_version")
				continue
			}
			s.world.Inbox() <- world.CmdEnvelope{DriverID: driverID, TrainID: cmd.TrainID, Cmds: cmd.Cmds}
		}

		// Cleanup.
		s.world.Leave() <- driverID
		s.log.Info().Str("driver_id", driverID).Msg("driver detached")
	}
}

func (s *Server) handshake(conn *websocket.Conn) (driverID, trainID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", "", nil
	}
	if err := s.validator.Validate(protocol.SchemaHello, msg); err != nil {
		_ = writeJSON(conn, ackError(protocol.TypeHello, protocol.ErrProtoBadRequest, firstLine(err.Error())))
		closeWith(conn, "bad HELLO")
		return "", "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", "", nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{
		DriverName: strings.TrimSpace(hello.DriverName),
		TrainID:    hello.TrainID,
		Out:        out,
		Resp:       respCh,
	}
	resp := <-respCh
	if resp.Code != "" {
		_ = writeJSON(conn, ackError(protocol.TypeHello, resp.Code, resp.Message))
		closeWith(conn, resp.Code)
		return "", "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.world.Leave() <- resp.Welcome.DriverID
		return "", "", nil
	}
	return resp.Welcome.DriverID, resp.Welcome.TrainID, out
}

// nack queues a protocol-level rejection on the driver's outbound channel without blocking.
func (s *Server) nack(out chan []byte, code, msg string) {
	b, _ := json.Marshal(ackError(protocol.TypeCmd, code, msg))
	select {
	case out <- b:
	default:
	}
}

func ackError(ackFor, code, msg string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          ackFor,
		Accepted:        false,
		Code:            code,
		Message:         msg,
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
