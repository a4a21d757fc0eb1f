package cab

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"traincraft.dev/internal/protocol"
)

// Dial connects to a server and sends HELLO for trainID.
func Dial(ctx context.Context, url, driverName, trainID string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		DriverName:      driverName,
		TrainID:         trainID,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 16},
	}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// Session ties one websocket driver connection to a screen.
type Session struct {
	conn   *websocket.Conn
	screen tcell.Screen
	player Player
	log    zerolog.Logger

	Model Model
}

func NewSession(conn *websocket.Conn, screen tcell.Screen, player Player, log zerolog.Logger) *Session {
	if player == nil {
		player = Silent{}
	}
	return &Session{conn: conn, screen: screen, player: player, log: log}
}

// Run pumps server messages and key presses until the user quits, ctx ends or
// the connection drops.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, b, err := s.conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	keys := make(chan *tcell.EventKey, 16)
	go func() {
		for {
			ev := s.screen.PollEvent()
			if ev == nil {
				return
			}
			switch ev := ev.(type) {
			case *tcell.EventKey:
				select {
				case keys <- ev:
				case <-ctx.Done():
					return
				}
			case *tcell.EventResize:
				s.screen.Sync()
			}
		}
	}()

	redraw := time.NewTicker(250 * time.Millisecond)
	defer redraw.Stop()
	Render(s.screen, &s.Model)
	for {
		select {
		case <-ctx.Done():
			return s.close(ctx.Err())
		case err := <-readErr:
			return s.close(err)
		case b := <-msgs:
			s.HandleMessage(b)
			Render(s.screen, &s.Model)
		case ev := <-keys:
			quit, err := s.HandleKey(ev.Key(), ev.Rune())
			if err != nil || quit {
				return s.close(err)
			}
			Render(s.screen, &s.Model)
		case <-redraw.C:
			Render(s.screen, &s.Model)
		}
	}
}

// HandleMessage applies one server message and plays its cues.
func (s *Session) HandleMessage(b []byte) {
	cues, err := s.Model.Apply(b)
	if err != nil {
		s.log.Warn().Err(err).Msg("bad server message")
		return
	}
	for _, c := range cues {
		s.player.Play(c)
	}
}

// HandleKey sends the command bound to a key. It reports whether the cab should quit.
func (s *Session) HandleKey(key tcell.Key, r rune) (quit bool, err error) {
	act, ok := KeyAction(key, r, s.Model.Train)
	if !ok {
		return false, nil
	}
	if act.Quit {
		return true, nil
	}
	if !s.Model.Attached {
		return false, nil
	}
	b, err := json.Marshal(s.Model.Command(act.Cmd))
	if err != nil {
		return false, err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return false, s.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Session) close(err error) error {
	s.player.Play(Cue{Kind: CueRunStop})
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) || err == context.Canceled {
		return nil
	}
	return err
}
