package cab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traincraft.dev/internal/protocol"
)

type recordingPlayer struct{ cues []Cue }

func (p *recordingPlayer) Play(c Cue) { p.cues = append(p.cues, c) }
func (p *recordingPlayer) Close()     {}

// fakeServer accepts one driver, checks HELLO and forwards every CMD it receives.
func fakeServer(t *testing.T) (url string, hellos chan protocol.HelloMsg, cmds chan protocol.CmdMsg) {
	t.Helper()
	hellos = make(chan protocol.HelloMsg, 1)
	cmds = make(chan protocol.CmdMsg, 8)
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var h protocol.HelloMsg
		if err := conn.ReadJSON(&h); err != nil {
			return
		}
		hellos <- h
		for {
			var c protocol.CmdMsg
			if err := conn.ReadJSON(&c); err != nil {
				return
			}
			cmds <- c
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hellos, cmds
}

func TestSession_KeysSendCommands(t *testing.T) {
	url, hellos, cmds := fakeServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, url, "cab-test", "T-steam-1")
	require.NoError(t, err)
	defer conn.Close()

	select {
	case h := <-hellos:
		assert.Equal(t, "T-steam-1", h.TrainID)
		assert.Equal(t, "cab-test", h.DriverName)
		assert.Equal(t, protocol.Version, h.ProtocolVersion)
	case <-ctx.Done():
		t.Fatal("no HELLO")
	}

	player := &recordingPlayer{}
	s := NewSession(conn, tcell.NewSimulationScreen("UTF-8"), player, zerolog.Nop())

	// Keys before WELCOME are ignored.
	quit, err := s.HandleKey(tcell.KeyRune, 'e')
	require.NoError(t, err)
	assert.False(t, quit)

	b, _ := json.Marshal(welcomeMsg())
	s.HandleMessage(b)
	require.True(t, s.Model.Attached)

	_, err = s.HandleKey(tcell.KeyRune, 'e')
	require.NoError(t, err)
	_, err = s.HandleKey(tcell.KeyUp, 0)
	require.NoError(t, err)

	for _, want := range []string{protocol.CmdStart, protocol.CmdThrottleUp} {
		select {
		case c := <-cmds:
			require.Len(t, c.Cmds, 1)
			assert.Equal(t, want, c.Cmds[0].Type)
			assert.Equal(t, "T-steam-1", c.TrainID)
		case <-ctx.Done():
			t.Fatalf("no %s", want)
		}
	}

	b, _ = json.Marshal(stateMsg(3, protocol.TrainState{ID: "T-steam-1", Running: true}, protocol.Event{"type": "HORN"}))
	s.HandleMessage(b)
	require.Len(t, player.cues, 2)
	assert.Equal(t, CueHorn, player.cues[0].Kind)
	assert.Equal(t, CueRunStart, player.cues[1].Kind)

	quit, err = s.HandleKey(tcell.KeyRune, 'q')
	require.NoError(t, err)
	assert.True(t, quit)
}
