package cab

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"traincraft.dev/internal/protocol"
)

const sampleRate = beep.SampleRate(44100)

// Player turns cab cues into sound.
type Player interface {
	Play(c Cue)
	Close()
}

// Silent discards cues.
type Silent struct{}

func (Silent) Play(Cue) {}
func (Silent) Close()   {}

// BeepPlayer plays cues through the default audio device.
type BeepPlayer struct {
	mu      sync.Mutex
	mixer   *beep.Mixer
	running *beep.Ctrl
}

// NewBeepPlayer initialises the speaker. Callers fall back to Silent on error.
func NewBeepPlayer() (*BeepPlayer, error) {
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return nil, err
	}
	p := &BeepPlayer{mixer: &beep.Mixer{}}
	speaker.Play(p.mixer)
	return p, nil
}

func (p *BeepPlayer) Play(c Cue) {
	speaker.Lock()
	defer speaker.Unlock()
	p.cue(c)
}

// cue updates the mixer. The caller holds the speaker lock.
func (p *BeepPlayer) cue(c Cue) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch c.Kind {
	case CueHorn:
		if s := tone(sampleRate, c.Sound); s != nil {
			p.mixer.Add(s)
		}
	case CueRunStart:
		p.stopRunning()
		if s := tone(sampleRate, c.Sound); s != nil {
			p.running = &beep.Ctrl{Streamer: s}
			p.mixer.Add(p.running)
		}
	case CueRunStop:
		p.stopRunning()
	}
}

// stopRunning ends the engine loop. A Ctrl with no streamer reports drained, so
// the mixer drops it on its next pass.
func (p *BeepPlayer) stopRunning() {
	if p.running == nil {
		return
	}
	p.running.Streamer = nil
	p.running = nil
}

func (p *BeepPlayer) Close() {
	speaker.Lock()
	p.mixer.Clear()
	speaker.Unlock()
	speaker.Close()
}

// tone builds the streamer for one catalog sound: a sine at FreqHz lasting
// DurationMs, or endless when Loop is set.
func tone(sr beep.SampleRate, snd *protocol.Sound) beep.Streamer {
	if snd == nil || snd.FreqHz <= 0 || snd.DurationMs <= 0 {
		return nil
	}
	sine, err := generators.SineTone(sr, snd.FreqHz)
	if err != nil {
		return nil
	}
	var s beep.Streamer = sine
	if !snd.Loop {
		s = beep.Take(sr.N(time.Duration(snd.DurationMs)*time.Millisecond), sine)
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: -2}
}
