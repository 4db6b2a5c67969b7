package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// Cue names a short synthesized sound.
type Cue string

const (
	// CueNav plays on every route change.
	CueNav Cue = "nav"
	// CueSuccess plays for a correct quiz answer.
	CueSuccess Cue = "success"
	// CueError plays for a wrong quiz answer.
	CueError Cue = "error"
	// CueClick is an unshaped 440 Hz tone at unity gain.
	CueClick Cue = "click"
)

// CueDuration is the length of every cue in seconds.
const CueDuration = 0.3

// ErrUnknownCue is returned for a [Cue] without a tone shape.
var ErrUnknownCue = errors.New("audio: unknown cue")

// ramp is one automation segment: from at t=0 to to at t=over, holding to
// afterwards.
type ramp struct {
	from, to float64
	over     float64
	exp      bool
}

func (r ramp) at(t float64) float64 {
	if r.over <= 0 || t >= r.over {
		return r.to
	}
	x := t / r.over
	if r.exp {
		return r.from * math.Pow(r.to/r.from, x)
	}
	return r.from + (r.to-r.from)*x
}

type toneShape struct {
	freq ramp
	gain ramp
}

var cueShapes = map[Cue]toneShape{
	CueSuccess: {
		freq: ramp{from: 587.33, to: 880, over: 0.1, exp: true},
		gain: ramp{from: 0.1, to: 0.01, over: 0.3, exp: true},
	},
	CueNav: {
		freq: ramp{from: 440, to: 440},
		gain: ramp{from: 0.05, to: 0.01, over: 0.1, exp: true},
	},
	CueError: {
		freq: ramp{from: 220, to: 110, over: 0.2},
		gain: ramp{from: 0.1, to: 0.01, over: 0.3, exp: true},
	},
	CueClick: {
		freq: ramp{from: 440, to: 440},
		gain: ramp{from: 1, to: 1},
	},
}

// Tone renders c as a mono sine at rate Hz lasting [CueDuration].
func Tone(c Cue, rate int) (Chunk, error) {
	shape, ok := cueShapes[c]
	if !ok {
		return Chunk{}, fmt.Errorf("%w: %q", ErrUnknownCue, c)
	}
	if rate <= 0 {
		return Chunk{}, fmt.Errorf("audio: tone %s: invalid sample rate %d", c, rate)
	}

	n := int(math.Round(CueDuration * float64(rate)))
	out := make([]float32, n)
	var phase float64
	for i := range out {
		t := float64(i) / float64(rate)
		out[i] = float32(shape.gain.at(t) * math.Sin(phase))
		// Phase is accumulated so frequency ramps stay continuous.
		phase += 2 * math.Pi * shape.freq.at(t) / float64(rate)
		if phase > 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}
	return Chunk{SampleRate: rate, Channels: 1, Samples: [][]float32{out}}, nil
}

// CuePlayer plays cues on an [Output], each cutting off the previous one.
// Rendered tones are cached per cue.
type CuePlayer struct {
	player *OneShot
	rate   int

	mu    sync.Mutex
	tones map[Cue]Chunk
}

// NewCuePlayer returns a CuePlayer rendering at rate Hz on out.
func NewCuePlayer(out Output, rate int) *CuePlayer {
	return &CuePlayer{player: NewOneShot(out), rate: rate, tones: make(map[Cue]Chunk)}
}

// Play starts c without waiting for it to finish.
func (p *CuePlayer) Play(c Cue) error {
	chunk, err := p.tone(c)
	if err != nil {
		return err
	}
	_, err = p.player.Play(chunk)
	return err
}

// Stop cuts off the current cue.
func (p *CuePlayer) Stop() { p.player.Stop() }

func (p *CuePlayer) tone(c Cue) (Chunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if chunk, ok := p.tones[c]; ok {
		return chunk, nil
	}
	chunk, err := Tone(c, p.rate)
	if err != nil {
		return Chunk{}, err
	}
	p.tones[c] = chunk
	return chunk, nil
}
