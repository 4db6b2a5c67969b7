package device

import (
	"errors"
	"sync"
	"time"

	"github.com/eimkon/eimkon/pkg/audio"
)

// timeline mixes scheduled chunks into a mono sample stream and keeps the
// sample clock that drives [audio.Clock]. It has no device dependency so that
// the mixing logic can be exercised without hardware.
type timeline struct {
	rate int

	mu     sync.Mutex
	cursor int64 // frames rendered so far
	voices []*voice
}

// voice is one scheduled chunk.
type voice struct {
	t       *timeline
	samples []float32
	start   int64 // absolute frame at which playback begins
	pos     int
	done    func()
	ended   bool
}

func newTimeline(rate int) *timeline {
	return &timeline{rate: rate}
}

// Now implements [audio.Clock].
func (t *timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.framesToDuration(t.cursor)
}

func (t *timeline) framesToDuration(f int64) time.Duration {
	return time.Duration(f) * time.Second / time.Duration(t.rate)
}

func (t *timeline) durationToFrames(d time.Duration) int64 {
	return int64(d) * int64(t.rate) / int64(time.Second)
}

// Schedule implements [audio.Output].
func (t *timeline) Schedule(chunk audio.Chunk, at time.Duration, done func()) (audio.Source, error) {
	if chunk.Frames() == 0 {
		return nil, errors.New("device: empty chunk")
	}
	var mono []float32
	if chunk.Channels > 1 {
		interleaved := make([]float32, 0, chunk.Frames()*chunk.Channels)
		for i := range chunk.Frames() {
			for ch := range chunk.Channels {
				interleaved = append(interleaved, chunk.Samples[ch][i])
			}
		}
		mono = audio.DownmixToMono(interleaved, chunk.Channels)
	} else {
		mono = chunk.Samples[0]
	}
	mono = audio.ResampleMono(mono, chunk.SampleRate, t.rate)

	t.mu.Lock()
	defer t.mu.Unlock()
	v := &voice{
		t:       t,
		samples: mono,
		start:   max(t.durationToFrames(at), t.cursor),
		done:    done,
	}
	t.voices = append(t.voices, v)
	return v, nil
}

// render fills out with the next len(out) frames and advances the clock.
func (t *timeline) render(out []float32) {
	clear(out)

	t.mu.Lock()
	from := t.cursor
	to := from + int64(len(out))
	var finished []func()
	kept := t.voices[:0]
	for _, v := range t.voices {
		if v.start < to {
			offset := max(0, int(v.start-from))
			n := min(len(out)-offset, len(v.samples)-v.pos)
			audio.Mix(out[offset:offset+n], v.samples[v.pos:v.pos+n])
			v.pos += n
		}
		if v.pos >= len(v.samples) {
			v.ended = true
			finished = append(finished, v.done)
			continue
		}
		kept = append(kept, v)
	}
	clear(t.voices[len(kept):])
	t.voices = kept
	t.cursor = to
	t.mu.Unlock()

	for _, fn := range finished {
		if fn != nil {
			go fn()
		}
	}
}

// Stop implements [audio.Source].
func (v *voice) Stop() error {
	t := v.t
	t.mu.Lock()
	if v.ended {
		t.mu.Unlock()
		return nil
	}
	v.ended = true
	for i, other := range t.voices {
		if other == v {
			t.voices = append(t.voices[:i], t.voices[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	if v.done != nil {
		go v.done()
	}
	return nil
}
