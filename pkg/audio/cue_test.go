package audio_test

import (
	"errors"
	"math"
	"testing"

	"github.com/eimkon/eimkon/pkg/audio"
	"github.com/eimkon/eimkon/pkg/audio/mock"
)

const cueRate = 24000

// window returns the samples of c between from and to seconds.
func window(c audio.Chunk, from, to float64) []float32 {
	return c.Samples[0][int(from*cueRate):int(to*cueRate)]
}

// pitch estimates the frequency of s from its zero crossings.
func pitch(s []float32) float64 {
	crossings := 0
	for i := 1; i < len(s); i++ {
		if (s[i-1] < 0) != (s[i] < 0) {
			crossings++
		}
	}
	return float64(crossings) / 2 / (float64(len(s)) / cueRate)
}

func peak(s []float32) float64 {
	var m float64
	for _, v := range s {
		m = max(m, math.Abs(float64(v)))
	}
	return m
}

func near(got, want, tol float64) bool { return math.Abs(got-want) <= tol*want }

func TestTone_Shapes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cue                   audio.Cue
		startPitch, endPitch  float64
		startPeak, endPeakMax float64
	}{
		{cue: audio.CueSuccess, startPitch: 600, endPitch: 880, startPeak: 0.1, endPeakMax: 0.012},
		{cue: audio.CueNav, startPitch: 440, endPitch: 440, startPeak: 0.05, endPeakMax: 0.0101},
		{cue: audio.CueError, startPitch: 215, endPitch: 110, startPeak: 0.1, endPeakMax: 0.012},
	}
	for _, tt := range tests {
		t.Run(string(tt.cue), func(t *testing.T) {
			t.Parallel()
			c, err := audio.Tone(tt.cue, cueRate)
			if err != nil {
				t.Fatalf("Tone: %v", err)
			}
			if c.SampleRate != cueRate || c.Channels != 1 || c.Frames() != cueRate*3/10 {
				t.Fatalf("chunk = %d Hz, %d ch, %d frames", c.SampleRate, c.Channels, c.Frames())
			}
			if got := pitch(window(c, 0, 0.02)); !near(got, tt.startPitch, 0.1) {
				t.Errorf("start pitch = %.0f Hz, want about %.0f", got, tt.startPitch)
			}
			if got := pitch(window(c, 0.2, 0.3)); !near(got, tt.endPitch, 0.05) {
				t.Errorf("end pitch = %.0f Hz, want about %.0f", got, tt.endPitch)
			}
			if got := peak(window(c, 0, 0.01)); got > tt.startPeak || got < tt.startPeak/2 {
				t.Errorf("start peak = %.4f, want up to %.2f", got, tt.startPeak)
			}
			if got := peak(window(c, 0.29, 0.3)); got > tt.endPeakMax {
				t.Errorf("end peak = %.4f, want at most %.4f", got, tt.endPeakMax)
			}
		})
	}
}

func TestTone_NavHoldsAfterDecay(t *testing.T) {
	t.Parallel()
	c, err := audio.Tone(audio.CueNav, cueRate)
	if err != nil {
		t.Fatal(err)
	}
	if got := peak(window(c, 0.1, 0.3)); got > 0.0101 || got < 0.009 {
		t.Errorf("tail peak = %.4f, want 0.01", got)
	}
}

func TestTone_Errors(t *testing.T) {
	t.Parallel()
	if _, err := audio.Tone("chime", cueRate); !errors.Is(err, audio.ErrUnknownCue) {
		t.Errorf("unknown cue err = %v, want ErrUnknownCue", err)
	}
	if _, err := audio.Tone(audio.CueNav, 0); err == nil {
		t.Error("zero sample rate accepted")
	}
}

func TestCuePlayer_CutsOffAndCaches(t *testing.T) {
	t.Parallel()
	out := &mock.Output{}
	p := audio.NewCuePlayer(out, cueRate)

	for _, c := range []audio.Cue{audio.CueNav, audio.CueSuccess, audio.CueNav} {
		if err := p.Play(c); err != nil {
			t.Fatalf("Play(%s): %v", c, err)
		}
	}
	calls := out.Calls()
	if len(calls) != 3 {
		t.Fatalf("schedule calls = %d, want 3", len(calls))
	}
	if !calls[0].Source.Stopped() || !calls[1].Source.Stopped() {
		t.Error("earlier cues were not cut off")
	}
	if &calls[0].Chunk.Samples[0][0] != &calls[2].Chunk.Samples[0][0] {
		t.Error("nav tone rendered twice")
	}

	p.Stop()
	if !calls[2].Source.Stopped() {
		t.Error("Stop did not cut off the current cue")
	}
	if err := p.Play("chime"); !errors.Is(err, audio.ErrUnknownCue) {
		t.Errorf("Play(unknown) = %v, want ErrUnknownCue", err)
	}
}
