package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eimkon/eimkon/pkg/audio"
)

// ErrNoDevice is wrapped by [NullMicrophone.Start].
var ErrNoDevice = errors.New("device: audio backend disabled")

// NullMicrophone is an [audio.Microphone] for hosts without a sound card.
// Start always fails with a microphone access error.
type NullMicrophone struct{}

var _ audio.Microphone = NullMicrophone{}

// Start implements [audio.Microphone].
func (NullMicrophone) Start(context.Context, func([]float32)) error {
	return &audio.MicAccessError{Reason: "audio backend disabled", Err: ErrNoDevice}
}

// SampleRate implements [audio.Microphone].
func (NullMicrophone) SampleRate() int { return audio.CaptureSampleRate }

// Stop implements [audio.Microphone].
func (NullMicrophone) Stop() error { return nil }

// NullOutput is an [audio.Output] that discards audio but keeps wall-clock
// timing, so schedulers and one-shot players behave as with a real device.
type NullOutput struct {
	start time.Time
}

var _ audio.Output = (*NullOutput)(nil)

// NewNullOutput returns a NullOutput whose clock starts now.
func NewNullOutput() *NullOutput {
	return &NullOutput{start: time.Now()}
}

// Now implements [audio.Clock].
func (o *NullOutput) Now() time.Duration { return time.Since(o.start) }

// Schedule implements [audio.Output].
func (o *NullOutput) Schedule(chunk audio.Chunk, at time.Duration, done func()) (audio.Source, error) {
	wait := max(at-o.Now(), 0) + chunk.Duration()
	s := &nullSource{done: done}
	s.timer = time.AfterFunc(wait, s.finish)
	return s, nil
}

type nullSource struct {
	once  sync.Once
	timer *time.Timer
	done  func()
}

func (s *nullSource) finish() {
	s.once.Do(func() {
		if s.done != nil {
			s.done()
		}
	})
}

func (s *nullSource) Stop() error {
	if s.timer.Stop() {
		go s.finish()
	}
	return nil
}
