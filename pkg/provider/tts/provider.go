// Package tts defines the Provider interface for single-shot Text-to-Speech
// backends.
//
// A TTS provider turns one complete piece of text into one speech clip. It is
// used for non-interactive narration (page and focus announcements, lesson
// read-aloud) where the whole utterance is known up front, unlike the
// streaming realtime session in package s2s.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// OutputSampleRate is the rate of the mono PCM16 audio returned by providers.
const OutputSampleRate = 24000

// ErrQuotaExhausted is wrapped by errors that signal the backend's quota or
// rate limit is used up. Callers use errors.Is to tell quota failures apart
// from transient ones.
var ErrQuotaExhausted = errors.New("tts: quota exhausted")

// Request describes one synthesis call.
type Request struct {
	// Model selects the backend model variant.
	Model string

	// Voice is the prebuilt voice name.
	Voice string

	// Text is the full prompt sent to the backend.
	Text string
}

// Provider is the abstraction over any single-shot TTS backend.
type Provider interface {
	// Synthesize returns mono signed 16-bit little-endian PCM at
	// [OutputSampleRate]. An empty result with a nil error means the backend
	// answered without audio. Quota failures wrap [ErrQuotaExhausted].
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// ErrUnconfigured is returned by [Unconfigured].
var ErrUnconfigured = errors.New("tts: provider not configured")

// Unconfigured stands in for a backend that could not be set up, typically
// because no API key is available. Every call fails with [ErrUnconfigured].
type Unconfigured struct{}

// Synthesize implements [Provider].
func (Unconfigured) Synthesize(context.Context, Request) ([]byte, error) {
	return nil, ErrUnconfigured
}
