// Package audio defines the audio types, codecs and device abstractions used
// by the E-Imkon voice tutor.
//
// The two device abstractions are:
//
//   - [Microphone]: a mono capture stream that delivers float32 samples from
//     a device goroutine.
//   - [Output]: a playback device with its own monotonic audio clock onto
//     which decoded [Chunk] values are scheduled at absolute clock times.
//
// Everything else in this package is built on top of those: the gapless
// [Scheduler], the [Capture] pipeline that frames and encodes microphone input,
// the [OneShot] player used for narration, and the pure codec helpers.
//
// Device implementations live in audio/device (miniaudio via malgo) and
// audio/mock (in-memory recorders for tests). This package lives under pkg/
// because host shells are expected to bring their own device adapters.
package audio

import (
	"context"
	"time"
)

// Microphone is a single mono capture device.
//
// Implementations must be safe for concurrent use. The data callback passed to
// Start runs on a device-owned goroutine and may keep firing for a short time
// after Stop returns; consumers gate delivery themselves.
type Microphone interface {
	// Start opens the device and begins delivering samples to fn. It returns
	// a [*MicAccessError] when the device is missing or access is denied.
	Start(ctx context.Context, fn func(samples []float32)) error

	// SampleRate reports the rate of the samples passed to the callback.
	SampleRate() int

	// Stop halts capture and releases the device. Safe to call more than once.
	Stop() error
}

// Clock reports the current position of an audio clock. The clock starts at
// zero when the device starts and never goes backwards.
type Clock interface {
	Now() time.Duration
}

// Source is a handle to one scheduled chunk on an [Output].
type Source interface {
	// Stop halts the chunk immediately. Stopping a chunk that already
	// finished is not an error.
	Stop() error
}

// Output is a playback device that accepts chunks scheduled at absolute
// positions on its clock.
//
// Implementations must not invoke the done callback synchronously from
// Schedule or from [Source.Stop]; the [Scheduler] holds its lock across
// Schedule.
type Output interface {
	Clock

	// Schedule arranges for chunk to start playing at clock time at. A time
	// in the past means "as soon as possible". done is called exactly once,
	// when the chunk finishes playing naturally or is stopped.
	Schedule(chunk Chunk, at time.Duration, done func()) (Source, error)
}
