package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const (
	// CaptureSampleRate is the rate of audio forwarded to the remote engine.
	CaptureSampleRate = 16000

	// CaptureBlockSize is the number of samples in one forwarded block.
	CaptureBlockSize = 4096

	// CaptureMIMEType tags every forwarded block.
	CaptureMIMEType = "audio/pcm;rate=16000"
)

// ErrMicAccess is matched by every [*MicAccessError].
var ErrMicAccess = errors.New("audio: microphone unavailable")

// MicAccessError reports that the microphone could not be acquired because
// permission was denied or no device exists.
type MicAccessError struct {
	// Reason is a short human-readable explanation shown to the user.
	Reason string
	Err    error
}

func (e *MicAccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: microphone unavailable: %s: %v", e.Reason, e.Err)
	}
	return "audio: microphone unavailable: " + e.Reason
}

func (e *MicAccessError) Unwrap() error { return e.Err }

// Is reports whether target is [ErrMicAccess].
func (e *MicAccessError) Is(target error) bool { return target == ErrMicAccess }

// Capture frames microphone input into fixed [CaptureBlockSize] blocks at
// [CaptureSampleRate], encodes each block as PCM16 and hands it to a sink.
//
// Delivery is gated twice: the sink installed with [Capture.Forward] is
// removed by [Capture.Close], and the active func is consulted synchronously
// for every block, because the device callback keeps firing for a short
// while after a stop has been requested. Blocks delivered while inactive are
// dropped.
type Capture struct {
	mic    Microphone
	active func() bool

	mu      sync.Mutex
	sink    func(Blob)
	pending []float32
	started bool
}

// NewCapture returns a Capture reading from mic and gated by active.
func NewCapture(mic Microphone, active func() bool) *Capture {
	return &Capture{mic: mic, active: active}
}

// Acquire opens the microphone. Samples are discarded until
// [Capture.Forward] installs a sink. A device failure is returned as a
// [*MicAccessError].
func (c *Capture) Acquire(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	if err := c.mic.Start(ctx, c.deliver); err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		var mae *MicAccessError
		if errors.As(err, &mae) {
			return err
		}
		return &MicAccessError{Reason: "could not open capture device", Err: err}
	}
	return nil
}

// Forward installs sink as the block handler. Blocks are passed to sink in
// capture order on the device goroutine.
func (c *Capture) Forward(sink func(Blob)) {
	c.mu.Lock()
	c.sink = sink
	c.pending = c.pending[:0]
	c.mu.Unlock()
}

// Close removes the block handler and releases the microphone. Safe to call
// more than once.
func (c *Capture) Close() error {
	c.mu.Lock()
	c.sink = nil
	c.pending = nil
	started := c.started
	c.started = false
	c.mu.Unlock()

	if !started {
		return nil
	}
	if err := c.mic.Stop(); err != nil {
		return fmt.Errorf("audio: close capture: %w", err)
	}
	return nil
}

// deliver is the device callback.
func (c *Capture) deliver(samples []float32) {
	samples = ResampleMono(samples, c.mic.SampleRate(), CaptureSampleRate)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sink == nil {
		return
	}
	c.pending = append(c.pending, samples...)
	for len(c.pending) >= CaptureBlockSize {
		block := c.pending[:CaptureBlockSize]
		if c.active == nil || c.active() {
			c.sink(Blob{MIMEType: CaptureMIMEType, Data: FloatToPCM16(block)})
		}
		c.pending = c.pending[CaptureBlockSize:]
	}
	// Compact so the backing array does not grow without bound.
	if len(c.pending) > 0 && cap(c.pending) > 4*CaptureBlockSize {
		c.pending = append([]float32(nil), c.pending...)
	}
}
