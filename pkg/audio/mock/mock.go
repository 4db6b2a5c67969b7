// Package mock provides in-memory mock implementations of the [audio.Microphone]
// and [audio.Output] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	out := &mock.Output{}
//	sched := audio.NewScheduler(out)
//	out.SetNow(2 * time.Second)
//	start, _ := sched.Enqueue(chunk)
//	out.Finish(0) // simulate natural completion of the first scheduled chunk
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/eimkon/eimkon/pkg/audio"
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock implementation of [audio.Microphone].
type Microphone struct {
	mu sync.Mutex

	// Rate is returned by SampleRate. Defaults to [audio.CaptureSampleRate].
	Rate int

	// StartError is returned by Start.
	StartError error

	// StopError is returned by Stop.
	StopError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	fn func([]float32)
}

// Start implements [audio.Microphone]. It records the callback so that tests
// can drive it with [Microphone.Emit].
func (m *Microphone) Start(_ context.Context, fn func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountStart++
	if m.StartError != nil {
		return m.StartError
	}
	m.fn = fn
	return nil
}

// SampleRate implements [audio.Microphone].
func (m *Microphone) SampleRate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Rate == 0 {
		return audio.CaptureSampleRate
	}
	return m.Rate
}

// Stop implements [audio.Microphone]. The callback is kept so that tests can
// simulate a device that keeps firing after stop.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountStop++
	return m.StopError
}

// Emit invokes the registered data callback with samples. It is a no-op if
// Start was never called successfully.
func (m *Microphone) Emit(samples []float32) {
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	if fn != nil {
		fn(samples)
	}
}

// ─── Output ───────────────────────────────────────────────────────────────────

// ScheduleCall records the arguments of a single [Output.Schedule] invocation.
type ScheduleCall struct {
	// Chunk is the chunk passed to Schedule.
	Chunk audio.Chunk
	// At is the requested start time.
	At time.Duration
	// Source is the handle returned to the caller.
	Source *Source
}

// Source is the mock [audio.Source] handed out by [Output.Schedule].
type Source struct {
	mu      sync.Mutex
	done    func()
	stopped bool
	ended   bool

	// StopError is returned by Stop.
	StopError error
}

// Stop implements [audio.Source]. It marks the source stopped and fires the
// done callback on a separate goroutine, as a real device would.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if !s.ended {
		s.ended = true
		go s.done()
	}
	return s.StopError
}

// Stopped reports whether Stop was called.
func (s *Source) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// finish fires the done callback synchronously if it has not fired yet.
func (s *Source) finish() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()
	s.done()
}

// Output is a mock implementation of [audio.Output] with a manually driven
// clock.
type Output struct {
	mu  sync.Mutex
	now time.Duration

	// ScheduleError is returned by Schedule.
	ScheduleError error

	// ScheduleCalls records all Schedule invocations.
	ScheduleCalls []ScheduleCall
}

// Now implements [audio.Clock].
func (o *Output) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// SetNow moves the clock to d.
func (o *Output) SetNow(d time.Duration) {
	o.mu.Lock()
	o.now = d
	o.mu.Unlock()
}

// Schedule implements [audio.Output].
func (o *Output) Schedule(chunk audio.Chunk, at time.Duration, done func()) (audio.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ScheduleError != nil {
		return nil, o.ScheduleError
	}
	src := &Source{done: done}
	o.ScheduleCalls = append(o.ScheduleCalls, ScheduleCall{Chunk: chunk, At: at, Source: src})
	return src, nil
}

// Calls returns a snapshot of ScheduleCalls.
func (o *Output) Calls() []ScheduleCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ScheduleCall, len(o.ScheduleCalls))
	copy(out, o.ScheduleCalls)
	return out
}

// Finish simulates natural completion of the i-th scheduled chunk.
func (o *Output) Finish(i int) {
	o.mu.Lock()
	src := o.ScheduleCalls[i].Source
	o.mu.Unlock()
	src.finish()
}
