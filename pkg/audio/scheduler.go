package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Scheduler queues decoded chunks onto an [Output] so that they play back to
// back with no gap and no overlap, however irregularly they arrive.
//
// It keeps a single playback cursor (the clock time at which the next chunk
// must begin) and the set of chunks that are scheduled but not yet finished.
// All methods are safe for concurrent use.
type Scheduler struct {
	out Output

	mu     sync.Mutex
	next   time.Duration
	active map[uint64]Source
	seq    uint64

	onEnqueue func(Chunk)
	onStop    func(n int)
}

// SchedulerOption configures a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithEnqueueHook registers fn to be called for every scheduled chunk.
func WithEnqueueHook(fn func(Chunk)) SchedulerOption {
	return func(s *Scheduler) { s.onEnqueue = fn }
}

// WithStopHook registers fn to be called after every [Scheduler.StopAll] with
// the number of chunks that were cut off.
func WithStopHook(fn func(n int)) SchedulerOption {
	return func(s *Scheduler) { s.onStop = fn }
}

// NewScheduler returns a Scheduler that plays chunks on out.
func NewScheduler(out Output, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		out:    out,
		active: make(map[uint64]Source),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue schedules chunk at max(cursor, now), advances the cursor by the
// chunk's duration, and tracks the chunk until it finishes. It returns the
// clock time at which the chunk will start. Empty chunks are ignored.
func (s *Scheduler) Enqueue(chunk Chunk) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startAt := max(s.next, s.out.Now())
	if chunk.Frames() == 0 {
		return startAt, nil
	}

	s.seq++
	id := s.seq
	src, err := s.out.Schedule(chunk, startAt, func() { s.release(id) })
	if err != nil {
		return 0, fmt.Errorf("audio: schedule chunk: %w", err)
	}
	s.next = startAt + chunk.Duration()
	s.active[id] = src

	if s.onEnqueue != nil {
		s.onEnqueue(chunk)
	}
	return startAt, nil
}

// release drops a finished chunk from the active set.
func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// StopAll halts every scheduled chunk, empties the active set, and resets the
// cursor to zero so that the next [Scheduler.Enqueue] starts immediately.
// Errors from individual sources are logged and swallowed.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	srcs := make([]Source, 0, len(s.active))
	for id, src := range s.active {
		srcs = append(srcs, src)
		delete(s.active, id)
	}
	s.next = 0
	s.mu.Unlock()

	for _, src := range srcs {
		if err := src.Stop(); err != nil {
			slog.Debug("audio: stop scheduled chunk", "err", err)
		}
	}
	if s.onStop != nil {
		s.onStop(len(srcs))
	}
}

// Active returns the number of chunks scheduled but not yet finished.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStartTime returns the playback cursor.
func (s *Scheduler) NextStartTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
