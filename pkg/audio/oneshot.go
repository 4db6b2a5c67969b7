package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// OneShot plays one chunk at a time on an [Output]. Starting a new chunk
// always cuts off the previous one; nothing is ever queued.
type OneShot struct {
	out Output

	mu      sync.Mutex
	current Source
	gen     uint64
}

// NewOneShot returns a OneShot player on out.
func NewOneShot(out Output) *OneShot {
	return &OneShot{out: out}
}

// Play stops whatever is playing and starts chunk immediately. The returned
// channel is closed when chunk finishes or is cut off.
func (p *OneShot) Play(chunk Chunk) (<-chan struct{}, error) {
	p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	finished := make(chan struct{})
	var once sync.Once
	done := func() { once.Do(func() { close(finished) }) }

	p.gen++
	gen := p.gen
	src, err := p.out.Schedule(chunk, p.out.Now(), func() {
		done()
		p.mu.Lock()
		if p.gen == gen {
			p.current = nil
		}
		p.mu.Unlock()
	})
	if err != nil {
		done()
		return finished, fmt.Errorf("audio: play one-shot: %w", err)
	}
	p.current = src
	return finished, nil
}

// Stop cuts off the current chunk, if any.
func (p *OneShot) Stop() {
	p.mu.Lock()
	src := p.current
	p.current = nil
	p.gen++
	p.mu.Unlock()

	if src == nil {
		return
	}
	if err := src.Stop(); err != nil {
		slog.Debug("audio: stop one-shot", "err", err)
	}
}

// Playing reports whether a chunk is currently playing.
func (p *OneShot) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}
