package narration

import (
	"context"
	"fmt"
	"sync"

	"github.com/eimkon/eimkon/pkg/audio"
	"github.com/eimkon/eimkon/pkg/provider/tts"
)

// Speaker plays transient announcements. A new announcement always cuts off
// the previous one; announcements never queue.
type Speaker struct {
	svc    *Service
	player *audio.OneShot

	mu  sync.Mutex
	gen uint64
}

// NewSpeaker returns a Speaker that synthesizes with svc and plays on player.
func NewSpeaker(svc *Service, player *audio.OneShot) *Speaker {
	return &Speaker{svc: svc, player: player}
}

// SpeakOnce stops any announcement in progress, synthesizes text and plays
// it. The returned channel closes when playback ends or is cut off. If a
// newer SpeakOnce starts while this one is still synthesizing, this one is
// abandoned and its channel closes without playing anything.
func (s *Speaker) SpeakOnce(ctx context.Context, text string) (<-chan struct{}, error) {
	s.player.Stop()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	pcm, err := s.svc.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		done := make(chan struct{})
		close(done)
		return done, nil
	}
	chunk := audio.BytesToChunk(pcm, tts.OutputSampleRate, 1)
	done, err := s.player.Play(chunk)
	if err != nil {
		return nil, fmt.Errorf("narration: speak: %w", err)
	}
	return done, nil
}

// Stop cuts off the current announcement and abandons any in-flight one.
func (s *Speaker) Stop() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	s.player.Stop()
}
