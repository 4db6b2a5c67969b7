package narration

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eimkon/eimkon/pkg/audio"
	"github.com/eimkon/eimkon/pkg/provider/tts"
)

// PrefetchAhead is how many upcoming sections are synthesized while the
// current one plays.
const PrefetchAhead = 2

// Reader plays a sequence of texts strictly in order on its own one-shot
// player, synthesizing upcoming sections in the background.
type Reader struct {
	svc    *Service
	player *audio.OneShot
}

// NewReader returns a Reader that synthesizes with svc and plays on player.
func NewReader(svc *Service, player *audio.OneShot) *Reader {
	return &Reader{svc: svc, player: player}
}

// Prefetch starts background synthesis of texts. Results land in the
// service cache; failures are only logged.
func (r *Reader) Prefetch(ctx context.Context, texts ...string) {
	for _, t := range texts {
		go func() {
			if _, err := r.svc.Synthesize(ctx, t); err != nil {
				slog.Debug("narration: prefetch failed", "err", err)
			}
		}()
	}
}

// SpeakSections plays sections[from:] one at a time. onSection, if non-nil,
// is called with each index just before it starts playing.
//
// It returns the index to resume from: 0 once every section has played,
// the interrupted index when ctx is cancelled, or the index whose synthesis
// failed together with that error.
func (r *Reader) SpeakSections(ctx context.Context, sections []string, from int, onSection func(int)) (int, error) {
	if from < 0 {
		from = 0
	}
	for idx := from; idx < len(sections); idx++ {
		pcm, err := r.svc.Synthesize(ctx, sections[idx])
		if err != nil {
			if ctx.Err() != nil {
				return idx, ctx.Err()
			}
			return idx, fmt.Errorf("narration: section %d: %w", idx, err)
		}
		if ctx.Err() != nil {
			return idx, ctx.Err()
		}

		if onSection != nil {
			onSection(idx)
		}
		done, err := r.player.Play(audio.BytesToChunk(pcm, tts.OutputSampleRate, 1))
		if err != nil {
			return idx, fmt.Errorf("narration: section %d: %w", idx, err)
		}
		end := min(idx+1+PrefetchAhead, len(sections))
		r.Prefetch(ctx, sections[idx+1:end]...)

		select {
		case <-done:
		case <-ctx.Done():
			r.player.Stop()
			return idx, ctx.Err()
		}
		if ctx.Err() != nil {
			return idx, ctx.Err()
		}
	}
	return 0, nil
}
