package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/eimkon/eimkon/pkg/provider/tts"
)

// ErrNoAudio is recorded for a variant that answered without audio.
var ErrNoAudio = errors.New("resilience: variant returned no audio")

// TTSFallback implements [tts.Provider] by trying an ordered list of model
// variants on one backend, each behind its own circuit breaker. The model in
// the incoming request is ignored; a variant that answers without audio
// counts as a failure.
type TTSFallback struct {
	provider tts.Provider
	group    *FallbackGroup[string]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] over models, tried in order.
func NewTTSFallback(provider tts.Provider, models []string, cfg FallbackConfig) *TTSFallback {
	g := NewFallbackGroup[string](cfg)
	for _, m := range models {
		g.Add(m, m)
	}
	return &TTSFallback{provider: provider, group: g}
}

// Synthesize returns the first non-empty clip. When every variant fails the
// error is an [*AllFailedError]; use [AllFailedError.Every] with
// [tts.ErrQuotaExhausted] to detect quota exhaustion across all variants.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if f.group.Len() == 0 {
		return nil, fmt.Errorf("resilience: no tts variants configured")
	}
	return ExecuteWithResult(f.group, func(model string) ([]byte, error) {
		r := req
		r.Model = model
		pcm, err := f.provider.Synthesize(ctx, r)
		if err != nil {
			return nil, err
		}
		if len(pcm) == 0 {
			return nil, ErrNoAudio
		}
		return pcm, nil
	})
}
