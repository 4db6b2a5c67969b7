// Package narration turns arbitrary text into one speech clip for
// non-interactive announcements: page changes, focused elements and lesson
// read-aloud.
//
// A [Service] owns the clip cache and the quota latch. Both are injectable
// so tests and multiple app instances never share hidden global state.
// Failures never escape as hard errors to the UI layer: callers receive
// [ErrUnavailable] and simply play nothing.
package narration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/eimkon/eimkon/internal/observe"
	"github.com/eimkon/eimkon/internal/resilience"
	"github.com/eimkon/eimkon/pkg/provider/tts"
)

// ErrUnavailable is returned when no clip can be produced for a text: the
// backend failed, answered without audio, or the quota latch is set.
var ErrUnavailable = errors.New("narration: audio unavailable")

// ErrEmptyText is returned for blank input. No backend call is made.
var ErrEmptyText = errors.New("narration: empty text")

// DefaultVoice is the prebuilt voice used when none is configured.
const DefaultVoice = "Zephyr"

// Option is a functional option for [New].
type Option func(*Service)

// WithCache replaces the default [MemoryCache].
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithQuotaFlag shares an existing latch.
func WithQuotaFlag(q *QuotaFlag) Option {
	return func(s *Service) { s.quota = q }
}

// WithVoice sets the prebuilt voice name.
func WithVoice(v string) Option {
	return func(s *Service) { s.voice = v }
}

// WithTimeout bounds one backend synthesis. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics enables cache, latency and quota metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service synthesizes narration clips with caching and a quota latch. It is
// safe for concurrent use; concurrent requests for the same text share one
// backend call.
type Service struct {
	provider tts.Provider
	cache    Cache
	quota    *QuotaFlag
	voice    string
	timeout  time.Duration
	metrics  *observe.Metrics

	group singleflight.Group
}

// New creates a Service over provider, which is typically a
// [resilience.TTSFallback] spanning several model variants.
func New(provider tts.Provider, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		voice:    DefaultVoice,
		timeout:  30 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	if s.cache == nil {
		s.cache = NewMemoryCache()
	}
	if s.quota == nil {
		s.quota = &QuotaFlag{}
	}
	return s
}

// Quota returns the service's quota latch.
func (s *Service) Quota() *QuotaFlag { return s.quota }

// Synthesize returns mono PCM16 at [tts.OutputSampleRate] for text.
//
// Blank text fails with [ErrEmptyText] without a backend call. A cached clip
// is returned as is. Otherwise, unless the quota latch is set, the
// normalized prompt is sent to the backend and a non-empty result is cached
// under the trimmed text. Every other failure wraps [ErrUnavailable].
func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, error) {
	key := strings.TrimSpace(text)
	if key == "" {
		return nil, ErrEmptyText
	}
	if pcm, ok := s.cache.Get(key); ok {
		s.recordCache(ctx, "hit")
		return pcm, nil
	}
	if s.quota.Blocked() {
		s.recordCache(ctx, "blocked")
		return nil, fmt.Errorf("%w: quota exhausted", ErrUnavailable)
	}
	s.recordCache(ctx, "miss")

	ch := s.group.DoChan(key, func() (any, error) {
		return s.synthesize(ctx, key)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
}

// synthesize runs one backend call. It is detached from the caller's
// cancellation so that a shared in-flight call survives one waiter leaving.
func (s *Service) synthesize(ctx context.Context, key string) ([]byte, error) {
	// A call that finished between the caller's lookup and this one.
	if pcm, ok := s.cache.Get(key); ok {
		return pcm, nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "narration.synthesize",
		trace.WithAttributes(attribute.Int("text_len", len(key))))
	defer span.End()

	start := time.Now()
	pcm, err := s.provider.Synthesize(ctx, tts.Request{Voice: s.voice, Text: Prompt(key)})
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
	}

	switch {
	case err != nil:
		quota := isQuota(err)
		s.recordLatency(ctx, elapsed, resultLabel(quota))
		if quota && s.quota.Latch() {
			slog.Warn("narration: quota exhausted on every variant, disabling narration", "err", err)
			if s.metrics != nil {
				s.metrics.NarrationQuotaLatches.Add(ctx, 1)
			}
		} else if !quota {
			slog.Warn("narration: synthesis failed", "err", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	case len(pcm) == 0:
		s.recordLatency(ctx, elapsed, "empty")
		return nil, fmt.Errorf("%w: backend returned no audio", ErrUnavailable)
	}

	s.recordLatency(ctx, elapsed, "ok")
	s.cache.Put(key, pcm)
	return pcm, nil
}

// isQuota reports whether err means every attempted variant ran out of
// quota. A fallback error counts only when all tried variants agree.
func isQuota(err error) bool {
	var all *resilience.AllFailedError
	if errors.As(err, &all) {
		return all.Every(tts.ErrQuotaExhausted)
	}
	return errors.Is(err, tts.ErrQuotaExhausted)
}

func resultLabel(quota bool) string {
	if quota {
		return "quota"
	}
	return "error"
}

func (s *Service) recordCache(ctx context.Context, result string) {
	if s.metrics != nil {
		s.metrics.RecordNarrationCache(ctx, result)
	}
}

func (s *Service) recordLatency(ctx context.Context, d time.Duration, result string) {
	if s.metrics != nil {
		s.metrics.NarrationSynthesisDuration.Record(ctx, d.Seconds(),
			metric.WithAttributes(observe.Attr("result", result)))
	}
}
