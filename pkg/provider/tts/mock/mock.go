// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio clips to consumers and to verify which
// model variants and prompts reached the backend.
//
// Example:
//
//	p := &mock.Provider{Audio: []byte{0, 0, 1, 0}}
//	pcm, _ := p.Synthesize(ctx, tts.Request{Model: "m", Text: "Salom"})
package mock

import (
	"context"
	"sync"

	"github.com/eimkon/eimkon/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by Synthesize when no per-model override applies.
	Audio []byte

	// Err, if non-nil, is returned by Synthesize for every model.
	Err error

	// ModelErrs overrides Err per model variant.
	ModelErrs map[string]error

	// ModelAudio overrides Audio per model variant.
	ModelAudio map[string][]byte

	// Block, if non-nil, makes Synthesize wait until it is closed or ctx is done.
	Block chan struct{}

	// SynthesizeCalls records every call in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.ModelErrs[req.Model]; ok {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if a, ok := p.ModelAudio[req.Model]; ok {
		return a, nil
	}
	return p.Audio, nil
}

// Calls returns a snapshot of SynthesizeCalls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// CallCount returns the number of Synthesize calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}
