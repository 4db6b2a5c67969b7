// Package mock provides test doubles for the s2s package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions.
// Use Session to push server events with Emit and inspect the audio blocks and
// tool responses the tutor sent back.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.Emit(s2s.Event{Kind: s2s.EventOpened})
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/eimkon/eimkon/pkg/audio"
	"github.com/eimkon/eimkon/pkg/provider/s2s"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg s2s.SessionConfig
}

// Provider is a mock implementation of s2s.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by Connect. If nil, Connect returns
	// a new default Session.
	Session s2s.SessionHandle

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session == nil {
		return NewSession(), nil
	}
	return p.Session, nil
}

// Calls returns a snapshot of ConnectCalls.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

// Session is a mock implementation of s2s.SessionHandle.
type Session struct {
	events chan s2s.Event

	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned by SendAudio.
	SendAudioErr error

	// SendToolResponseErr, if non-nil, is returned by SendToolResponse.
	SendToolResponseErr error

	// AudioBlocks records every blob passed to SendAudio, in order.
	AudioBlocks []audio.Blob

	// ToolResponses records every response passed to SendToolResponse.
	ToolResponses []s2s.ToolResponse

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	closed bool
}

// NewSession returns a Session with a buffered event channel.
func NewSession() *Session {
	return &Session{events: make(chan s2s.Event, 64)}
}

// Emit pushes ev to the consumer. It is a no-op after Close.
func (s *Session) Emit(ev s2s.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// Events implements s2s.SessionHandle.
func (s *Session) Events() <-chan s2s.Event { return s.events }

// SendAudio implements s2s.SessionHandle.
func (s *Session) SendAudio(blob audio.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session closed")
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	s.AudioBlocks = append(s.AudioBlocks, blob)
	return nil
}

// SendToolResponse implements s2s.SessionHandle.
func (s *Session) SendToolResponse(responses ...s2s.ToolResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendToolResponseErr != nil {
		return s.SendToolResponseErr
	}
	s.ToolResponses = append(s.ToolResponses, responses...)
	return nil
}

// Close implements s2s.SessionHandle. The events channel is closed on the
// first call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Responses returns a snapshot of ToolResponses.
func (s *Session) Responses() []s2s.ToolResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]s2s.ToolResponse, len(s.ToolResponses))
	copy(out, s.ToolResponses)
	return out
}

// Blocks returns a snapshot of AudioBlocks.
func (s *Session) Blocks() []audio.Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Blob, len(s.AudioBlocks))
	copy(out, s.AudioBlocks)
	return out
}

// Closes returns CloseCallCount.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}
