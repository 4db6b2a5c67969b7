// Package s2s defines the Provider interface for realtime speech-to-speech
// conversational engines.
//
// An S2S provider wraps a remote voice model that accepts a continuous stream
// of microphone audio and answers with streamed speech, transcriptions, and
// structured tool calls over a single long-lived session. The tutor never
// talks to the wire protocol directly; it consumes the typed [Event] stream
// exposed by [SessionHandle] and answers tool calls with [ToolResponse]
// values.
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"
	"errors"

	"github.com/eimkon/eimkon/pkg/audio"
)

// ErrMissingAPIKey is returned by Connect when no credentials are configured.
var ErrMissingAPIKey = errors.New("s2s: missing API key")

// EventKind classifies an [Event] emitted by a session.
type EventKind int

const (
	// EventOpened is emitted once, when the remote engine accepted the
	// session configuration. Audio may be sent from this point on.
	EventOpened EventKind = iota

	// EventToolCall carries a batch of tool calls in [Event.ToolCalls].
	// Every call must be answered with exactly one [ToolResponse].
	EventToolCall

	// EventInputTranscription carries recognised user speech in [Event.Text].
	EventInputTranscription

	// EventOutputTranscription carries the text of the model's speech in
	// [Event.Text].
	EventOutputTranscription

	// EventAudio carries one base64-encoded PCM16 speech chunk in
	// [Event.Audio].
	EventAudio

	// EventTurnComplete marks the end of the model's turn. The session stays
	// open.
	EventTurnComplete

	// EventInterrupted reports that the engine detected barge-in; all
	// not-yet-played response audio is stale.
	EventInterrupted

	// EventClosed is emitted when the remote side closed the session
	// normally. It is the last event on the channel.
	EventClosed

	// EventError is emitted when the remote side signalled an error or the
	// connection failed. It is the last event on the channel unless the
	// error message arrived in-band, in which case the session is still
	// nominally open but must be torn down by the consumer.
	EventError
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventToolCall:
		return "tool_call"
	case EventInputTranscription:
		return "input_transcription"
	case EventOutputTranscription:
		return "output_transcription"
	case EventAudio:
		return "audio"
	case EventTurnComplete:
		return "turn_complete"
	case EventInterrupted:
		return "interrupted"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ToolCall is a structured command issued by the remote engine.
type ToolCall struct {
	// ID correlates the call with its [ToolResponse].
	ID string

	// Name is the declared tool name.
	Name string

	// Args holds the decoded JSON arguments.
	Args map[string]any
}

// ToolResponse answers exactly one [ToolCall].
type ToolResponse struct {
	ID     string
	Name   string
	Result string
}

// Event is one message received from the remote engine. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind EventKind

	// Text is set for transcription events.
	Text string

	// Audio is the base64-encoded payload of an [EventAudio].
	Audio string

	// MIMEType describes Audio, e.g. "audio/pcm;rate=24000".
	MIMEType string

	// ToolCalls is set for [EventToolCall].
	ToolCalls []ToolCall

	// Err is set for [EventError].
	Err error
}

// ToolDefinition declares a tool the model may call.
type ToolDefinition struct {
	// Name is the identifier the model uses in tool calls.
	Name string

	// Description tells the model when to use the tool.
	Description string

	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
}

// SessionConfig is the initial configuration for a new session.
type SessionConfig struct {
	// Voice selects the prebuilt voice used for synthesised speech.
	Voice string

	// Instructions is the system instruction describing the assistant's
	// persona and navigation intents.
	Instructions string

	// Tools is the set of tool declarations offered to the model.
	Tools []ToolDefinition

	// Transcribe requests transcription of both input and output audio.
	Transcribe bool
}

// SessionHandle represents an open realtime session. It is an interface so
// that test code can supply mock implementations without a live connection.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// Events returns the channel on which every server event arrives, in
	// arrival order. The channel is closed when the session ends.
	Events() <-chan Event

	// SendAudio forwards one encoded microphone block. Blocks must be sent
	// in capture order.
	SendAudio(blob audio.Blob) error

	// SendToolResponse answers one or more tool calls.
	SendToolResponse(responses ...ToolResponse) error

	// Close terminates the session and closes the Events channel. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any realtime conversational backend.
type Provider interface {
	// Connect dials the remote engine and sends cfg. The returned handle is
	// in the connecting state until an [EventOpened] arrives. The caller
	// owns the handle and is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
