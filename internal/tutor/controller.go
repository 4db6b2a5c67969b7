// Package tutor implements the realtime voice tutor: the state machine that
// opens a session with the remote conversational engine, streams microphone
// audio to it, plays its spoken answers back-to-back, executes the tool calls
// it issues and tears everything down again.
//
// A [Controller] is conceptually a singleton per tutor widget: at most one
// session is active at a time. Start, Stop, Toggle and Escape may be called
// from any goroutine; Stop is idempotent.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/eimkon/eimkon/internal/observe"
	"github.com/eimkon/eimkon/pkg/audio"
	"github.com/eimkon/eimkon/pkg/provider/s2s"
)

// ErrAlreadyActive is returned by Start while a session is running.
var ErrAlreadyActive = errors.New("tutor: session already active")

// DefaultOutputSampleRate is assumed for response audio without a rate in
// its MIME type.
const DefaultOutputSampleRate = 24000

// Notifier shows a session-fatal error to the user. It is called at most
// once per session.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(message string)

// Notify implements [Notifier].
func (f NotifierFunc) Notify(message string) { f(message) }

// ToolDispatcher executes tool calls issued by the engine.
type ToolDispatcher interface {
	Definitions() []s2s.ToolDefinition
	DispatchAll(ctx context.Context, calls []s2s.ToolCall) []s2s.ToolResponse
}

// Config holds the session parameters.
type Config struct {
	// Voice is the prebuilt voice. Default: [DefaultVoice].
	Voice string

	// Instructions is the system instruction. Default: [DefaultInstructions].
	Instructions string

	// SendQueue is the number of microphone blocks buffered between the
	// capture callback and the network. Default: 64.
	SendQueue int
}

// Option is a functional option for [New].
type Option func(*Controller)

// WithNotifier sets the user notification sink. Without one, failures are
// only logged.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithObserver registers fn to receive a [Snapshot] after every state
// change. Calls are serialized.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) { c.observer = fn }
}

// WithMetrics enables session metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller orchestrates one realtime tutor session at a time.
type Controller struct {
	provider s2s.Provider
	tools    ToolDispatcher
	capture  *audio.Capture
	sched    *audio.Scheduler
	cfg      Config
	notifier Notifier
	observer func(Snapshot)
	metrics  *observe.Metrics

	// active gates microphone delivery. It is read synchronously on the
	// capture callback for every block.
	active atomic.Bool

	mu       sync.Mutex
	gen      uint64
	snap     Snapshot
	sess     s2s.SessionHandle
	sessCtx  context.Context
	open     bool
	notified bool
	started  time.Time
	sendQ    chan audio.Blob
	stopSend chan struct{}

	pubMu sync.Mutex
}

// New creates an idle Controller. mic feeds the capture pipeline and out
// plays response audio; both are owned by the controller from now on.
func New(provider s2s.Provider, tools ToolDispatcher, mic audio.Microphone, out audio.Output, cfg Config, opts ...Option) *Controller {
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultInstructions
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 64
	}
	c := &Controller{
		provider: provider,
		tools:    tools,
		cfg:      cfg,
	}
	for _, o := range opts {
		o(c)
	}
	c.capture = audio.NewCapture(mic, c.active.Load)
	c.sched = audio.NewScheduler(out)
	return c
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

// Start opens a new session. It acquires the microphone first; a device
// failure aborts before any connection is attempted. Failures are reported
// once through the [Notifier] and leave the controller idle.
//
// ctx bounds only the start-up; the session itself lives until Stop or until
// the remote side ends it.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.active.Load() {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.gen++
	gen := c.gen
	c.active.Store(true)
	c.notified = false
	c.open = false
	c.started = time.Now()
	c.snap = Snapshot{
		Active:     true,
		State:      StateListening,
		Transcript: ListeningPrompt,
		SessionID:  uuid.NewString(),
	}
	sessCtx := observe.WithSessionID(context.Background(), c.snap.SessionID)
	c.sessCtx = sessCtx
	c.mu.Unlock()

	c.publish()
	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(sessCtx, 1)
	}
	log := observe.Logger(sessCtx)
	log.Info("tutor: starting session")

	if err := c.capture.Acquire(ctx); err != nil {
		log.Warn("tutor: microphone unavailable", "err", err)
		c.teardown(gen, err)
		return fmt.Errorf("tutor: start: %w", err)
	}

	connectCtx, span := observe.StartSpan(ctx, "tutor.connect")
	sess, err := c.provider.Connect(connectCtx, s2s.SessionConfig{
		Voice:        c.cfg.Voice,
		Instructions: c.cfg.Instructions,
		Tools:        c.tools.Definitions(),
		Transcribe:   true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
	}
	span.End()
	if err != nil {
		log.Error("tutor: connect failed", "err", err)
		if c.metrics != nil {
			c.metrics.RecordProviderError(sessCtx, "s2s", "connect")
		}
		c.teardown(gen, err)
		return fmt.Errorf("tutor: connect: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		// Stopped while connecting.
		c.mu.Unlock()
		_ = sess.Close()
		return nil
	}
	c.sess = sess
	c.sendQ = make(chan audio.Blob, c.cfg.SendQueue)
	c.stopSend = make(chan struct{})
	q, stop := c.sendQ, c.stopSend
	c.mu.Unlock()

	go c.forward(sess, q, stop)
	go c.run(gen, sess)
	return nil
}

// Stop ends the current session, if any. Safe to call any number of times
// from any state.
func (c *Controller) Stop() {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.teardown(gen, nil)
}

// Toggle stops an active session or starts a new one.
func (c *Controller) Toggle(ctx context.Context) error {
	if c.Active() {
		c.Stop()
		return nil
	}
	err := c.Start(ctx)
	if errors.Is(err, ErrAlreadyActive) {
		return nil
	}
	return err
}

// Escape stops the session only while one is active. It reports whether it
// did anything.
func (c *Controller) Escape() bool {
	if !c.Active() {
		return false
	}
	c.Stop()
	return true
}

// Active reports whether a session is running or starting.
func (c *Controller) Active() bool { return c.active.Load() }

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.snap
	s.StateName = s.State.String()
	return s
}

// Scheduler exposes the response-audio scheduler.
func (c *Controller) Scheduler() *audio.Scheduler { return c.sched }

// teardown returns to idle. Only the session identified by gen is torn
// down; a stale gen is a no-op. A non-nil cause is reported to the user.
func (c *Controller) teardown(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen || !c.active.Load() {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.active.Store(false)
	sess := c.sess
	stop := c.stopSend
	ctx := c.sessCtx
	started := c.started
	notify := cause != nil && !c.notified
	if notify {
		c.notified = true
	}
	c.sess, c.sendQ, c.stopSend = nil, nil, nil
	c.open = false
	c.snap = Snapshot{State: StateIdle}
	c.mu.Unlock()

	log := observe.Logger(ctx)

	c.sched.StopAll()
	if err := c.capture.Close(); err != nil {
		log.Warn("tutor: close capture", "err", err)
	}
	if stop != nil {
		close(stop)
	}
	if sess != nil {
		if err := sess.Close(); err != nil {
			log.Debug("tutor: close session", "err", err)
		}
	}
	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(ctx, -1)
		c.metrics.SessionDuration.Record(ctx, time.Since(started).Seconds())
	}
	log.Info("tutor: session ended", "err", cause)

	c.publish()
	if notify && c.notifier != nil {
		c.notifier.Notify(userMessage(cause))
	}
}

// userMessage maps a session-fatal error to the text shown to the user.
func userMessage(err error) string {
	var mae *audio.MicAccessError
	switch {
	case errors.As(err, &mae):
		return mae.Error()
	case errors.Is(err, s2s.ErrMissingAPIKey):
		return MissingKeyMessage
	default:
		return ConnectFailedMessage
	}
}

// ── Event handling ───────────────────────────────────────────────────────────

// run consumes the session's events until it ends.
func (c *Controller) run(gen uint64, sess s2s.SessionHandle) {
	for ev := range sess.Events() {
		if !c.current(gen) {
			return
		}
		ctx := c.context()
		if c.metrics != nil {
			c.metrics.RecordSessionEvent(ctx, ev.Kind.String())
		}

		switch ev.Kind {
		case s2s.EventOpened:
			c.handleOpened(gen)
		case s2s.EventToolCall:
			c.handleToolCalls(ctx, gen, sess, ev.ToolCalls)
		case s2s.EventInputTranscription:
			if ev.Text != "" {
				c.update(gen, func(s *Snapshot) {
					s.Transcript = ev.Text
					s.State = StateThinking
				})
			}
		case s2s.EventOutputTranscription:
			if ev.Text != "" {
				c.update(gen, func(s *Snapshot) {
					s.Transcript = ev.Text
					s.State = StateSpeaking
					s.Speaking = true
				})
			}
		case s2s.EventTurnComplete:
			c.update(gen, func(s *Snapshot) {
				s.State = StateListening
				s.Speaking = false
			})
		case s2s.EventAudio:
			c.handleAudio(ctx, ev)
		case s2s.EventInterrupted:
			n := c.sched.Active()
			c.sched.StopAll()
			if c.metrics != nil {
				c.metrics.Interruptions.Add(ctx, int64(n))
			}
		case s2s.EventClosed:
			c.teardown(gen, nil)
			return
		case s2s.EventError:
			err := ev.Err
			if err == nil {
				err = errors.New("tutor: session error")
			}
			if c.metrics != nil {
				c.metrics.RecordProviderError(ctx, "s2s", "session")
			}
			c.teardown(gen, err)
			return
		}
	}
	// The event stream ended without a close or error event.
	c.teardown(gen, nil)
}

func (c *Controller) handleOpened(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.open = true
	c.snap.State = StateListening
	q := c.sendQ
	// The sink is installed under c.mu so a teardown cannot slip in between
	// the generation check and Forward and leave a sink for a dead session.
	c.capture.Forward(func(b audio.Blob) {
		select {
		case q <- b:
		default:
			slog.Warn("tutor: send queue full, dropping microphone block")
		}
	})
	c.mu.Unlock()

	c.publish()
}

func (c *Controller) handleToolCalls(ctx context.Context, gen uint64, sess s2s.SessionHandle, calls []s2s.ToolCall) {
	c.mu.Lock()
	open := c.gen == gen && c.open
	c.mu.Unlock()
	if !open {
		slog.Warn("tutor: tool calls before session opened, ignoring", "count", len(calls))
		return
	}
	if len(calls) == 0 {
		return
	}
	resps := c.tools.DispatchAll(ctx, calls)
	if err := sess.SendToolResponse(resps...); err != nil {
		observe.Logger(ctx).Warn("tutor: send tool response", "err", err)
	}
}

func (c *Controller) handleAudio(ctx context.Context, ev s2s.Event) {
	pcm, err := audio.DecodeBase64(ev.Audio)
	if err != nil {
		observe.Logger(ctx).Debug("tutor: dropping undecodable audio chunk", "err", err)
		c.recordChunk(ctx, "decode_error")
		return
	}
	chunk := audio.BytesToChunk(pcm, sampleRate(ev.MIMEType), 1)
	if _, err := c.sched.Enqueue(chunk); err != nil {
		observe.Logger(ctx).Warn("tutor: schedule audio chunk", "err", err)
		c.recordChunk(ctx, "schedule_error")
		return
	}
	c.recordChunk(ctx, "scheduled")
}

func (c *Controller) recordChunk(ctx context.Context, status string) {
	if c.metrics != nil {
		c.metrics.RecordAudioChunk(ctx, status)
	}
}

// forward sends microphone blocks to the session in capture order.
func (c *Controller) forward(sess s2s.SessionHandle, q <-chan audio.Blob, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case b := <-q:
			if !c.active.Load() {
				continue
			}
			if err := sess.SendAudio(b); err != nil {
				slog.Debug("tutor: send audio", "err", err)
			}
		}
	}
}

// ── State helpers ────────────────────────────────────────────────────────────

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Controller) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessCtx == nil {
		return context.Background()
	}
	return c.sessCtx
}

// update applies fn to the snapshot of session gen and publishes the result.
func (c *Controller) update(gen uint64, fn func(*Snapshot)) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	fn(&c.snap)
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) publish() {
	if c.observer == nil {
		return
	}
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	c.observer(c.Snapshot())
}

// sampleRate extracts the rate parameter of an audio MIME type such as
// "audio/pcm;rate=24000".
func sampleRate(mime string) int {
	for _, param := range strings.Split(mime, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && strings.EqualFold(k, "rate") {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}
	}
	return DefaultOutputSampleRate
}
