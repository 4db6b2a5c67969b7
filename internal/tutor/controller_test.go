package tutor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eimkon/eimkon/internal/tools"
	"github.com/eimkon/eimkon/pkg/audio"
	audiomock "github.com/eimkon/eimkon/pkg/audio/mock"
	"github.com/eimkon/eimkon/pkg/provider/s2s"
	s2smock "github.com/eimkon/eimkon/pkg/provider/s2s/mock"
)

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

type recorder struct {
	mu      sync.Mutex
	routes  []string
	notices []string
}

func (r *recorder) Navigate(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

func (r *recorder) ScrollBy(int) {}

func (r *recorder) Notify(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, msg)
}

func (r *recorder) Routes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.routes...)
}

func (r *recorder) Notices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notices...)
}

type fixture struct {
	ctrl *Controller
	prov *s2smock.Provider
	sess *s2smock.Session
	mic  *audiomock.Microphone
	out  *audiomock.Output
	rec  *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sess: s2smock.NewSession(),
		mic:  &audiomock.Microphone{},
		out:  &audiomock.Output{},
		rec:  &recorder{},
	}
	f.prov = &s2smock.Provider{Session: f.sess}
	disp := tools.NewDispatcher(f.rec, f.rec)
	f.ctrl = New(f.prov, disp, f.mic, f.out, Config{}, WithNotifier(f.rec))
	t.Cleanup(f.ctrl.Stop)
	return f
}

// open starts the controller and delivers the opened event.
func (f *fixture) open(t *testing.T) {
	t.Helper()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sess.Emit(s2s.Event{Kind: s2s.EventOpened})
	eventually(t, func() bool {
		f.ctrl.mu.Lock()
		defer f.ctrl.mu.Unlock()
		return f.ctrl.open
	})
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(time.Millisecond)
	}
}

// pcmChunk returns base64 PCM16 silence of d at 24 kHz.
func pcmChunk(d time.Duration) string {
	frames := int(d.Seconds() * DefaultOutputSampleRate)
	return audio.EncodeBase64(make([]byte, frames*2))
}

// ─────────────────────────────────────────────────────────────────────────────
// Start
// ─────────────────────────────────────────────────────────────────────────────

func TestStart_ConfiguresSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := f.ctrl.Snapshot()
	if !snap.Active || snap.State != StateListening || snap.Transcript != ListeningPrompt {
		t.Errorf("snapshot after start = %+v", snap)
	}
	if snap.SessionID == "" {
		t.Error("session id not assigned")
	}

	calls := f.prov.Calls()
	if len(calls) != 1 {
		t.Fatalf("Connect calls = %d, want 1", len(calls))
	}
	cfg := calls[0].Cfg
	if cfg.Voice != DefaultVoice || cfg.Instructions != DefaultInstructions || !cfg.Transcribe {
		t.Errorf("session config = %+v", cfg)
	}
	if len(cfg.Tools) != 4 {
		t.Errorf("declared tools = %d, want 4", len(cfg.Tools))
	}
	if f.mic.CallCountStart != 1 {
		t.Errorf("microphone starts = %d, want 1", f.mic.CallCountStart)
	}

	if err := f.ctrl.Start(context.Background()); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("second Start err = %v, want ErrAlreadyActive", err)
	}
}

func TestStart_MicrophoneFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mic.StartError = errors.New("permission denied")

	err := f.ctrl.Start(context.Background())
	if !errors.Is(err, audio.ErrMicAccess) {
		t.Fatalf("err = %v, want ErrMicAccess", err)
	}
	if n := len(f.prov.Calls()); n != 0 {
		t.Errorf("Connect calls = %d, want 0", n)
	}
	if f.ctrl.Active() || f.ctrl.Snapshot().State != StateIdle {
		t.Error("controller not idle after microphone failure")
	}
	if n := len(f.rec.Notices()); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
}

func TestStart_ConnectFailureMessages(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"missing key", s2s.ErrMissingAPIKey, MissingKeyMessage},
		{"dial", errors.New("dial tcp: refused"), ConnectFailedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.prov.ConnectErr = tt.err

			if err := f.ctrl.Start(context.Background()); !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			notices := f.rec.Notices()
			if len(notices) != 1 || notices[0] != tt.want {
				t.Errorf("notices = %q, want [%q]", notices, tt.want)
			}
			if f.ctrl.Active() {
				t.Error("controller still active")
			}
			if f.mic.CallCountStop != 1 {
				t.Errorf("microphone stops = %d, want 1", f.mic.CallCountStop)
			}
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Microphone forwarding
// ─────────────────────────────────────────────────────────────────────────────

func TestMicrophoneBlocksForwardedOnlyWhileOpen(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Not yet open: no block handler installed.
	f.mic.Emit(make([]float32, audio.CaptureBlockSize))

	f.sess.Emit(s2s.Event{Kind: s2s.EventOpened})
	eventually(t, func() bool {
		f.ctrl.mu.Lock()
		defer f.ctrl.mu.Unlock()
		return f.ctrl.open
	})

	f.mic.Emit(make([]float32, 2*audio.CaptureBlockSize))
	eventually(t, func() bool { return len(f.sess.Blocks()) == 2 })

	for _, b := range f.sess.Blocks() {
		if b.MIMEType != audio.CaptureMIMEType || len(b.Data) != 2*audio.CaptureBlockSize {
			t.Errorf("block = %s (%d bytes)", b.MIMEType, len(b.Data))
		}
	}

	f.ctrl.Stop()
	// The device keeps firing after stop; nothing more reaches the session.
	f.mic.Emit(make([]float32, audio.CaptureBlockSize))
	time.Sleep(10 * time.Millisecond)
	if n := len(f.sess.Blocks()); n != 2 {
		t.Errorf("blocks after stop = %d, want 2", n)
	}
}

func TestOpenedAfterTeardownInstallsNoSink(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.ctrl.mu.Lock()
	gen := f.ctrl.gen
	f.ctrl.mu.Unlock()

	f.ctrl.Stop()
	// A late opened event for the torn-down session.
	f.ctrl.handleOpened(gen)

	f.ctrl.mu.Lock()
	open := f.ctrl.open
	f.ctrl.mu.Unlock()
	if open {
		t.Fatal("torn-down session marked open")
	}
	if st := f.ctrl.Snapshot().State; st != StateIdle {
		t.Errorf("state = %v, want idle", st)
	}
	f.mic.Emit(make([]float32, audio.CaptureBlockSize))
	time.Sleep(10 * time.Millisecond)
	if n := len(f.sess.Blocks()); n != 0 {
		t.Errorf("blocks = %d, want 0", n)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Server events
// ─────────────────────────────────────────────────────────────────────────────

func TestToolCallsAnsweredOncePerCall(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.open(t)

	f.sess.Emit(s2s.Event{Kind: s2s.EventToolCall, ToolCalls: []s2s.ToolCall{
		{ID: "1", Name: "navigate", Args: map[string]any{"page": "matematika"}},
		{ID: "2", Name: "navigate", Args: map[string]any{"page": "qalampir"}},
	}})
	eventually(t, func() bool { return len(f.sess.Responses()) == 2 })

	resps := f.sess.Responses()
	if resps[0].ID != "1" || resps[1].ID != "2" {
		t.Errorf("response ids = %s,%s", resps[0].ID, resps[1].ID)
	}
	if routes := f.rec.Routes(); len(routes) != 1 || routes[0] != "/courses/math-101" {
		t.Errorf("routes = %v", routes)
	}
}

func TestTranscriptionDrivesState(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.open(t)

	steps := []struct {
		ev       s2s.Event
		state    State
		text     string
		speaking bool
	}{
		{s2s.Event{Kind: s2s.EventInputTranscription, Text: "Matematikani och"}, StateThinking, "Matematikani och", false},
		{s2s.Event{Kind: s2s.EventOutputTranscription, Text: "Albatta"}, StateSpeaking, "Albatta", true},
		{s2s.Event{Kind: s2s.EventTurnComplete}, StateListening, "Albatta", false},
	}
	for _, st := range steps {
		f.sess.Emit(st.ev)
		eventually(t, func() bool {
			s := f.ctrl.Snapshot()
			return s.State == st.state && s.Transcript == st.text && s.Speaking == st.speaking
		})
	}
	if f.ctrl.Snapshot().Status() != "Tinglayapman..." {
		t.Errorf("status = %q", f.ctrl.Snapshot().Status())
	}
}

func TestAudioScheduledBackToBackAndInterrupted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.open(t)

	f.sess.Emit(s2s.Event{Kind: s2s.EventAudio, Audio: pcmChunk(100 * time.Millisecond), MIMEType: "audio/pcm;rate=24000"})
	f.sess.Emit(s2s.Event{Kind: s2s.EventAudio, Audio: "%%% not base64 %%%"})
	f.sess.Emit(s2s.Event{Kind: s2s.EventAudio, Audio: pcmChunk(200 * time.Millisecond)})
	eventually(t, func() bool { return len(f.out.Calls()) == 2 })

	calls := f.out.Calls()
	if calls[0].At != 0 || calls[1].At != 100*time.Millisecond {
		t.Errorf("start times = %v, %v; want 0, 100ms", calls[0].At, calls[1].At)
	}

	f.sess.Emit(s2s.Event{Kind: s2s.EventInterrupted})
	eventually(t, func() bool { return f.ctrl.Scheduler().Active() == 0 })

	for i, c := range calls {
		if !c.Source.Stopped() {
			t.Errorf("chunk %d still playing after interruption", i)
		}
	}
	if got := f.ctrl.Scheduler().NextStartTime(); got != 0 {
		t.Errorf("cursor = %v, want 0", got)
	}
	if !f.ctrl.Active() {
		t.Error("interruption must not end the session")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Teardown
// ─────────────────────────────────────────────────────────────────────────────

func TestStop_Idempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.open(t)
	f.sess.Emit(s2s.Event{Kind: s2s.EventAudio, Audio: pcmChunk(time.Second)})
	eventually(t, func() bool { return len(f.out.Calls()) == 1 })

	f.ctrl.Stop()
	f.ctrl.Stop()

	snap := f.ctrl.Snapshot()
	if snap.Active || snap.State != StateIdle || snap.Transcript != "" {
		t.Errorf("snapshot after stop = %+v", snap)
	}
	if snap.Display() != IdlePrompt {
		t.Errorf("display = %q, want %q", snap.Display(), IdlePrompt)
	}
	if f.sess.Closes() != 1 {
		t.Errorf("session closes = %d, want 1", f.sess.Closes())
	}
	if !f.out.Calls()[0].Source.Stopped() {
		t.Error("scheduled audio not stopped")
	}
	if f.mic.CallCountStop != 1 {
		t.Errorf("microphone stops = %d, want 1", f.mic.CallCountStop)
	}
	if n := len(f.rec.Notices()); n != 0 {
		t.Errorf("notifications on explicit stop = %d, want 0", n)
	}
}

func TestRemoteErrorTearsDownAndNotifiesOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.open(t)

	f.sess.Emit(s2s.Event{Kind: s2s.EventError, Err: errors.New("gemini: quota (code 429)")})
	eventually(t, func() bool { return !f.ctrl.Active() })
	f.ctrl.Stop()

	notices := f.rec.Notices()
	if len(notices) != 1 || notices[0] != ConnectFailedMessage {
		t.Errorf("notices = %q, want one %q", notices, ConnectFailedMessage)
	}
	if f.sess.Closes() == 0 {
		t.Error("session not closed")
	}
}

func TestRemoteCloseReturnsToIdle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.open(t)

	f.sess.Emit(s2s.Event{Kind: s2s.EventClosed})
	eventually(t, func() bool { return !f.ctrl.Active() })

	if f.ctrl.Snapshot().State != StateIdle {
		t.Errorf("state = %v, want idle", f.ctrl.Snapshot().State)
	}
	if n := len(f.rec.Notices()); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
}

func TestToggleAndEscape(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if f.ctrl.Escape() {
		t.Error("Escape acted while idle")
	}
	if err := f.ctrl.Toggle(ctx); err != nil {
		t.Fatalf("Toggle on: %v", err)
	}
	if !f.ctrl.Active() {
		t.Fatal("Toggle did not start")
	}
	if err := f.ctrl.Toggle(ctx); err != nil {
		t.Fatalf("Toggle off: %v", err)
	}
	if f.ctrl.Active() {
		t.Fatal("Toggle did not stop")
	}

	f.prov.Session = s2smock.NewSession()
	if err := f.ctrl.Toggle(ctx); err != nil {
		t.Fatalf("Toggle on again: %v", err)
	}
	if !f.ctrl.Escape() || f.ctrl.Active() {
		t.Error("Escape did not stop the active session")
	}
}

func TestObserverSeesTransitions(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var states []string
	sess := s2smock.NewSession()
	ctrl := New(&s2smock.Provider{Session: sess}, tools.NewDispatcher(&recorder{}, &recorder{}),
		&audiomock.Microphone{}, &audiomock.Output{}, Config{},
		WithObserver(func(s Snapshot) {
			mu.Lock()
			states = append(states, s.StateName)
			mu.Unlock()
		}))

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctrl.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 || states[0] != "listening" || states[len(states)-1] != "idle" {
		t.Errorf("observed states = %v", states)
	}
}

func TestSampleRate(t *testing.T) {
	t.Parallel()
	tests := map[string]int{
		"audio/pcm;rate=24000":  24000,
		"audio/pcm; rate=16000": 16000,
		"audio/pcm":             DefaultOutputSampleRate,
		"":                      DefaultOutputSampleRate,
		"audio/pcm;rate=abc":    DefaultOutputSampleRate,
	}
	for mime, want := range tests {
		if got := sampleRate(mime); got != want {
			t.Errorf("sampleRate(%q) = %d, want %d", mime, got, want)
		}
	}
}
