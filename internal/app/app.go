// Package app wires the E-Imkon subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds every subsystem from
// the config, Run serves HTTP and consumes lesson commands until the context
// ends, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithS2S, WithTTS,
// WithDevices, WithStore). When an option is not provided, New creates the
// real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eimkon/eimkon/internal/api"
	"github.com/eimkon/eimkon/internal/config"
	"github.com/eimkon/eimkon/internal/content"
	"github.com/eimkon/eimkon/internal/health"
	"github.com/eimkon/eimkon/internal/input"
	"github.com/eimkon/eimkon/internal/lesson"
	"github.com/eimkon/eimkon/internal/mcpserver"
	"github.com/eimkon/eimkon/internal/narration"
	"github.com/eimkon/eimkon/internal/observe"
	"github.com/eimkon/eimkon/internal/quiz"
	"github.com/eimkon/eimkon/internal/resilience"
	"github.com/eimkon/eimkon/internal/tools"
	"github.com/eimkon/eimkon/internal/tutor"
	"github.com/eimkon/eimkon/internal/ui"
	"github.com/eimkon/eimkon/pkg/audio"
	"github.com/eimkon/eimkon/pkg/audio/device"
	"github.com/eimkon/eimkon/pkg/provider/s2s"
	geminilive "github.com/eimkon/eimkon/pkg/provider/s2s/gemini"
	"github.com/eimkon/eimkon/pkg/provider/tts"
	geminitts "github.com/eimkon/eimkon/pkg/provider/tts/gemini"
)

// Version is reported by the MCP endpoint and telemetry.
var Version = "dev"

// App owns all subsystem lifetimes.
type App struct {
	cfg            *config.Config
	metrics        *observe.Metrics
	metricsHandler http.Handler

	s2s   s2s.Provider
	tts   tts.Provider
	mic   audio.Microphone
	out   audio.Output
	store content.Store

	hub        *ui.Hub
	nav        *ui.Navigator
	settings   *ui.Settings
	announcer  *ui.Announcer
	narration  *narration.Service
	dispatcher *tools.Dispatcher
	tutor      *tutor.Controller
	player     *lesson.Player
	quiz       *quiz.Session
	cues       *audio.CuePlayer
	hotkeys    *input.Manager
	api        *api.Server

	srvMu  sync.Mutex
	server *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithS2S injects the realtime provider instead of Gemini Live.
func WithS2S(p s2s.Provider) Option {
	return func(a *App) { a.s2s = p }
}

// WithTTS injects the synthesis provider instead of Gemini TTS. It is still
// wrapped in the model-variant fallback.
func WithTTS(p tts.Provider) Option {
	return func(a *App) { a.tts = p }
}

// WithDevices injects the microphone and output device.
func WithDevices(mic audio.Microphone, out audio.Output) Option {
	return func(a *App) {
		a.mic = mic
		a.out = out
	}
}

// WithStore injects the content store instead of creating one from config.
func WithStore(s content.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics. Without it the route is absent.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Initialisation is
// synchronous: the content store is connected and seeded, devices are
// opened and every controller is constructed before New returns.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Content store ─────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init content: %w", err)
	}

	// ── 2. Audio devices ─────────────────────────────────────────────────
	if err := a.initAudio(); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	// ── 3. Remote engines ────────────────────────────────────────────────
	a.initProviders(ctx)

	// ── 4. Shell ─────────────────────────────────────────────────────────
	a.hub = ui.NewHub(a.metrics)
	a.nav = ui.NewNavigator(a.hub)
	prefs := ui.DefaultPreferences
	prefs.VoiceSupport = cfg.Narration.VoiceSupportOn()
	a.settings = ui.NewSettings(a.hub, prefs)

	// ── 5. Narration ─────────────────────────────────────────────────────
	reader := a.initNarration()

	// ── 6. Tools, tutor, lesson player ───────────────────────────────────
	a.dispatcher = tools.NewDispatcher(a.nav, a.nav,
		tools.WithMetrics(a.metrics),
		tools.WithCourseLessons(a.courseLessons(ctx)),
	)
	a.tutor = tutor.New(a.s2s, a.dispatcher, a.mic, a.out,
		tutor.Config{
			Voice:        cfg.Gemini.Voice,
			Instructions: cfg.Tutor.Instructions,
			SendQueue:    cfg.Tutor.SendQueue,
		},
		tutor.WithMetrics(a.metrics),
		tutor.WithObserver(func(s tutor.Snapshot) {
			a.hub.Publish(ui.Event{Type: ui.EventTutor, Data: api.NewTutorState(s)})
		}),
		tutor.WithNotifier(tutor.NotifierFunc(func(msg string) {
			a.hub.Publish(ui.Event{Type: ui.EventNotify, Data: msg})
		})),
	)
	a.closers = append(a.closers, func() error {
		a.tutor.Stop()
		return nil
	})
	a.player = lesson.NewPlayer(a.store, reader, a.hub, cfg.Content.UserID)
	a.closers = append(a.closers, func() error {
		a.player.Stop()
		return nil
	})
	a.quiz = a.newQuiz()
	a.closers = append(a.closers, func() error {
		a.quiz.Reset()
		return nil
	})
	a.nav.OnNavigate(a.onNavigate)

	// ── 7. Hotkeys ───────────────────────────────────────────────────────
	a.initHotkeys()

	// ── 8. HTTP surface ──────────────────────────────────────────────────
	a.initAPI()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens the PostgreSQL store or an in-memory one, seeds it from
// the catalogue and wraps it in the catalogue fallback.
func (a *App) initStore(ctx context.Context) error {
	cat := content.Builtin()
	if path := a.cfg.Content.CatalogueFile; path != "" {
		c, err := content.LoadCatalogueFile(path)
		if err != nil {
			return err
		}
		cat = c
	}

	if a.store == nil {
		if dsn := a.cfg.Content.PostgresDSN; dsn != "" {
			pg, err := content.NewPGStore(ctx, dsn)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, func() error {
				pg.Close()
				return nil
			})
			a.store = pg
		} else {
			mem := content.NewMemStore()
			n, err := content.Import(ctx, mem, cat)
			if err != nil {
				return fmt.Errorf("seed memory store: %w", err)
			}
			slog.Info("seeded in-memory content store", "records", n)
			a.store = mem
		}
	}

	if !a.cfg.Content.DisableFallback {
		a.store = content.WithFallback(a.store, cat)
	}
	return nil
}

// initAudio opens the sound devices unless they were injected.
func (a *App) initAudio() error {
	if a.mic != nil && a.out != nil {
		return nil
	}
	if a.cfg.Audio.Backend == config.AudioNone {
		slog.Info("audio backend disabled; the tutor cannot start")
		a.mic = device.NullMicrophone{}
		a.out = device.NewNullOutput()
		return nil
	}

	dctx, err := device.Open()
	if err != nil {
		return err
	}
	a.closers = append(a.closers, dctx.Close)

	spk, err := device.NewSpeaker(dctx, a.cfg.Audio.OutputRate)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, spk.Close)

	a.mic = device.NewMicrophone(dctx, device.MicrophoneConfig{
		SampleRate:   a.cfg.Audio.CaptureRate,
		PeriodFrames: a.cfg.Audio.PeriodFrames,
	})
	a.out = spk
	return nil
}

// initProviders builds the Gemini clients unless they were injected. A
// missing key is not fatal: the tutor reports it on start and narration is
// silent.
func (a *App) initProviders(ctx context.Context) {
	g := a.cfg.Gemini
	if a.s2s == nil {
		var opts []geminilive.Option
		if g.LiveModel != "" {
			opts = append(opts, geminilive.WithModel(g.LiveModel))
		}
		if g.LiveBaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(g.LiveBaseURL))
		}
		a.s2s = geminilive.New(g.APIKey, opts...)
	}
	if a.tts == nil {
		var opts []geminitts.Option
		if g.TTSBaseURL != "" {
			opts = append(opts, geminitts.WithBaseURL(g.TTSBaseURL))
		}
		p, err := geminitts.New(ctx, g.APIKey, opts...)
		if err != nil {
			slog.Warn("narration unavailable", "err", err)
			a.tts = tts.Unconfigured{}
		} else {
			a.tts = p
		}
	}
}

// initNarration builds the synthesis service and its players. It returns
// the reader used for lesson playback.
func (a *App) initNarration() *narration.Reader {
	models := a.cfg.Gemini.TTSModels
	if len(models) == 0 {
		models = geminitts.DefaultModels
	}
	fallback := resilience.NewTTSFallback(a.tts, models, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  a.cfg.Narration.MaxFailures,
			ResetTimeout: a.cfg.Narration.ResetTimeout,
			OnStateChange: func(name string, _, to resilience.State) {
				a.metrics.RecordCircuitTransition(context.Background(), name, to.String())
			},
		},
	})

	opts := []narration.Option{
		narration.WithTimeout(a.cfg.Narration.Timeout),
		narration.WithMetrics(a.metrics),
	}
	if v := a.cfg.Gemini.Voice; v != "" {
		opts = append(opts, narration.WithVoice(v))
	}
	a.narration = narration.New(fallback, opts...)

	if a.cfg.Narration.IsEnabled() {
		speaker := narration.NewSpeaker(a.narration, audio.NewOneShot(a.out))
		a.announcer = ui.NewAnnouncer(speaker, a.settings)
	}
	if a.cfg.Narration.CuesOn() {
		a.cues = audio.NewCuePlayer(a.out, a.cfg.Audio.OutputRate)
	}
	return narration.NewReader(a.narration, audio.NewOneShot(a.out))
}

// newQuiz builds the lesson quiz with its own speech channel so quiz
// prompts never cut off page announcements.
func (a *App) newQuiz() *quiz.Session {
	var speaker quiz.Speaker
	if a.cfg.Narration.IsEnabled() {
		speaker = narration.NewSpeaker(a.narration, audio.NewOneShot(a.out))
	}
	var cues quiz.Cues
	if a.cues != nil {
		cues = a.cues
	}
	return quiz.New(a.store, speaker, cues, a.hub)
}

// courseLessons extends the built-in course aliases with the lower-cased
// names of every stored course.
func (a *App) courseLessons(ctx context.Context) map[string][]string {
	out := maps.Clone(tools.DefaultCourseLessons)
	courses, err := a.store.Courses(ctx)
	if err != nil {
		slog.Warn("course aliases: list courses", "err", err)
		return out
	}
	for _, c := range courses {
		lessons, err := a.store.Lessons(ctx, c.ID)
		if err != nil || len(lessons) == 0 {
			continue
		}
		ids := make([]string, len(lessons))
		for i, l := range lessons {
			ids[i] = l.ID
		}
		out[strings.ToLower(c.Name)] = ids
	}
	return out
}

// onNavigate plays the navigation cue, announces the new page and tells the
// player and quiz which lesson, if any, is open.
func (a *App) onNavigate(route string) {
	a.player.OnRoute(route)
	a.quiz.OnRoute(route)
	if a.cues != nil {
		if err := a.cues.Play(audio.CueNav); err != nil {
			slog.Debug("navigation cue failed", "err", err)
		}
	}
	if a.announcer == nil {
		return
	}
	go func() {
		if err := a.announcer.AnnouncePage(context.Background(), route); err != nil {
			slog.Debug("page announcement failed", "route", route, "err", err)
		}
	}()
}

// initHotkeys binds the global shortcuts.
func (a *App) initHotkeys() {
	hk := a.cfg.Tutor.Hotkeys
	if hk.Disabled {
		return
	}
	a.hotkeys = input.NewManager(
		input.Binding{Name: "toggle", Keys: hk.Toggle, Action: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := a.tutor.Toggle(ctx); err != nil {
				slog.Warn("hotkey toggle failed", "err", err)
			}
		}},
		input.Binding{Name: "escape", Keys: hk.Escape, Action: func() { a.tutor.Escape() }},
		input.Binding{Name: "home", Keys: hk.Home, Action: func() { a.nav.Navigate(ui.HomeRoute) }},
		input.Binding{Name: "contrast", Keys: hk.Contrast, Action: func() { a.settings.ToggleContrast() }},
		input.Binding{Name: "silence", Keys: hk.Silence, Action: a.silence},
	)
}

func (a *App) silence() {
	if a.announcer != nil {
		a.announcer.Silence()
	}
	a.player.Stop()
	a.quiz.Silence()
}

// initAPI builds the router and, when enabled, the MCP endpoint.
func (a *App) initAPI() {
	deps := api.Deps{
		Tutor:     a.tutor,
		Player:    a.player,
		Quiz:      a.quiz,
		Store:     a.store,
		Navigator: a.nav,
		Settings:  a.settings,
		Announcer: a.announcer,
		UserID:    a.cfg.Content.UserID,
		Events:    a.hub,
		Health: health.New(
			health.PingChecker("content", a.store),
			health.QuotaChecker("narration", a.narration.Quota().Blocked),
			health.KeyChecker("gemini", a.cfg.Gemini.APIKey),
		),
		Metrics: a.metricsHandler,
	}
	if a.cfg.MCP.Enabled {
		deps.MCPPath = a.cfg.MCP.Path
		deps.MCP = mcpserver.Handler(mcpserver.New(a.dispatcher, Version))
	}
	a.api = api.New(deps, a.metrics)
}

// Handler returns the HTTP handler of the application.
func (a *App) Handler() http.Handler { return a.api }

// Navigator returns the shell navigator.
func (a *App) Navigator() *ui.Navigator { return a.nav }

// Tutor returns the tutor controller.
func (a *App) Tutor() *tutor.Controller { return a.tutor }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP, consumes lesson commands and listens for hotkeys until
// ctx is cancelled or the server fails. When ctx is done, Run returns
// context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler:           a.api,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}
	a.srvMu.Lock()
	a.server = srv
	a.srvMu.Unlock()

	g.Go(func() error {
		return a.player.Run(gctx, a.dispatcher.LessonCommands())
	})

	if a.hotkeys != nil {
		if err := a.hotkeys.Start(gctx); err != nil {
			slog.Warn("global hotkeys unavailable", "err", err)
		}
	}

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("app running", "addr", ln.Addr().String(), "mcp", a.cfg.MCP.Enabled)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable part of a config change. Other changes
// are logged and take effect on the next start.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.VoiceSupportChanged {
		p := a.settings.Get()
		p.VoiceSupport = d.NewVoiceSupport
		a.settings.Set(p)
		if !p.VoiceSupport && a.announcer != nil {
			a.announcer.Silence()
		}
		slog.Info("voice support changed", "enabled", d.NewVoiceSupport)
	}
	if d.TutorChanged {
		slog.Info("tutor settings changed; restart to apply")
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the tutor and lesson playback, releases hotkeys and
// devices, and closes the content store. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.hotkeys != nil {
			a.hotkeys.Stop()
		}
		a.srvMu.Lock()
		srv := a.server
		a.srvMu.Unlock()
		if srv != nil {
			if e := srv.Shutdown(ctx); e != nil && !errors.Is(e, http.ErrServerClosed) {
				err = errors.Join(err, e)
			}
		}
		err = errors.Join(err, a.close())
	})
	return err
}

func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if e := a.closers[i](); e != nil {
			errs = append(errs, e)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
