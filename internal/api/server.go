// Package api serves the HTTP surface of the application shell: tutor
// controls, the content catalogue, learner progress, the lesson quiz,
// accessibility preferences and the UI event stream.
//
// All JSON routes live under /v1. Errors are JSON objects of the form
// {"error": "..."} with a status code derived from the underlying sentinel.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/eimkon/eimkon/internal/content"
	"github.com/eimkon/eimkon/internal/lesson"
	"github.com/eimkon/eimkon/internal/observe"
	"github.com/eimkon/eimkon/internal/quiz"
	"github.com/eimkon/eimkon/internal/tutor"
	"github.com/eimkon/eimkon/internal/ui"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Tutor is the subset of the tutor controller used by the API.
type Tutor interface {
	Start(ctx context.Context) error
	Stop()
	Toggle(ctx context.Context) error
	Escape() bool
	Snapshot() tutor.Snapshot
}

// Player is the subset of the lesson player used by the API.
type Player interface {
	State() lesson.State
	Play()
	Stop()
}

// Deps are the collaborators behind the routes. Nil optional handlers leave
// their routes unmounted.
type Deps struct {
	Tutor     Tutor
	Player    Player
	Quiz      Quiz
	Store     content.Store
	Navigator *ui.Navigator
	Settings  *ui.Settings
	Announcer *ui.Announcer

	// UserID is the learner the profile and progress routes act for.
	UserID string

	// Events serves the UI event stream at /v1/events.
	Events http.Handler

	// Health registers /healthz and /readyz.
	Health interface{ Register(mux *http.ServeMux) }

	// Metrics serves /metrics.
	Metrics http.Handler

	// MCPPath and MCP mount the Model Context Protocol endpoint.
	MCPPath string
	MCP     http.Handler
}

// Server routes HTTP requests to the application.
type Server struct {
	deps    Deps
	mux     *http.ServeMux
	handler http.Handler
}

// New builds the router. m may be nil, in which case request metrics are
// not recorded.
func New(deps Deps, m *observe.Metrics) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.routes()

	var h http.Handler = s.mux
	h = limitBody(h)
	h = recoverPanics(h)
	if m != nil {
		h = observe.Middleware(m)(h)
	}
	s.handler = h
	return s
}

func (s *Server) routes() {
	m := s.mux

	m.HandleFunc("GET /v1/tutor", s.handleTutorState)
	m.HandleFunc("POST /v1/tutor/start", s.handleTutorStart)
	m.HandleFunc("POST /v1/tutor/stop", s.handleTutorStop)
	m.HandleFunc("POST /v1/tutor/toggle", s.handleTutorToggle)
	m.HandleFunc("POST /v1/tutor/escape", s.handleTutorEscape)

	m.HandleFunc("GET /v1/courses", s.handleCourses)
	m.HandleFunc("GET /v1/courses/{id}", s.handleCourse)
	m.HandleFunc("PUT /v1/courses/{id}", s.admin(s.handlePutCourse))
	m.HandleFunc("DELETE /v1/courses/{id}", s.admin(s.handleDeleteCourse))
	m.HandleFunc("GET /v1/courses/{id}/lessons", s.handleLessons)
	m.HandleFunc("GET /v1/lessons/{id}", s.handleLesson)
	m.HandleFunc("PUT /v1/lessons/{id}", s.admin(s.handlePutLesson))
	m.HandleFunc("DELETE /v1/lessons/{id}", s.admin(s.handleDeleteLesson))

	m.HandleFunc("GET /v1/profile", s.handleProfile)
	m.HandleFunc("POST /v1/enroll", s.handleEnroll)
	m.HandleFunc("GET /v1/progress", s.handleProgress)
	m.HandleFunc("POST /v1/progress", s.handleRecordProgress)

	m.HandleFunc("GET /v1/player", s.handlePlayerState)
	m.HandleFunc("POST /v1/player/play", s.handlePlayerPlay)
	m.HandleFunc("POST /v1/player/stop", s.handlePlayerStop)

	m.HandleFunc("GET /v1/quiz", s.handleQuizState)
	m.HandleFunc("POST /v1/quiz/start", s.handleQuizStart)
	m.HandleFunc("POST /v1/quiz/select", s.handleQuizSelect)
	m.HandleFunc("POST /v1/quiz/submit", s.handleQuizSubmit)
	m.HandleFunc("POST /v1/quiz/next", s.handleQuizNext)
	m.HandleFunc("POST /v1/quiz/confirm", s.handleQuizConfirm)
	m.HandleFunc("POST /v1/quiz/audio", s.handleQuizToggleAudio)
	m.HandleFunc("POST /v1/quiz/reset", s.handleQuizReset)

	m.HandleFunc("GET /v1/preferences", s.handlePreferences)
	m.HandleFunc("PUT /v1/preferences", s.handlePutPreferences)
	m.HandleFunc("POST /v1/preferences/contrast", s.handleToggleContrast)
	m.HandleFunc("POST /v1/navigate", s.handleNavigate)
	m.HandleFunc("POST /v1/back", s.handleBack)
	m.HandleFunc("POST /v1/scroll", s.handleScroll)
	m.HandleFunc("POST /v1/focus", s.handleFocus)
	m.HandleFunc("POST /v1/silence", s.handleSilence)

	if s.deps.Events != nil {
		m.Handle("GET /v1/events", s.deps.Events)
	}
	if s.deps.Health != nil {
		s.deps.Health.Register(m)
	}
	if s.deps.Metrics != nil {
		m.Handle("GET /metrics", s.deps.Metrics)
	}
	if s.deps.MCP != nil && s.deps.MCPPath != "" {
		m.Handle(s.deps.MCPPath, s.deps.MCP)
	}
}

// ServeHTTP implements [http.Handler]. Requests pass through panic
// recovery, a body size limit and, when metrics are set, the observe
// middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				observe.Logger(r.Context()).Error("api: handler panic",
					"panic", v, "path", r.URL.Path, "stack", string(debug.Stack()))
				writeError(w, http.StatusInternalServerError, errors.New("internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusFor maps sentinel errors to HTTP status codes.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, content.ErrNotFound), errors.Is(err, quiz.ErrNoQuiz):
		return http.StatusNotFound
	case errors.Is(err, tutor.ErrAlreadyActive), errors.Is(err, quiz.ErrWrongPhase):
		return http.StatusConflict
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, errBadRequest), errors.Is(err, quiz.ErrInvalidOption), errors.As(err, &maxErr):
		return http.StatusBadRequest
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var (
	errBadRequest  = errors.New("bad request")
	errForbidden   = errors.New("admin role required")
	errUnavailable = errors.New("not available")
)

// fail logs server-side failures and writes the error response.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("api: request failed", "path", r.URL.Path, "err", err)
	} else {
		slog.Debug("api: request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeError(w, status, err)
}
