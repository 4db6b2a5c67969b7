package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/eimkon/eimkon/internal/content"
	"github.com/eimkon/eimkon/internal/lesson"
	"github.com/eimkon/eimkon/internal/quiz"
	"github.com/eimkon/eimkon/internal/tutor"
	"github.com/eimkon/eimkon/internal/ui"
)

type fakeTutor struct {
	mu       sync.Mutex
	active   bool
	startErr error
	starts   int
}

func (f *fakeTutor) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.active {
		return tutor.ErrAlreadyActive
	}
	if f.startErr != nil {
		return f.startErr
	}
	f.active = true
	return nil
}

func (f *fakeTutor) Stop() {
	f.mu.Lock()
	f.active = false
	f.mu.Unlock()
}

func (f *fakeTutor) Toggle(ctx context.Context) error {
	f.mu.Lock()
	active := f.active
	f.mu.Unlock()
	if active {
		f.Stop()
		return nil
	}
	return f.Start(ctx)
}

func (f *fakeTutor) Escape() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.active
	f.active = false
	return was
}

func (f *fakeTutor) Snapshot() tutor.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return tutor.Snapshot{}
	}
	return tutor.Snapshot{Active: true, State: tutor.StateListening, Transcript: tutor.ListeningPrompt}
}

type fakePlayer struct {
	mu      sync.Mutex
	playing bool
}

func (p *fakePlayer) State() lesson.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lesson.State{LessonID: "eng-l1", Playing: p.playing}
}

func (p *fakePlayer) Play() { p.set(true) }

func (p *fakePlayer) Stop() { p.set(false) }

func (p *fakePlayer) set(playing bool) {
	p.mu.Lock()
	p.playing = playing
	p.mu.Unlock()
}

type nopPublisher struct{}

func (nopPublisher) Publish(ui.Event) {}

// nopSpeaker finishes every utterance at once.
type nopSpeaker struct{}

func (nopSpeaker) SpeakOnce(context.Context, string) (<-chan struct{}, error) {
	done := make(chan struct{})
	close(done)
	return done, nil
}

func (nopSpeaker) Stop() {}

type fixture struct {
	srv    *Server
	tutor  *fakeTutor
	player *fakePlayer
	quiz   *quiz.Session
	store  *content.MemStore
	nav    *ui.Navigator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := content.NewMemStore()
	if _, err := content.Import(context.Background(), store, content.Builtin()); err != nil {
		t.Fatalf("import: %v", err)
	}
	f := &fixture{
		tutor:  &fakeTutor{},
		player: &fakePlayer{},
		quiz:   quiz.New(store, nopSpeaker{}, nil, nopPublisher{}),
		store:  store,
		nav:    ui.NewNavigator(nopPublisher{}),
	}
	f.srv = New(Deps{
		Tutor:     f.tutor,
		Player:    f.player,
		Quiz:      f.quiz,
		Store:     store,
		Navigator: f.nav,
		Settings:  ui.NewSettings(nopPublisher{}, ui.DefaultPreferences),
		UserID:    "learner-1",
	}, nil)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestTutorRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, "POST", "/v1/tutor/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body)
	}
	st := decodeBody[TutorState](t, rec)
	if !st.Active || st.State != "listening" || st.Status != "Tinglayapman..." {
		t.Errorf("state after start = %+v", st)
	}

	if rec := f.do(t, "POST", "/v1/tutor/start", ""); rec.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", rec.Code)
	}

	rec = f.do(t, "POST", "/v1/tutor/toggle", "")
	if st := decodeBody[TutorState](t, rec); st.Active {
		t.Errorf("toggle should stop, got %+v", st)
	}

	rec = f.do(t, "GET", "/v1/tutor", "")
	if st := decodeBody[TutorState](t, rec); st.Transcript != tutor.IdlePrompt {
		t.Errorf("idle transcript = %q, want %q", st.Transcript, tutor.IdlePrompt)
	}

	if rec := f.do(t, "POST", "/v1/tutor/escape", ""); rec.Code != http.StatusOK {
		t.Errorf("escape while idle status = %d", rec.Code)
	}
}

func TestTutorStartFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.tutor.startErr = errors.New("tutor: connect: dial failed")

	rec := f.do(t, "POST", "/v1/tutor/start", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dial failed") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestCourseRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	courses := decodeBody[[]content.Course](t, f.do(t, "GET", "/v1/courses", ""))
	if len(courses) != 3 {
		t.Fatalf("courses = %d, want 3", len(courses))
	}

	rec := f.do(t, "GET", "/v1/courses/english-101", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("course status = %d", rec.Code)
	}
	cv := decodeBody[courseView](t, rec)
	if len(cv.Lessons) != 2 {
		t.Errorf("english lessons = %d, want 2", len(cv.Lessons))
	}

	if rec := f.do(t, "GET", "/v1/courses/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing course status = %d, want 404", rec.Code)
	}

	lv := decodeBody[lessonView](t, f.do(t, "GET", "/v1/lessons/eng-l1", ""))
	if lv.NextID != "eng-l2" || lv.PrevID != "" {
		t.Errorf("neighbours = %q/%q", lv.PrevID, lv.NextID)
	}
}

func TestAdminRoutesRequireRole(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, "PUT", "/v1/courses/go", `{"name":"Go"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("student put status = %d, want 403", rec.Code)
	}

	if _, err := f.store.SetRole(context.Background(), "learner-1", content.RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}

	rec = f.do(t, "PUT", "/v1/courses/go", `{"name":"Go"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin put status = %d: %s", rec.Code, rec.Body)
	}
	rec = f.do(t, "PUT", "/v1/lessons/go-l1", `{"courseId":"go","title":"Kirish"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin put lesson status = %d: %s", rec.Code, rec.Body)
	}
	rec = f.do(t, "PUT", "/v1/lessons/bad", `{"courseId":"missing","title":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("lesson for missing course status = %d, want 404", rec.Code)
	}
	if rec := f.do(t, "DELETE", "/v1/courses/go", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
}

func TestProgressRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, "POST", "/v1/enroll", `{"courseId":"math-101"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("enroll status = %d: %s", rec.Code, rec.Body)
	}
	p := decodeBody[content.Profile](t, rec)
	if len(p.EnrolledCourseIDs) != 1 || p.EnrolledCourseIDs[0] != "math-101" {
		t.Errorf("enrolled = %v", p.EnrolledCourseIDs)
	}

	if rec := f.do(t, "POST", "/v1/enroll", `{"courseId":"nope"}`); rec.Code != http.StatusNotFound {
		t.Errorf("enroll missing course status = %d", rec.Code)
	}

	rec = f.do(t, "POST", "/v1/progress", `{"lessonId":"math-l1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("progress status = %d: %s", rec.Code, rec.Body)
	}
	prog := decodeBody[content.Progress](t, rec)
	if prog.CourseID != "math-101" || prog.LastLessonID != "math-l1" {
		t.Errorf("progress = %+v", prog)
	}

	all := decodeBody[[]content.Progress](t, f.do(t, "GET", "/v1/progress", ""))
	if len(all) != 1 {
		t.Errorf("progress records = %d, want 1", len(all))
	}

	if rec := f.do(t, "POST", "/v1/progress", `{"lessonId":"x","extra":1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", rec.Code)
	}
}

func TestShellRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, "POST", "/v1/navigate", `{"route":"/courses"}`)
	if rec.Code != http.StatusOK || f.nav.Route() != "/courses" {
		t.Fatalf("navigate status = %d, route = %q", rec.Code, f.nav.Route())
	}
	if rec := f.do(t, "POST", "/v1/navigate", `{"route":"courses"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("relative route status = %d", rec.Code)
	}
	f.do(t, "POST", "/v1/back", "")
	if f.nav.Route() != ui.HomeRoute {
		t.Errorf("route after back = %q", f.nav.Route())
	}

	sd := decodeBody[ui.ScrollData](t, f.do(t, "POST", "/v1/scroll", `{"dy":300}`))
	if sd.Offset != 300 {
		t.Errorf("offset = %d", sd.Offset)
	}

	prefs := decodeBody[ui.Preferences](t, f.do(t, "POST", "/v1/preferences/contrast", ""))
	if prefs.Contrast != ui.ContrastHigh {
		t.Errorf("contrast = %q", prefs.Contrast)
	}
	prefs = decodeBody[ui.Preferences](t, f.do(t, "PUT", "/v1/preferences", `{"fontSize":24}`))
	if prefs.FontSize != 24 || prefs.Contrast != ui.ContrastHigh || !prefs.VoiceSupport {
		t.Errorf("partial update = %+v", prefs)
	}
	if rec := f.do(t, "PUT", "/v1/preferences", `{"fontSize":2}`); rec.Code != http.StatusBadRequest {
		t.Errorf("tiny font status = %d", rec.Code)
	}

	if rec := f.do(t, "POST", "/v1/focus", `{"label":"Kurslar","kind":"link"}`); rec.Code != http.StatusOK {
		t.Errorf("focus without announcer status = %d", rec.Code)
	}
}

func TestPlayerRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	st := decodeBody[lesson.State](t, f.do(t, "POST", "/v1/player/play", ""))
	if !st.Playing {
		t.Error("play did not start playback")
	}
	if rec := f.do(t, "POST", "/v1/silence", ""); rec.Code != http.StatusNoContent {
		t.Errorf("silence status = %d", rec.Code)
	}
	if f.player.State().Playing {
		t.Error("silence should stop the player")
	}
}

func TestQuizRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if st := decodeBody[quiz.State](t, f.do(t, "GET", "/v1/quiz", "")); st.Phase != quiz.PhaseIdle {
		t.Fatalf("initial phase = %s", st.Phase)
	}

	// No body: the player's open lesson.
	rec := f.do(t, "POST", "/v1/quiz/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body)
	}
	st := decodeBody[quiz.State](t, rec)
	if st.LessonID != "eng-l1" || st.Phase != quiz.PhaseAsking || len(st.Options) != 3 {
		t.Fatalf("started = %+v", st)
	}

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{name: "submit before select", path: "/v1/quiz/submit", want: http.StatusConflict},
		{name: "empty select", path: "/v1/quiz/select", body: `{}`, want: http.StatusBadRequest},
		{name: "not a letter", path: "/v1/quiz/select", body: `{"letter":"1"}`, want: http.StatusBadRequest},
		{name: "letter out of range", path: "/v1/quiz/select", body: `{"letter":"Z"}`, want: http.StatusBadRequest},
		{name: "lower-case letter", path: "/v1/quiz/select", body: `{"letter":"b"}`, want: http.StatusOK},
		{name: "submit", path: "/v1/quiz/submit", want: http.StatusOK},
		{name: "submit twice", path: "/v1/quiz/submit", want: http.StatusConflict},
		{name: "confirm finishes", path: "/v1/quiz/confirm", want: http.StatusOK},
		{name: "audio after finish", path: "/v1/quiz/audio", want: http.StatusConflict},
	}
	for _, tt := range tests {
		if rec := f.do(t, "POST", tt.path, tt.body); rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d (%s)", tt.name, rec.Code, tt.want, rec.Body)
		}
	}
	st = f.quiz.State()
	if st.Phase != quiz.PhaseFinished || st.Score != 1 {
		t.Errorf("final state = %+v, want finished with 1 point", st)
	}

	if st := decodeBody[quiz.State](t, f.do(t, "POST", "/v1/quiz/reset", "")); st.Phase != quiz.PhaseIdle {
		t.Errorf("phase after reset = %s", st.Phase)
	}
}

func TestQuizStartErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if err := f.store.PutLesson(context.Background(), content.Lesson{ID: "plain", CourseID: "english-101"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		body string
		want int
	}{
		{body: `{"lessonId":"nope"}`, want: http.StatusNotFound},
		{body: `{"lessonId":"plain"}`, want: http.StatusNotFound},
		{body: `{"lesson":"eng-l1"}`, want: http.StatusBadRequest},
		{body: `{"lessonId":"eng-l2"}`, want: http.StatusOK},
	}
	for _, tt := range tests {
		if rec := f.do(t, "POST", "/v1/quiz/start", tt.body); rec.Code != tt.want {
			t.Errorf("start %s: status = %d, want %d", tt.body, rec.Code, tt.want)
		}
	}
	if id := f.quiz.State().LessonID; id != "eng-l2" {
		t.Errorf("quiz lesson = %q, want eng-l2", id)
	}
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if rec := f.do(t, "GET", "/v1/nothing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRecoverPanics(t *testing.T) {
	t.Parallel()
	h := recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
