package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/eimkon/eimkon/pkg/provider/s2s"
)

// recorder captures navigation and scroll side effects.
type recorder struct {
	mu      sync.Mutex
	routes  []string
	scrolls []int
}

func (r *recorder) Navigate(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

func (r *recorder) ScrollBy(dy int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrolls = append(r.scrolls, dy)
}

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *recorder) {
	t.Helper()
	rec := &recorder{}
	return NewDispatcher(rec, rec, opts...), rec
}

func call(name string, args map[string]any) s2s.ToolCall {
	return s2s.ToolCall{ID: "call-" + name, Name: name, Args: args}
}

// ─────────────────────────────────────────────────────────────────────────────
// navigate
// ─────────────────────────────────────────────────────────────────────────────

func TestNavigate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		page       string
		wantRoute  string
		wantResult string
	}{
		{"matematika", "/courses/math-101", "Hozir matematika sahifasiga o'tamiz."},
		{"Ingliz Tili", "/courses/english-101", "Hozir ingliz tili sahifasiga o'tamiz."},
		{"yo'riqnoma", "/docs", "Hozir yo'riqnoma sahifasiga o'tamiz."},
		// Argument contains a key.
		{"matematika kursi", "/courses/math-101", "matematika sahifasi ochildi."},
		// Key contains the argument: "bosh sahifa" contains "bosh".
		{"bosh", "/", "bosh sahifa sahifasi ochildi."},
		{"dastur", "/courses/frontend-101", "dasturlash sahifasi ochildi."},
	}
	for _, tt := range tests {
		t.Run(tt.page, func(t *testing.T) {
			t.Parallel()
			d, rec := newTestDispatcher(t)
			resp := d.Dispatch(context.Background(), call("navigate", map[string]any{"page": tt.page}))
			if resp.Result != tt.wantResult {
				t.Errorf("result = %q, want %q", resp.Result, tt.wantResult)
			}
			if len(rec.routes) != 1 || rec.routes[0] != tt.wantRoute {
				t.Errorf("routes = %v, want [%s]", rec.routes, tt.wantRoute)
			}
		})
	}
}

func TestNavigate_Unmapped(t *testing.T) {
	t.Parallel()
	d, rec := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), call("navigate", map[string]any{"page": "qalampir"}))

	if want := `Xato: "qalampir" nomli sahifa topilmadi.`; resp.Result != want {
		t.Errorf("result = %q, want %q", resp.Result, want)
	}
	if len(rec.routes) != 0 {
		t.Errorf("unexpected navigation: %v", rec.routes)
	}
}

func TestNavigate_MissingArgument(t *testing.T) {
	t.Parallel()
	d, rec := newTestDispatcher(t)

	// An empty page is contained in every key, so the first entry wins.
	resp := d.Dispatch(context.Background(), call("navigate", nil))
	if resp.ID != "call-navigate" {
		t.Errorf("ID = %q, want %q", resp.ID, "call-navigate")
	}
	if len(rec.routes) != 1 || rec.routes[0] != "/" {
		t.Errorf("routes = %v, want [/]", rec.routes)
	}
}

func TestResolvePage_DeclarationOrder(t *testing.T) {
	t.Parallel()
	pages := []Alias{{"ab", "/first"}, {"abc", "/second"}}

	a, exact, ok := ResolvePage(pages, "ABCD")
	if !ok || exact {
		t.Fatalf("ResolvePage: ok=%v exact=%v, want fallback match", ok, exact)
	}
	if a.Route != "/first" {
		t.Errorf("route = %q, want %q", a.Route, "/first")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// open_lesson
// ─────────────────────────────────────────────────────────────────────────────

func TestOpenLesson(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		course     string
		index      any
		wantRoute  string
		wantResult string
	}{
		{"second english", "Ingliz tili", float64(2), "/lesson/eng-l2", "Ingliz tili kursidan 2-dars ochildi."},
		{"first math", "matematika", float64(1), "/lesson/math-l1", "matematika kursidan 1-dars ochildi."},
		{"string index", "frontend", "1", "/lesson/fe-l1", "frontend kursidan 1-dars ochildi."},
		{"out of range", "ingliz tili", float64(5), "", "Kechirasiz, ingliz tili kursida 5-darsni topa olmadim."},
		{"zero", "math", float64(0), "", "Kechirasiz, math kursida 0-darsni topa olmadim."},
		{"fractional", "english", 1.5, "", "Kechirasiz, english kursida 1.5-darsni topa olmadim."},
		{"unknown course", "kimyo", float64(1), "", "Kechirasiz, kimyo kursida 1-darsni topa olmadim."},
		{"no substring fallback", "matematika kursi", float64(1), "", "Kechirasiz, matematika kursi kursida 1-darsni topa olmadim."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, rec := newTestDispatcher(t)
			resp := d.Dispatch(context.Background(), call("open_lesson", map[string]any{
				"course": tt.course,
				"index":  tt.index,
			}))
			if resp.Result != tt.wantResult {
				t.Errorf("result = %q, want %q", resp.Result, tt.wantResult)
			}
			switch {
			case tt.wantRoute == "" && len(rec.routes) != 0:
				t.Errorf("unexpected navigation: %v", rec.routes)
			case tt.wantRoute != "" && (len(rec.routes) != 1 || rec.routes[0] != tt.wantRoute):
				t.Errorf("routes = %v, want [%s]", rec.routes, tt.wantRoute)
			}
		})
	}
}

func TestOpenLesson_CustomTable(t *testing.T) {
	t.Parallel()
	d, rec := newTestDispatcher(t, WithCourseLessons(map[string][]string{"kimyo": {"chem-1", "chem-2"}}))

	d.Dispatch(context.Background(), call("open_lesson", map[string]any{"course": "KIMYO", "index": float64(2)}))

	if len(rec.routes) != 1 || rec.routes[0] != "/lesson/chem-2" {
		t.Errorf("routes = %v, want [/lesson/chem-2]", rec.routes)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// scroll and lesson_audio
// ─────────────────────────────────────────────────────────────────────────────

func TestScroll(t *testing.T) {
	t.Parallel()
	d, rec := newTestDispatcher(t)
	ctx := context.Background()

	for _, dir := range []string{"up", "down", "sideways", "UP", " Up "} {
		resp := d.Dispatch(ctx, call("scroll", map[string]any{"direction": dir}))
		if resp.Result != DefaultResult {
			t.Errorf("scroll %s result = %q, want %q", dir, resp.Result, DefaultResult)
		}
	}
	want := []int{-500, 500, 500, -500, -500}
	if fmt.Sprint(rec.scrolls) != fmt.Sprint(want) {
		t.Errorf("scrolls = %v, want %v", rec.scrolls, want)
	}
}

func TestLessonAudio_Queue(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t, WithLessonQueue(2))
	ctx := context.Background()

	for _, action := range []string{"PLAY", "pause", "stop"} {
		resp := d.Dispatch(ctx, call("lesson_audio", map[string]any{"action": action}))
		if resp.Result != DefaultResult {
			t.Errorf("result = %q, want %q", resp.Result, DefaultResult)
		}
	}

	// Queue capacity is 2: the third command is dropped without blocking.
	if got := <-d.LessonCommands(); got != LessonPlay {
		t.Errorf("first command = %q, want %q", got, LessonPlay)
	}
	if got := <-d.LessonCommands(); got != LessonPause {
		t.Errorf("second command = %q, want %q", got, LessonPause)
	}
	select {
	case got := <-d.LessonCommands():
		t.Errorf("unexpected third command %q", got)
	default:
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Dispatcher
// ─────────────────────────────────────────────────────────────────────────────

func TestDispatchAll_OneResponsePerCall(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t)

	calls := []s2s.ToolCall{
		{ID: "a", Name: "navigate", Args: map[string]any{"page": "qalampir"}},
		{ID: "b", Name: "scroll", Args: map[string]any{"direction": "up"}},
		{ID: "c", Name: "teleport", Args: map[string]any{}},
		{ID: "d", Name: "open_lesson", Args: map[string]any{"course": "math", "index": float64(9)}},
	}
	resps := d.DispatchAll(context.Background(), calls)

	if len(resps) != len(calls) {
		t.Fatalf("got %d responses, want %d", len(resps), len(calls))
	}
	for i, r := range resps {
		if r.ID != calls[i].ID || r.Name != calls[i].Name {
			t.Errorf("response %d = {%s %s}, want {%s %s}", i, r.ID, r.Name, calls[i].ID, calls[i].Name)
		}
		if r.Result == "" {
			t.Errorf("response %d has empty result", i)
		}
	}
	if resps[2].Result != DefaultResult {
		t.Errorf("unknown tool result = %q, want %q", resps[2].Result, DefaultResult)
	}
}

func TestDefinitions(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t)

	defs := d.Definitions()
	var names []string
	for _, def := range defs {
		names = append(names, def.Name)
		if def.Parameters["type"] != "object" {
			t.Errorf("%s: schema type = %v, want object", def.Name, def.Parameters["type"])
		}
	}
	if got := strings.Join(names, ","); got != "open_lesson,navigate,scroll,lesson_audio" {
		t.Errorf("definition order = %s", got)
	}

	props := defs[0].Parameters["properties"].(map[string]any)
	if props["index"].(map[string]any)["type"] != "number" {
		t.Errorf("open_lesson index type = %v, want number", props["index"])
	}
	req := defs[0].Parameters["required"].([]string)
	if strings.Join(req, ",") != "course,index" {
		t.Errorf("open_lesson required = %v", req)
	}
}
