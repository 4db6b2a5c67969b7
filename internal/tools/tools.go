// Package tools maps the structured commands issued by the remote
// conversational engine (navigate, open_lesson, scroll, lesson_audio) to local
// application actions and produces the textual result that is sent back on
// the originating session.
//
// A [Dispatcher] never fails a call: unmatched pages, unknown courses and
// out-of-range lesson indices are reported as ordinary result text so the
// remote engine can phrase the failure for the user. Every dispatched call
// yields exactly one [s2s.ToolResponse] carrying the call's id.
package tools

import (
	"context"
	"log/slog"

	"github.com/eimkon/eimkon/internal/observe"
	"github.com/eimkon/eimkon/pkg/provider/s2s"
)

// DefaultResult is the acknowledgement returned by tools that have no
// specific result text (scroll, lesson_audio) and for unknown tool names.
const DefaultResult = "Bajarildi"

// Navigator performs programmatic navigation to an in-app route.
type Navigator interface {
	Navigate(route string)
}

// Scroller performs a smooth vertical scroll by dy units (negative is up).
type Scroller interface {
	ScrollBy(dy int)
}

// Tool is one dispatchable command: its engine-facing declaration plus the
// handler that runs it.
type Tool struct {
	// Definition is sent to the remote engine in the session setup.
	Definition s2s.ToolDefinition

	// Handler executes the tool with the decoded call arguments and returns
	// the result text. ok is false when the target could not be resolved;
	// the text then explains the miss. Handlers must not panic on missing or
	// mistyped arguments.
	Handler func(ctx context.Context, args map[string]any) (result string, ok bool)
}

// Option is a functional option for [NewDispatcher].
type Option func(*Dispatcher)

// WithMetrics records one tool-call counter sample per dispatch.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithPages replaces the navigation alias table. Entries are matched in
// slice order for the substring fallback.
func WithPages(pages []Alias) Option {
	return func(d *Dispatcher) { d.pages = pages }
}

// WithCourseLessons replaces the course alias → ordered lesson ids table
// used by open_lesson.
func WithCourseLessons(m map[string][]string) Option {
	return func(d *Dispatcher) { d.courses = m }
}

// WithLessonQueue sets the capacity of the lesson-audio command queue.
// Default: 8.
func WithLessonQueue(n int) Option {
	return func(d *Dispatcher) { d.queueSize = n }
}

// Dispatcher routes tool calls to their handlers. It is safe for concurrent
// use once constructed.
type Dispatcher struct {
	nav       Navigator
	scroller  Scroller
	pages     []Alias
	courses   map[string][]string
	queueSize int
	lessons   chan LessonCommand
	metrics   *observe.Metrics

	tools map[string]Tool
	order []string
}

// NewDispatcher builds a dispatcher with the four built-in tools registered.
func NewDispatcher(nav Navigator, scroller Scroller, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		nav:       nav,
		scroller:  scroller,
		pages:     DefaultPages,
		courses:   DefaultCourseLessons,
		queueSize: 8,
		tools:     make(map[string]Tool),
	}
	for _, o := range opts {
		o(d)
	}
	d.lessons = make(chan LessonCommand, d.queueSize)

	d.register(d.openLessonTool())
	d.register(d.navigateTool())
	d.register(d.scrollTool())
	d.register(d.lessonAudioTool())
	return d
}

func (d *Dispatcher) register(t Tool) {
	d.tools[t.Definition.Name] = t
	d.order = append(d.order, t.Definition.Name)
}

// Definitions returns the declarations of all registered tools in
// registration order.
func (d *Dispatcher) Definitions() []s2s.ToolDefinition {
	defs := make([]s2s.ToolDefinition, 0, len(d.order))
	for _, name := range d.order {
		defs = append(defs, d.tools[name].Definition)
	}
	return defs
}

// Tools returns the registered tools in registration order.
func (d *Dispatcher) Tools() []Tool {
	out := make([]Tool, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.tools[name])
	}
	return out
}

// Dispatch runs one call and returns its response. The response always
// carries the call's id and name.
func (d *Dispatcher) Dispatch(ctx context.Context, call s2s.ToolCall) s2s.ToolResponse {
	result := DefaultResult
	status := "ok"

	t, ok := d.tools[call.Name]
	if ok {
		var matched bool
		result, matched = t.Handler(ctx, call.Args)
		if !matched {
			status = "miss"
		}
	} else {
		status = "unknown"
		slog.Warn("tools: unknown tool called", "tool", call.Name, "id", call.ID)
	}

	slog.Debug("tools: dispatched", "tool", call.Name, "id", call.ID, "result", result)
	if d.metrics != nil {
		d.metrics.RecordToolCall(ctx, call.Name, status)
	}
	return s2s.ToolResponse{ID: call.ID, Name: call.Name, Result: result}
}

// DispatchAll runs every call of a batch in order and returns one response
// per call.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []s2s.ToolCall) []s2s.ToolResponse {
	out := make([]s2s.ToolResponse, 0, len(calls))
	for _, c := range calls {
		out = append(out, d.Dispatch(ctx, c))
	}
	return out
}

// ── argument helpers ─────────────────────────────────────────────────────────

// stringArg returns args[key] when it is a string, "" otherwise.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
