package tools

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/eimkon/eimkon/pkg/provider/s2s"
)

// ScrollStep is the magnitude of one scroll command.
const ScrollStep = 500

// Alias maps a colloquial page name to an in-app route.
type Alias struct {
	Key   string
	Route string
}

// DefaultPages is the navigation alias table. Order matters: the substring
// fallback picks the first matching entry.
var DefaultPages = []Alias{
	{"home", "/"},
	{"bosh sahifa", "/"},
	{"asosiy", "/"},
	{"math", "/courses/math-101"},
	{"matematika", "/courses/math-101"},
	{"matemika", "/courses/math-101"},
	{"hisob-kitob", "/courses/math-101"},
	{"english", "/courses/english-101"},
	{"ingliz tili", "/courses/english-101"},
	{"inglizcha", "/courses/english-101"},
	{"frontend", "/courses/frontend-101"},
	{"dasturlash", "/courses/frontend-101"},
	{"veb dasturlash", "/courses/frontend-101"},
	{"docs", "/docs"},
	{"yo'riqnoma", "/docs"},
	{"yordam", "/docs"},
}

// DefaultCourseLessons maps course aliases to their lesson ids in course
// order. Lookups are exact on the lower-cased alias.
var DefaultCourseLessons = map[string][]string{
	"english":     {"eng-l1", "eng-l2"},
	"ingliz tili": {"eng-l1", "eng-l2"},
	"math":        {"math-l1"},
	"matematika":  {"math-l1"},
	"matemika":    {"math-l1"},
	"frontend":    {"fe-l1"},
	"dasturlash":  {"fe-l1"},
}

// LessonRoute returns the route of the lesson page for id.
func LessonRoute(id string) string {
	return "/lesson/" + id
}

// ResolvePage looks page up in the alias table. An exact key wins; otherwise
// the first entry whose key contains page, or is contained in page, is used.
// exact reports which of the two matched.
func ResolvePage(pages []Alias, page string) (a Alias, exact, ok bool) {
	page = strings.ToLower(page)
	for _, p := range pages {
		if p.Key == page {
			return p, true, true
		}
	}
	for _, p := range pages {
		if strings.Contains(page, p.Key) || strings.Contains(p.Key, page) {
			return p, false, true
		}
	}
	return Alias{}, false, false
}

func (d *Dispatcher) navigateTool() Tool {
	return Tool{
		Definition: s2s.ToolDefinition{
			Name:        "navigate",
			Description: "Ilovadagi sahifaga o'tish.",
			Parameters:  objectSchema(map[string]string{"page": "string"}),
		},
		Handler: func(_ context.Context, args map[string]any) (string, bool) {
			return d.navigate(stringArg(args, "page"))
		},
	}
}

func (d *Dispatcher) navigate(page string) (string, bool) {
	lower := strings.ToLower(page)
	a, exact, ok := ResolvePage(d.pages, lower)
	switch {
	case !ok:
		return fmt.Sprintf("Xato: \"%s\" nomli sahifa topilmadi.", lower), false
	case exact:
		d.nav.Navigate(a.Route)
		return fmt.Sprintf("Hozir %s sahifasiga o'tamiz.", lower), true
	default:
		d.nav.Navigate(a.Route)
		return fmt.Sprintf("%s sahifasi ochildi.", a.Key), true
	}
}

func (d *Dispatcher) openLessonTool() Tool {
	return Tool{
		Definition: s2s.ToolDefinition{
			Name:        "open_lesson",
			Description: "Kursning tartib raqami bo'yicha darsini ochish.",
			Parameters:  objectSchema(map[string]string{"course": "string", "index": "number"}),
		},
		Handler: func(_ context.Context, args map[string]any) (string, bool) {
			return d.openLesson(stringArg(args, "course"), args["index"])
		},
	}
}

func (d *Dispatcher) openLesson(course string, rawIndex any) (string, bool) {
	shown := formatIndex(rawIndex)
	lessons := d.courses[strings.ToLower(course)]
	idx, ok := parseIndex(rawIndex)
	if !ok || idx < 1 || idx > len(lessons) {
		return fmt.Sprintf("Kechirasiz, %s kursida %s-darsni topa olmadim.", course, shown), false
	}
	d.nav.Navigate(LessonRoute(lessons[idx-1]))
	return fmt.Sprintf("%s kursidan %s-dars ochildi.", course, shown), true
}

func (d *Dispatcher) scrollTool() Tool {
	return Tool{
		Definition: s2s.ToolDefinition{
			Name:        "scroll",
			Description: "Sahifani yuqoriga (up) yoki pastga (down) aylantirish.",
			Parameters:  objectSchema(map[string]string{"direction": "string"}),
		},
		Handler: func(_ context.Context, args map[string]any) (string, bool) {
			dy := ScrollStep
			if strings.EqualFold(strings.TrimSpace(stringArg(args, "direction")), "up") {
				dy = -ScrollStep
			}
			d.scroller.ScrollBy(dy)
			return DefaultResult, true
		},
	}
}

// parseIndex converts a 1-based lesson index from its JSON form. Numbers must
// be integral; strings must parse as base-10 integers.
func parseIndex(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(x), true
	case int:
		return x, true
	case int64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	default:
		return 0, false
	}
}

// formatIndex renders the index argument the way the user said it.
func formatIndex(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// objectSchema builds a JSON-schema object with every property required.
func objectSchema(props map[string]string) map[string]any {
	properties := make(map[string]any, len(props))
	required := make([]string, 0, len(props))
	for name, typ := range props {
		properties[name] = map[string]any{"type": typ}
		required = append(required, name)
	}
	slices.Sort(required)
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}
