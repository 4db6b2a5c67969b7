package mcpserver_test

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/eimkon/eimkon/internal/mcpserver"
	"github.com/eimkon/eimkon/internal/tools"
)

type recorder struct {
	mu     sync.Mutex
	routes []string
}

func (r *recorder) Navigate(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

func (r *recorder) ScrollBy(int) {}

func connect(t *testing.T, d mcpserver.Dispatcher) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	srv := mcpserver.New(d, "test")
	serverT, clientT := mcpsdk.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestListTools(t *testing.T) {
	t.Parallel()
	cs := connect(t, tools.NewDispatcher(&recorder{}, &recorder{}))

	var names []string
	for tool, err := range cs.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("list tools: %v", err)
		}
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	want := []string{"lesson_audio", "navigate", "open_lesson", "scroll"}
	if !slices.Equal(names, want) {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestCallTool_Navigates(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	cs := connect(t, tools.NewDispatcher(rec, rec))

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "open_lesson",
		Arguments: map[string]any{"course": "Matematika", "index": 1},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("content = %d items", len(res.Content))
	}
	text := res.Content[0].(*mcpsdk.TextContent).Text
	if !strings.Contains(text, "1-dars ochildi") {
		t.Errorf("result = %q", text)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !slices.Equal(rec.routes, []string{"/lesson/math-l1"}) {
		t.Errorf("routes = %v", rec.routes)
	}
}
