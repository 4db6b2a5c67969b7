package ui

import (
	"sync"

	"github.com/eimkon/eimkon/internal/tools"
)

var (
	_ tools.Navigator = (*Navigator)(nil)
	_ tools.Scroller  = (*Navigator)(nil)
)

// HomeRoute is the route the shell starts on.
const HomeRoute = "/"

const maxHistory = 50

// NavigateData is the payload of an [EventNavigate] event.
type NavigateData struct {
	Route string `json:"route"`
}

// ScrollData is the payload of an [EventScroll] event.
type ScrollData struct {
	DY     int `json:"dy"`
	Offset int `json:"offset"`
}

// Navigator tracks the current route and scroll offset of the shell and
// publishes every change. It satisfies the navigation and scroll side
// effects of the tool dispatcher.
type Navigator struct {
	pub Publisher

	mu      sync.Mutex
	route   string
	history []string
	offset  int
	hooks   []func(route string)
}

// NewNavigator returns a navigator positioned at [HomeRoute].
func NewNavigator(pub Publisher) *Navigator {
	return &Navigator{pub: pub, route: HomeRoute}
}

// OnNavigate registers fn to run after every route change. Hooks run on the
// navigating goroutine and must not block.
func (n *Navigator) OnNavigate(fn func(route string)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hooks = append(n.hooks, fn)
}

// Navigate implements [tools.Navigator]. Navigating resets the scroll offset.
func (n *Navigator) Navigate(route string) {
	if route == "" {
		route = HomeRoute
	}
	n.mu.Lock()
	if n.route != route {
		n.history = append(n.history, n.route)
		if len(n.history) > maxHistory {
			n.history = n.history[len(n.history)-maxHistory:]
		}
	}
	n.route = route
	n.offset = 0
	hooks := append([]func(string){}, n.hooks...)
	n.mu.Unlock()

	n.pub.Publish(Event{Type: EventNavigate, Data: NavigateData{Route: route}})
	for _, fn := range hooks {
		fn(route)
	}
}

// Back returns to the previous route. It reports false when there is no
// history.
func (n *Navigator) Back() bool {
	n.mu.Lock()
	if len(n.history) == 0 {
		n.mu.Unlock()
		return false
	}
	prev := n.history[len(n.history)-1]
	n.history = n.history[:len(n.history)-1]
	// Navigate would push the current route again.
	n.route = prev
	n.offset = 0
	hooks := append([]func(string){}, n.hooks...)
	n.mu.Unlock()

	n.pub.Publish(Event{Type: EventNavigate, Data: NavigateData{Route: prev}})
	for _, fn := range hooks {
		fn(prev)
	}
	return true
}

// Route returns the current route.
func (n *Navigator) Route() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route
}

// ScrollBy implements [tools.Scroller]. The offset never goes below zero.
func (n *Navigator) ScrollBy(dy int) {
	n.mu.Lock()
	n.offset = max(0, n.offset+dy)
	off := n.offset
	n.mu.Unlock()

	n.pub.Publish(Event{Type: EventScroll, Data: ScrollData{DY: dy, Offset: off}})
}

// Offset returns the current scroll offset.
func (n *Navigator) Offset() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.offset
}
