// Package lesson reads the currently open lesson aloud on request and keeps
// the learner's progress up to date as lessons are opened.
package lesson

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/eimkon/eimkon/internal/content"
	"github.com/eimkon/eimkon/internal/narration"
	"github.com/eimkon/eimkon/internal/tools"
	"github.com/eimkon/eimkon/internal/ui"
)

// UnavailableMessage is shown when a section cannot be synthesized.
const UnavailableMessage = "Ovozli o'qish uchun Gemini API key kerak. .env faylini tekshiring."

// PrefetchOnOpen is how many leading sections are synthesized as soon as a
// lesson opens.
const PrefetchOnOpen = 2

const routePrefix = "/lesson/"

// Reader plays lesson sections in order.
type Reader interface {
	Prefetch(ctx context.Context, texts ...string)
	SpeakSections(ctx context.Context, sections []string, from int, onSection func(int)) (int, error)
}

// State is the playback state published to the shell.
type State struct {
	LessonID string `json:"lessonId,omitempty"`
	CourseID string `json:"courseId,omitempty"`
	Title    string `json:"title,omitempty"`
	Section  int    `json:"section"`
	Sections int    `json:"sections"`
	Playing  bool   `json:"playing"`
	PrevID   string `json:"prevId,omitempty"`
	NextID   string `json:"nextId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Player owns read-aloud playback of one lesson at a time.
type Player struct {
	store  content.Store
	reader Reader
	pub    ui.Publisher
	userID string

	mu       sync.Mutex
	lesson   *content.Lesson
	sections []string
	index    int
	prevID   string
	nextID   string
	errMsg   string
	cancel   context.CancelFunc
	done     chan struct{}

	// route advances on every open or close; an Open that finishes after a
	// newer one started is discarded.
	route uint64
}

// NewPlayer returns a player that records progress for userID. userID may
// be empty, in which case progress is not recorded.
func NewPlayer(store content.Store, reader Reader, pub ui.Publisher, userID string) *Player {
	return &Player{store: store, reader: reader, pub: pub, userID: userID}
}

// Run applies lesson commands until ctx ends or cmds is closed.
func (p *Player) Run(ctx context.Context, cmds <-chan tools.LessonCommand) error {
	defer p.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-cmds:
			if !ok {
				return nil
			}
			p.Handle(cmd)
		}
	}
}

// Handle applies one lesson command.
func (p *Player) Handle(cmd tools.LessonCommand) {
	switch cmd {
	case tools.LessonPlay:
		p.Play()
	case tools.LessonPause, tools.LessonStop:
		p.Stop()
	default:
		slog.Warn("lesson: unknown command", "command", string(cmd))
	}
}

// OnRoute follows shell navigation: lesson routes open that lesson, any
// other route closes the current one. Loading happens in the background;
// only the result for the latest route is kept.
func (p *Player) OnRoute(route string) {
	id, ok := strings.CutPrefix(route, routePrefix)
	if !ok || id == "" {
		p.Close()
		return
	}
	gen := p.nextRoute()
	go func() {
		if err := p.open(context.Background(), id, gen); err != nil {
			slog.Warn("lesson: open failed", "lesson_id", id, "err", err)
		}
	}()
}

// Open loads lesson id, stopping any playback of the previous lesson. The
// first sections are prefetched and the learner's progress is recorded.
// If another Open, OnRoute or Close happens while id is loading, the load
// is discarded and nothing is recorded.
func (p *Player) Open(ctx context.Context, id string) error {
	return p.open(ctx, id, p.nextRoute())
}

func (p *Player) nextRoute() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.route++
	return p.route
}

func (p *Player) open(ctx context.Context, id string, gen uint64) error {
	p.mu.Lock()
	current := p.route == gen
	p.mu.Unlock()
	if !current {
		return nil
	}
	p.Stop()

	l, err := p.store.Lesson(ctx, id)
	if err != nil {
		return err
	}
	var prevID, nextID string
	if siblings, err := p.store.Lessons(ctx, l.CourseID); err == nil {
		prev, next := content.Neighbours(siblings, l.ID)
		if prev != nil {
			prevID = prev.ID
		}
		if next != nil {
			nextID = next.ID
		}
	} else {
		slog.Warn("lesson: list siblings failed", "course_id", l.CourseID, "err", err)
	}

	sections := l.SectionTexts()
	p.mu.Lock()
	if p.route != gen {
		p.mu.Unlock()
		slog.Debug("lesson: discarding superseded open", "lesson_id", id)
		return nil
	}
	p.lesson = &l
	p.sections = sections
	p.index = 0
	p.prevID, p.nextID = prevID, nextID
	p.errMsg = ""
	p.mu.Unlock()

	p.reader.Prefetch(context.WithoutCancel(ctx), sections[:min(PrefetchOnOpen, len(sections))]...)

	if p.userID != "" {
		if err := p.store.RecordProgress(ctx, p.userID, l.CourseID, l.ID); err != nil {
			slog.Warn("lesson: record progress failed", "lesson_id", l.ID, "err", err)
		}
	}
	p.publish()
	return nil
}

// Close stops playback and forgets the current lesson.
func (p *Player) Close() {
	p.Stop()
	p.mu.Lock()
	p.route++
	had := p.lesson != nil
	p.lesson = nil
	p.sections = nil
	p.index = 0
	p.prevID, p.nextID, p.errMsg = "", "", ""
	p.mu.Unlock()
	if had {
		p.publish()
	}
}

// Play starts reading the open lesson from the remembered section. It is a
// no-op while already playing or when no lesson is open.
func (p *Player) Play() {
	p.mu.Lock()
	if p.lesson == nil || p.cancel != nil || len(p.sections) == 0 {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel, p.done = cancel, done
	p.errMsg = ""
	sections, from := p.sections, p.index
	p.mu.Unlock()

	p.publish()
	go p.play(ctx, done, sections, from)
}

func (p *Player) play(ctx context.Context, done chan struct{}, sections []string, from int) {
	defer close(done)

	next, err := p.reader.SpeakSections(ctx, sections, from, func(idx int) {
		p.mu.Lock()
		p.index = idx
		p.mu.Unlock()
		p.publish()
	})

	p.mu.Lock()
	p.index = next
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, narration.ErrUnavailable):
		p.errMsg = UnavailableMessage
	default:
		slog.Warn("lesson: read aloud failed", "section", next, "err", err)
		p.errMsg = UnavailableMessage
	}
	if p.done == done {
		p.cancel, p.done = nil, nil
	}
	p.mu.Unlock()
	p.publish()
}

// Stop halts playback and waits for it to wind down. The current section
// is remembered for the next [Player.Play].
func (p *Player) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// State returns the current playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Player) stateLocked() State {
	s := State{
		Section:  p.index,
		Sections: len(p.sections),
		Playing:  p.cancel != nil,
		PrevID:   p.prevID,
		NextID:   p.nextID,
		Error:    p.errMsg,
	}
	if p.lesson != nil {
		s.LessonID = p.lesson.ID
		s.CourseID = p.lesson.CourseID
		s.Title = p.lesson.Title
	}
	return s
}

func (p *Player) publish() {
	p.pub.Publish(ui.Event{Type: ui.EventLesson, Data: p.State()})
}
