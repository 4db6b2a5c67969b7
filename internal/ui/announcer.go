package ui

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"
)

// MaxFocusLabel is the longest focus label that is still read aloud.
const MaxFocusLabel = 150

// FocusKind is the role of a focused element.
type FocusKind string

const (
	FocusLink   FocusKind = "link"
	FocusButton FocusKind = "button"
	FocusOther  FocusKind = ""
)

// roleWord is the spoken role suffix of k.
func (k FocusKind) roleWord() string {
	switch k {
	case FocusLink:
		return "havola"
	case FocusButton:
		return "tugma"
	default:
		return ""
	}
}

// Speaker plays short one-shot utterances, cutting off the previous one.
type Speaker interface {
	SpeakOnce(ctx context.Context, text string) (<-chan struct{}, error)
	Stop()
}

// Announcer speaks page changes and focus moves when voice support is on.
type Announcer struct {
	speaker  Speaker
	settings *Settings

	mu        sync.Mutex
	lastLabel string
}

// NewAnnouncer returns an announcer speaking through sp.
func NewAnnouncer(sp Speaker, settings *Settings) *Announcer {
	return &Announcer{speaker: sp, settings: settings}
}

// PageName returns the spoken name of route.
func PageName(route string) string {
	switch {
	case route == HomeRoute:
		return "Bosh sahifa"
	case strings.Contains(route, "lesson"):
		return "Dars sahifasi"
	case strings.Contains(route, "course"):
		return "Kurs sahifasi"
	case strings.Contains(route, "business-model"):
		return "Biznes model"
	default:
		return "Sahifa"
	}
}

// AnnouncePage speaks "<page name> yuklandi." for route. It blocks until
// synthesis finishes, not until playback ends.
func (a *Announcer) AnnouncePage(ctx context.Context, route string) error {
	if !a.settings.VoiceSupport() {
		return nil
	}
	_, err := a.speaker.SpeakOnce(ctx, PageName(route)+" yuklandi.")
	return err
}

// AnnounceFocus speaks label followed by the role word of kind. Empty
// labels, labels longer than [MaxFocusLabel] and a repeat of the last
// spoken label are ignored. It reports whether anything was spoken.
func (a *Announcer) AnnounceFocus(ctx context.Context, label string, kind FocusKind) (bool, error) {
	if !a.settings.VoiceSupport() {
		return false, nil
	}
	if label == "" || utf8.RuneCountInString(label) > MaxFocusLabel {
		return false, nil
	}

	a.mu.Lock()
	if label == a.lastLabel {
		a.mu.Unlock()
		return false, nil
	}
	a.lastLabel = label
	a.mu.Unlock()

	text := strings.TrimSpace(label + ". " + kind.roleWord())
	if _, err := a.speaker.SpeakOnce(ctx, text); err != nil {
		return false, err
	}
	return true, nil
}

// Silence stops whatever announcement is playing.
func (a *Announcer) Silence() {
	a.speaker.Stop()
}
