package ui

import "sync"

// Contrast modes.
const (
	ContrastNormal = "normal"
	ContrastHigh   = "high"
)

// Preferences are the accessibility settings of the shell.
type Preferences struct {
	FontSize     int    `json:"fontSize"`
	Contrast     string `json:"contrast"`
	VoiceSupport bool   `json:"voiceSupport"`
}

// DefaultPreferences has voice support on and normal contrast.
var DefaultPreferences = Preferences{FontSize: 18, Contrast: ContrastNormal, VoiceSupport: true}

// Settings holds the live [Preferences] and publishes changes.
type Settings struct {
	pub Publisher

	mu    sync.RWMutex
	prefs Preferences
}

// NewSettings returns settings initialised to p.
func NewSettings(pub Publisher, p Preferences) *Settings {
	return &Settings{pub: pub, prefs: p}
}

// Get returns the current preferences.
func (s *Settings) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Set replaces the preferences. Unknown contrast values fall back to
// [ContrastNormal].
func (s *Settings) Set(p Preferences) Preferences {
	if p.Contrast != ContrastHigh {
		p.Contrast = ContrastNormal
	}
	s.mu.Lock()
	s.prefs = p
	s.mu.Unlock()

	s.pub.Publish(Event{Type: EventPrefs, Data: p})
	return p
}

// ToggleContrast flips between normal and high contrast.
func (s *Settings) ToggleContrast() Preferences {
	p := s.Get()
	if p.Contrast == ContrastHigh {
		p.Contrast = ContrastNormal
	} else {
		p.Contrast = ContrastHigh
	}
	return s.Set(p)
}

// VoiceSupport reports whether spoken announcements are enabled.
func (s *Settings) VoiceSupport() bool {
	return s.Get().VoiceSupport
}
