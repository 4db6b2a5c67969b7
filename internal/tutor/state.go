package tutor

// State is the user-facing status of the tutor widget.
type State int

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Label returns the status heading shown to the user.
func (s State) Label() string {
	switch s {
	case StateListening:
		return "Tinglayapman..."
	case StateThinking:
		return "O'ylayapman..."
	default:
		return "E-Imkon Gemini"
	}
}

// User-visible texts.
const (
	// ListeningPrompt is the transcript shown right after start.
	ListeningPrompt = "Sizni tinglayapman..."

	// IdlePrompt is shown whenever the transcript is empty.
	IdlePrompt = "Qanday yordam beray?"

	// MissingKeyMessage is shown when the realtime backend has no API key.
	MissingKeyMessage = "Gemini API key topilmadi. .env faylini tekshiring."

	// ConnectFailedMessage is shown for any other session failure.
	ConnectFailedMessage = "Gemini xizmatiga ulanishda xatolik."
)

// Snapshot is a consistent copy of the controller's observable state.
type Snapshot struct {
	Active     bool   `json:"active"`
	State      State  `json:"-"`
	StateName  string `json:"state"`
	Speaking   bool   `json:"speaking"`
	Transcript string `json:"transcript"`
	SessionID  string `json:"sessionId,omitempty"`
}

// Status returns the heading for the snapshot's state.
func (s Snapshot) Status() string { return s.State.Label() }

// Display returns the transcript, or [IdlePrompt] when it is empty.
func (s Snapshot) Display() string {
	if s.Transcript == "" {
		return IdlePrompt
	}
	return s.Transcript
}
