// Package quiz runs the spoken multiple-choice test attached to a lesson.
//
// A [Session] walks the questions one at a time: each question is read aloud
// with its lettered options, a selection is confirmed back, and a submitted
// answer gets a sound cue and spoken feedback before the next question.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/eimkon/eimkon/internal/content"
	"github.com/eimkon/eimkon/internal/ui"
	"github.com/eimkon/eimkon/pkg/audio"
)

var (
	// ErrNoQuiz is returned by [Session.Start] for a lesson without questions.
	ErrNoQuiz = errors.New("quiz: lesson has no quiz")

	// ErrInvalidOption is returned for an option the current question lacks.
	ErrInvalidOption = errors.New("quiz: no such option")

	// ErrWrongPhase is returned for an action the current phase does not
	// allow, such as submitting before anything is selected.
	ErrWrongPhase = errors.New("quiz: action not allowed now")
)

// Phase is where a session stands.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseAsking   Phase = "asking"
	PhaseAnswered Phase = "answered"
	PhaseFinished Phase = "finished"
)

const routePrefix = "/lesson/"

// Speaker plays one utterance at a time.
type Speaker interface {
	SpeakOnce(ctx context.Context, text string) (<-chan struct{}, error)
	Stop()
}

// Cues plays short feedback sounds.
type Cues interface {
	Play(audio.Cue) error
	Stop()
}

// Option is one answer as shown to the learner. Correct is only set once
// the question has been answered.
type Option struct {
	Letter  string `json:"letter"`
	Text    string `json:"text"`
	Correct *bool  `json:"correct,omitempty"`
}

// State is the quiz state published to the shell.
type State struct {
	LessonID    string   `json:"lessonId,omitempty"`
	Phase       Phase    `json:"phase"`
	Question    int      `json:"question"`
	Questions   int      `json:"questions"`
	Text        string   `json:"text,omitempty"`
	Options     []Option `json:"options,omitempty"`
	Selected    int      `json:"selected"`
	Correct     *bool    `json:"correct,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
	Score       int      `json:"score"`
	Reading     bool     `json:"reading"`
}

// Session is the quiz of the open lesson. All methods are safe for
// concurrent use.
type Session struct {
	store   content.Store
	speaker Speaker
	cues    Cues
	pub     ui.Publisher

	mu        sync.Mutex
	lessonID  string
	questions []content.QuizQuestion
	phase     Phase
	index     int
	selected  int
	correct   bool
	score     int
	reading   bool
	speech    uint64

	// speakMu orders utterances: only the newest one reaches the speaker.
	speakMu sync.Mutex
}

// New returns an idle session. speaker and cues may be nil, in which case
// the quiz runs silently.
func New(store content.Store, speaker Speaker, cues Cues, pub ui.Publisher) *Session {
	return &Session{store: store, speaker: speaker, cues: cues, pub: pub, phase: PhaseIdle, selected: -1}
}

// Letter returns the option letter for index i: A, B, C and so on.
func Letter(i int) string { return string(rune('A' + i)) }

// OptionIndex maps an option letter to its index, case-insensitively.
func OptionIndex(letter string) (int, bool) {
	letter = strings.TrimSpace(letter)
	r, size := utf8.DecodeRuneInString(letter)
	if size == 0 || size != len(letter) {
		return 0, false
	}
	r = unicode.ToUpper(r)
	if r < 'A' || r > 'Z' {
		return 0, false
	}
	return int(r - 'A'), true
}

// QuestionText is the spoken form of q.
func QuestionText(q content.QuizQuestion) string {
	opts := make([]string, len(q.Options))
	for i, o := range q.Options {
		opts[i] = fmt.Sprintf("%s-variant: %s", Letter(i), o.Text)
	}
	return fmt.Sprintf("Savol: %s. Variantlar: %s. Tanlash uchun harflarni bosing.", q.Question, strings.Join(opts, ". "))
}

// Start loads the quiz of lessonID and reads the first question. A running
// quiz is discarded.
func (s *Session) Start(ctx context.Context, lessonID string) error {
	l, err := s.store.Lesson(ctx, lessonID)
	if err != nil {
		return err
	}
	if len(l.Content.Quiz) == 0 {
		return fmt.Errorf("%w: %s", ErrNoQuiz, lessonID)
	}

	s.mu.Lock()
	s.lessonID = l.ID
	s.questions = l.Content.Quiz
	s.phase = PhaseAsking
	s.index, s.selected, s.score = 0, -1, 0
	s.correct = false
	s.speakLocked(QuestionText(s.questions[0]))
	s.mu.Unlock()

	slog.Info("quiz: started", "lesson_id", l.ID, "questions", len(l.Content.Quiz))
	s.publish()
	return nil
}

// Select marks option idx of the current question and confirms the choice
// aloud. The selection can change until the answer is submitted.
func (s *Session) Select(idx int) error {
	s.mu.Lock()
	if s.phase != PhaseAsking {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	if idx < 0 || idx >= len(s.questions[s.index].Options) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidOption, idx)
	}
	s.selected = idx
	s.speakLocked(fmt.Sprintf("Siz %s-variantni tanladingiz. Tasdiqlash uchun Enterni bosing.", Letter(idx)))
	s.mu.Unlock()

	s.publish()
	return nil
}

// Submit grades the selected option, plays the success or error cue and
// speaks the feedback with the explanation.
func (s *Session) Submit() error {
	s.mu.Lock()
	if s.phase != PhaseAsking || s.selected < 0 {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	q := s.questions[s.index]
	s.correct = q.Options[s.selected].IsCorrect
	s.phase = PhaseAnswered
	cue := audio.CueError
	if s.correct {
		s.score++
		cue = audio.CueSuccess
	}
	s.speakLocked(feedback(q, s.correct))
	s.mu.Unlock()

	if s.cues != nil {
		if err := s.cues.Play(cue); err != nil {
			slog.Debug("quiz: play cue", "cue", string(cue), "err", err)
		}
	}
	s.publish()
	return nil
}

func feedback(q content.QuizQuestion, correct bool) string {
	expl := strings.TrimRight(strings.TrimSpace(q.Explanation), ".")
	var text string
	if correct {
		text = "To'g'ri javob! Barakalla. " + expl
	} else {
		var answer string
		for _, o := range q.Options {
			if o.IsCorrect {
				answer = o.Text
				break
			}
		}
		text = fmt.Sprintf("Xato javob. To'g'ri javob: %s. %s", answer, expl)
	}
	return text + ". Keyingi savolga o'tish uchun Enterni bosing."
}

// Next moves past an answered question, or finishes the quiz and announces
// the score after the last one.
func (s *Session) Next() error {
	s.mu.Lock()
	if s.phase != PhaseAnswered {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	if s.index < len(s.questions)-1 {
		s.index++
		s.selected = -1
		s.correct = false
		s.phase = PhaseAsking
		s.speakLocked(QuestionText(s.questions[s.index]))
	} else {
		s.phase = PhaseFinished
		s.speakLocked(fmt.Sprintf("Tabriklaymiz! Siz testni tugatdingiz. Natijangiz %d ball.", s.score))
		slog.Info("quiz: finished", "lesson_id", s.lessonID, "score", s.score, "questions", len(s.questions))
	}
	s.mu.Unlock()

	s.publish()
	return nil
}

// Confirm is the Enter key: it submits a selected answer, or moves on from
// an answered one.
func (s *Session) Confirm() error {
	s.mu.Lock()
	phase, selected := s.phase, s.selected
	s.mu.Unlock()

	switch {
	case phase == PhaseAsking && selected >= 0:
		return s.Submit()
	case phase == PhaseAnswered:
		return s.Next()
	default:
		return ErrWrongPhase
	}
}

// ToggleReading stops the current utterance, or reads the current question
// again when nothing is playing.
func (s *Session) ToggleReading() error {
	s.mu.Lock()
	if s.phase != PhaseAsking && s.phase != PhaseAnswered {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	if s.reading {
		s.silenceLocked()
	} else {
		s.speakLocked(QuestionText(s.questions[s.index]))
	}
	s.mu.Unlock()

	s.publish()
	return nil
}

// Reset abandons the quiz and returns to idle.
func (s *Session) Reset() {
	s.mu.Lock()
	had := s.phase != PhaseIdle
	s.silenceLocked()
	s.lessonID = ""
	s.questions = nil
	s.phase = PhaseIdle
	s.index, s.selected, s.score = 0, -1, 0
	s.correct = false
	s.mu.Unlock()

	if had {
		s.publish()
	}
}

// Silence stops quiz speech and cues without changing the quiz position.
func (s *Session) Silence() {
	s.mu.Lock()
	was := s.reading
	s.silenceLocked()
	s.mu.Unlock()
	if s.cues != nil {
		s.cues.Stop()
	}
	if was {
		s.publish()
	}
}

// OnRoute resets the quiz when the shell leaves its lesson.
func (s *Session) OnRoute(route string) {
	s.mu.Lock()
	id := s.lessonID
	s.mu.Unlock()
	if id != "" && route != routePrefix+id {
		s.Reset()
	}
}

// State returns the current quiz state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		LessonID:  s.lessonID,
		Phase:     s.phase,
		Question:  s.index,
		Questions: len(s.questions),
		Selected:  s.selected,
		Score:     s.score,
		Reading:   s.reading,
	}
	if s.phase != PhaseAsking && s.phase != PhaseAnswered {
		return st
	}
	q := s.questions[s.index]
	answered := s.phase == PhaseAnswered
	st.Text = q.Question
	st.Options = make([]Option, len(q.Options))
	for i, o := range q.Options {
		st.Options[i] = Option{Letter: Letter(i), Text: o.Text}
		if answered {
			st.Options[i].Correct = &o.IsCorrect
		}
	}
	if answered {
		correct := s.correct
		st.Correct = &correct
		st.Explanation = q.Explanation
	}
	return st
}

// speakLocked starts text in the background, superseding any earlier
// utterance. s.mu must be held.
func (s *Session) speakLocked(text string) {
	s.speech++
	gen := s.speech
	if s.speaker == nil {
		return
	}
	s.reading = true
	// Abandons an utterance that is still synthesizing.
	s.speaker.Stop()

	go func() {
		s.speakMu.Lock()
		if !s.currentSpeech(gen) {
			s.speakMu.Unlock()
			return
		}
		done, err := s.speaker.SpeakOnce(context.Background(), text)
		s.speakMu.Unlock()
		if err != nil {
			slog.Warn("quiz: speak failed", "err", err)
		} else {
			<-done
		}
		s.endSpeech(gen)
	}()
}

func (s *Session) silenceLocked() {
	s.speech++
	s.reading = false
	if s.speaker != nil {
		s.speaker.Stop()
	}
}

func (s *Session) currentSpeech(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speech == gen
}

func (s *Session) endSpeech(gen uint64) {
	s.mu.Lock()
	if s.speech != gen {
		s.mu.Unlock()
		return
	}
	s.reading = false
	s.mu.Unlock()
	s.publish()
}

func (s *Session) publish() {
	s.pub.Publish(ui.Event{Type: ui.EventQuiz, Data: s.State()})
}
