package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/eimkon/eimkon/internal/quiz"
)

// Quiz is the subset of the quiz session used by the API.
type Quiz interface {
	Start(ctx context.Context, lessonID string) error
	Select(idx int) error
	Submit() error
	Next() error
	Confirm() error
	ToggleReading() error
	Reset()
	Silence()
	State() quiz.State
}

type quizStartBody struct {
	LessonID string `json:"lessonId"`
}

func (s *Server) handleQuizState(w http.ResponseWriter, r *http.Request) {
	if s.deps.Quiz == nil {
		fail(w, r, errUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Quiz.State())
}

// handleQuizStart starts the quiz of the given lesson, or of the lesson the
// player has open when the body names none.
func (s *Server) handleQuizStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Quiz == nil {
		fail(w, r, errUnavailable)
		return
	}
	var req quizStartBody
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			fail(w, r, err)
			return
		}
	}
	if req.LessonID == "" && s.deps.Player != nil {
		req.LessonID = s.deps.Player.State().LessonID
	}
	if req.LessonID == "" {
		fail(w, r, fmt.Errorf("%w: no lesson open", errBadRequest))
		return
	}
	if err := s.deps.Quiz.Start(r.Context(), req.LessonID); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Quiz.State())
}

// quizSelectBody names an option by index or by letter.
type quizSelectBody struct {
	Option *int   `json:"option,omitempty"`
	Letter string `json:"letter,omitempty"`
}

func (s *Server) handleQuizSelect(w http.ResponseWriter, r *http.Request) {
	if s.deps.Quiz == nil {
		fail(w, r, errUnavailable)
		return
	}
	var req quizSelectBody
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	var idx int
	switch {
	case req.Option != nil:
		idx = *req.Option
	case req.Letter != "":
		var ok bool
		if idx, ok = quiz.OptionIndex(req.Letter); !ok {
			fail(w, r, fmt.Errorf("%w: %q", quiz.ErrInvalidOption, req.Letter))
			return
		}
	default:
		fail(w, r, fmt.Errorf("%w: option or letter required", errBadRequest))
		return
	}
	s.quizAction(w, r, func() error { return s.deps.Quiz.Select(idx) })
}

func (s *Server) handleQuizSubmit(w http.ResponseWriter, r *http.Request) {
	s.quizAction(w, r, func() error { return s.deps.Quiz.Submit() })
}

func (s *Server) handleQuizNext(w http.ResponseWriter, r *http.Request) {
	s.quizAction(w, r, func() error { return s.deps.Quiz.Next() })
}

func (s *Server) handleQuizConfirm(w http.ResponseWriter, r *http.Request) {
	s.quizAction(w, r, func() error { return s.deps.Quiz.Confirm() })
}

func (s *Server) handleQuizToggleAudio(w http.ResponseWriter, r *http.Request) {
	s.quizAction(w, r, func() error { return s.deps.Quiz.ToggleReading() })
}

func (s *Server) handleQuizReset(w http.ResponseWriter, r *http.Request) {
	s.quizAction(w, r, func() error {
		s.deps.Quiz.Reset()
		return nil
	})
}

// quizAction runs fn and answers with the resulting quiz state.
func (s *Server) quizAction(w http.ResponseWriter, r *http.Request, fn func() error) {
	if s.deps.Quiz == nil {
		fail(w, r, errUnavailable)
		return
	}
	if err := fn(); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Quiz.State())
}
