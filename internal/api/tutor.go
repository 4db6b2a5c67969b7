package api

import (
	"context"
	"net/http"
	"time"

	"github.com/eimkon/eimkon/internal/tutor"
)

// startTimeout bounds microphone acquisition and the session handshake.
const startTimeout = 15 * time.Second

// TutorState is the tutor widget state as shown to the learner.
type TutorState struct {
	Active     bool   `json:"active"`
	State      string `json:"state"`
	Status     string `json:"status"`
	Speaking   bool   `json:"speaking"`
	Transcript string `json:"transcript"`
	SessionID  string `json:"sessionId,omitempty"`
}

// NewTutorState derives the widget state from a controller snapshot.
func NewTutorState(snap tutor.Snapshot) TutorState {
	return TutorState{
		Active:     snap.Active,
		State:      snap.State.String(),
		Status:     snap.Status(),
		Speaking:   snap.Speaking,
		Transcript: snap.Display(),
		SessionID:  snap.SessionID,
	}
}

func (s *Server) tutorState() TutorState {
	return NewTutorState(s.deps.Tutor.Snapshot())
}

func (s *Server) handleTutorState(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tutor == nil {
		fail(w, r, errUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.tutorState())
}

func (s *Server) handleTutorStart(w http.ResponseWriter, r *http.Request) {
	s.tutorAction(w, r, s.deps.Tutor.Start)
}

func (s *Server) handleTutorToggle(w http.ResponseWriter, r *http.Request) {
	s.tutorAction(w, r, s.deps.Tutor.Toggle)
}

func (s *Server) handleTutorStop(w http.ResponseWriter, r *http.Request) {
	s.tutorAction(w, r, func(context.Context) error {
		s.deps.Tutor.Stop()
		return nil
	})
}

func (s *Server) handleTutorEscape(w http.ResponseWriter, r *http.Request) {
	s.tutorAction(w, r, func(context.Context) error {
		s.deps.Tutor.Escape()
		return nil
	})
}

// tutorAction runs fn and replies with the resulting tutor state. Start
// failures other than a running session are already shown to the user by
// the controller, so they are reported in the state rather than as errors.
func (s *Server) tutorAction(w http.ResponseWriter, r *http.Request, fn func(context.Context) error) {
	if s.deps.Tutor == nil {
		fail(w, r, errUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), startTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		if statusFor(err) == http.StatusConflict {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadGateway, struct {
			TutorState
			Error string `json:"error"`
		}{s.tutorState(), err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.tutorState())
}
