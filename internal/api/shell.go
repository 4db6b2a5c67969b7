package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/eimkon/eimkon/internal/observe"
	"github.com/eimkon/eimkon/internal/ui"
)

func (s *Server) handlePlayerState(w http.ResponseWriter, r *http.Request) {
	if s.deps.Player == nil {
		fail(w, r, errUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Player.State())
}

func (s *Server) handlePlayerPlay(w http.ResponseWriter, r *http.Request) {
	if s.deps.Player == nil {
		fail(w, r, errUnavailable)
		return
	}
	s.deps.Player.Play()
	writeJSON(w, http.StatusOK, s.deps.Player.State())
}

func (s *Server) handlePlayerStop(w http.ResponseWriter, r *http.Request) {
	if s.deps.Player == nil {
		fail(w, r, errUnavailable)
		return
	}
	s.deps.Player.Stop()
	writeJSON(w, http.StatusOK, s.deps.Player.State())
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.Get())
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	p := s.deps.Settings.Get()
	if err := decode(r, &p); err != nil {
		fail(w, r, err)
		return
	}
	if p.FontSize < 8 || p.FontSize > 64 {
		fail(w, r, fmt.Errorf("%w: fontSize %d out of range", errBadRequest, p.FontSize))
		return
	}
	if !p.VoiceSupport && s.deps.Announcer != nil {
		s.deps.Announcer.Silence()
	}
	writeJSON(w, http.StatusOK, s.deps.Settings.Set(p))
}

func (s *Server) handleToggleContrast(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.ToggleContrast())
}

type routeBody struct {
	Route string `json:"route"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req routeBody
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if !strings.HasPrefix(req.Route, "/") {
		fail(w, r, fmt.Errorf("%w: route must start with /", errBadRequest))
		return
	}
	s.deps.Navigator.Navigate(req.Route)
	writeJSON(w, http.StatusOK, routeBody{Route: s.deps.Navigator.Route()})
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	s.deps.Navigator.Back()
	writeJSON(w, http.StatusOK, routeBody{Route: s.deps.Navigator.Route()})
}

type scrollBody struct {
	DY int `json:"dy"`
}

func (s *Server) handleScroll(w http.ResponseWriter, r *http.Request) {
	var req scrollBody
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	s.deps.Navigator.ScrollBy(req.DY)
	writeJSON(w, http.StatusOK, ui.ScrollData{DY: req.DY, Offset: s.deps.Navigator.Offset()})
}

type focusBody struct {
	Label string       `json:"label"`
	Kind  ui.FocusKind `json:"kind"`
}

type focusResult struct {
	Spoken bool `json:"spoken"`
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	var req focusBody
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if s.deps.Announcer == nil {
		writeJSON(w, http.StatusOK, focusResult{})
		return
	}
	// Narration failures never block navigation.
	spoken, err := s.deps.Announcer.AnnounceFocus(r.Context(), req.Label, req.Kind)
	if err != nil {
		observe.Logger(r.Context()).Debug("api: focus announcement failed", "err", err)
	}
	writeJSON(w, http.StatusOK, focusResult{Spoken: spoken && err == nil})
}

func (s *Server) handleSilence(w http.ResponseWriter, r *http.Request) {
	if s.deps.Announcer != nil {
		s.deps.Announcer.Silence()
	}
	if s.deps.Player != nil {
		s.deps.Player.Stop()
	}
	if s.deps.Quiz != nil {
		s.deps.Quiz.Silence()
	}
	w.WriteHeader(http.StatusNoContent)
}
