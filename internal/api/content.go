package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/eimkon/eimkon/internal/content"
)

type lessonView struct {
	content.Lesson
	PrevID string `json:"prevId,omitempty"`
	NextID string `json:"nextId,omitempty"`
}

type courseView struct {
	content.Course
	Lessons []content.Lesson `json:"lessons"`
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.deps.Store.Courses(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

func (s *Server) handleCourse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := s.deps.Store.Course(ctx, r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	lessons, err := s.deps.Store.Lessons(ctx, c.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, courseView{Course: c, Lessons: nonNil(lessons)})
}

func (s *Server) handleLessons(w http.ResponseWriter, r *http.Request) {
	lessons, err := s.deps.Store.Lessons(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(lessons))
}

func (s *Server) handleLesson(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l, err := s.deps.Store.Lesson(ctx, r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	view := lessonView{Lesson: l}
	siblings, err := s.deps.Store.Lessons(ctx, l.CourseID)
	if err != nil {
		fail(w, r, err)
		return
	}
	prev, next := content.Neighbours(siblings, l.ID)
	if prev != nil {
		view.PrevID = prev.ID
	}
	if next != nil {
		view.NextID = next.ID
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePutCourse(w http.ResponseWriter, r *http.Request) {
	var c content.Course
	if err := decode(r, &c); err != nil {
		fail(w, r, err)
		return
	}
	c.ID = r.PathValue("id")
	if c.Name == "" {
		fail(w, r, fmt.Errorf("%w: course name is required", errBadRequest))
		return
	}
	if err := s.deps.Store.PutCourse(r.Context(), c); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteCourse(r.Context(), r.PathValue("id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePutLesson(w http.ResponseWriter, r *http.Request) {
	var l content.Lesson
	if err := decode(r, &l); err != nil {
		fail(w, r, err)
		return
	}
	l.ID = r.PathValue("id")
	if l.CourseID == "" || l.Title == "" {
		fail(w, r, fmt.Errorf("%w: course_id and title are required", errBadRequest))
		return
	}
	if _, err := s.deps.Store.Course(r.Context(), l.CourseID); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.deps.Store.PutLesson(r.Context(), l); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleDeleteLesson(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteLesson(r.Context(), r.PathValue("id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// profile returns the current learner's profile, creating it on first use.
func (s *Server) profile(ctx context.Context) (content.Profile, error) {
	if s.deps.UserID == "" {
		return content.Profile{}, fmt.Errorf("%w: no learner configured", errUnavailable)
	}
	return s.deps.Store.EnsureProfile(ctx, content.Profile{UID: s.deps.UserID})
}

// admin rejects requests unless the current learner has the admin role.
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.profile(r.Context())
		if err != nil {
			fail(w, r, err)
			return
		}
		if p.Role != content.RoleAdmin {
			fail(w, r, errForbidden)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.profile(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type enrollRequest struct {
	CourseID string `json:"courseId"`
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	ctx := r.Context()
	if _, err := s.deps.Store.Course(ctx, req.CourseID); err != nil {
		fail(w, r, err)
		return
	}
	if _, err := s.profile(ctx); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.deps.Store.Enroll(ctx, s.deps.UserID, req.CourseID); err != nil {
		fail(w, r, err)
		return
	}
	p, err := s.deps.Store.Profile(ctx, s.deps.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.UserID == "" {
		fail(w, r, errUnavailable)
		return
	}
	progress, err := s.deps.Store.Progress(r.Context(), s.deps.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(progress))
}

type progressRequest struct {
	LessonID string `json:"lessonId"`
}

func (s *Server) handleRecordProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if s.deps.UserID == "" {
		fail(w, r, errUnavailable)
		return
	}
	ctx := r.Context()
	l, err := s.deps.Store.Lesson(ctx, req.LessonID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.deps.Store.RecordProgress(ctx, s.deps.UserID, l.CourseID, l.ID); err != nil {
		fail(w, r, err)
		return
	}
	p, err := s.deps.Store.CourseProgress(ctx, s.deps.UserID, l.CourseID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
