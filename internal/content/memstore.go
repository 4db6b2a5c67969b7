package content

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
type MemStore struct {
	mu       sync.RWMutex
	courses  map[string]Course
	lessons  map[string]Lesson
	profiles map[string]Profile
	progress map[string]map[string]Progress // uid -> course id -> progress
	now      func() time.Time
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		courses:  make(map[string]Course),
		lessons:  make(map[string]Lesson),
		profiles: make(map[string]Profile),
		progress: make(map[string]map[string]Progress),
		now:      time.Now,
	}
}

// EnsureProfile implements [Store.EnsureProfile].
func (s *MemStore) EnsureProfile(_ context.Context, p Profile) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.profiles[p.UID]; ok {
		return cloneProfile(existing), nil
	}
	p = newProfile(p)
	p.CreatedAt = s.now()
	s.profiles[p.UID] = p
	return cloneProfile(p), nil
}

// Profile implements [Store.Profile].
func (s *MemStore) Profile(_ context.Context, uid string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[uid]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return cloneProfile(p), nil
}

// SetRole implements [Store.SetRole].
func (s *MemStore) SetRole(_ context.Context, uid string, role Role) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[uid]
	if !ok {
		return Profile{}, ErrNotFound
	}
	p.Role = role
	p.UpdatedAt = s.now()
	s.profiles[uid] = p
	return cloneProfile(p), nil
}

// Courses implements [Store.Courses]. Courses are returned sorted by ID.
func (s *MemStore) Courses(_ context.Context) ([]Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Course, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Course) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// Course implements [Store.Course].
func (s *MemStore) Course(_ context.Context, id string) (Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[id]
	if !ok {
		return Course{}, ErrNotFound
	}
	return c, nil
}

// Lessons implements [Store.Lessons].
func (s *MemStore) Lessons(_ context.Context, courseID string) ([]Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Lesson
	for _, l := range s.lessons {
		if l.CourseID == courseID {
			out = append(out, l)
		}
	}
	sortLessons(out)
	return out, nil
}

// Lesson implements [Store.Lesson].
func (s *MemStore) Lesson(_ context.Context, id string) (Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lessons[id]
	if !ok {
		return Lesson{}, ErrNotFound
	}
	return l, nil
}

// Enroll implements [Store.Enroll].
func (s *MemStore) Enroll(_ context.Context, uid, courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[uid]
	if !ok {
		return ErrNotFound
	}
	if !slices.Contains(p.EnrolledCourseIDs, courseID) {
		p.EnrolledCourseIDs = append(slices.Clone(p.EnrolledCourseIDs), courseID)
	}
	p.UpdatedAt = s.now()
	s.profiles[uid] = p
	return nil
}

// Progress implements [Store.Progress]. Records are sorted by course ID.
func (s *MemStore) Progress(_ context.Context, uid string) ([]Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Progress, 0, len(s.progress[uid]))
	for _, p := range s.progress[uid] {
		p.CompletedLessonIDs = slices.Clone(p.CompletedLessonIDs)
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Progress) int { return cmp.Compare(a.CourseID, b.CourseID) })
	return out, nil
}

// CourseProgress implements [Store.CourseProgress].
func (s *MemStore) CourseProgress(_ context.Context, uid, courseID string) (Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[uid][courseID]
	if !ok {
		return Progress{}, ErrNotFound
	}
	p.CompletedLessonIDs = slices.Clone(p.CompletedLessonIDs)
	return p, nil
}

// RecordProgress implements [Store.RecordProgress].
func (s *MemStore) RecordProgress(_ context.Context, uid, courseID, lessonID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCourse, ok := s.progress[uid]
	if !ok {
		byCourse = make(map[string]Progress)
		s.progress[uid] = byCourse
	}
	p, ok := byCourse[courseID]
	if !ok {
		p = Progress{ID: courseID, CourseID: courseID}
	}
	p.LastLessonID = lessonID
	if !slices.Contains(p.CompletedLessonIDs, lessonID) {
		p.CompletedLessonIDs = append(slices.Clone(p.CompletedLessonIDs), lessonID)
	}
	p.UpdatedAt = s.now()
	byCourse[courseID] = p
	return nil
}

// PutCourse implements [Store.PutCourse].
func (s *MemStore) PutCourse(_ context.Context, c Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[c.ID] = c
	return nil
}

// DeleteCourse implements [Store.DeleteCourse].
func (s *MemStore) DeleteCourse(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.courses, id)
	return nil
}

// PutLesson implements [Store.PutLesson].
func (s *MemStore) PutLesson(_ context.Context, l Lesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lessons[l.ID] = l
	return nil
}

// DeleteLesson implements [Store.DeleteLesson].
func (s *MemStore) DeleteLesson(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lessons, id)
	return nil
}

// Ping implements [Store.Ping]. It always succeeds.
func (s *MemStore) Ping(context.Context) error { return nil }

func cloneProfile(p Profile) Profile {
	p.EnrolledCourseIDs = slices.Clone(p.EnrolledCourseIDs)
	if p.EnrolledCourseIDs == nil {
		p.EnrolledCourseIDs = []string{}
	}
	return p
}

func sortLessons(lessons []Lesson) {
	slices.SortStableFunc(lessons, func(a, b Lesson) int {
		if c := cmp.Compare(a.OrderIndex, b.OrderIndex); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
