// Package content holds the course catalogue, lessons, learner profiles and
// per-course progress behind a single [Store] interface.
//
// Two backends are provided: [MemStore] for tests and single-user desktop
// installs, and [PGStore] backed by PostgreSQL. [Fallback] wraps either one
// and substitutes the built-in catalogue when the backend has no courses or
// lessons yet.
package content

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested course, lesson, profile or
// progress record does not exist.
var ErrNotFound = errors.New("content: not found")

// Store is the content and profile collaborator of the tutor.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// EnsureProfile returns the stored profile for p.UID, creating it from p
	// when none exists. New profiles get [RoleStudent], an empty enrolment
	// list and [DefaultDisplayName] when p.DisplayName is empty.
	EnsureProfile(ctx context.Context, p Profile) (Profile, error)

	// Profile returns the profile for uid or [ErrNotFound].
	Profile(ctx context.Context, uid string) (Profile, error)

	// Courses returns every course. Order is stable but unspecified.
	Courses(ctx context.Context) ([]Course, error)

	// Course returns the course with id or [ErrNotFound].
	Course(ctx context.Context, id string) (Course, error)

	// Lessons returns the lessons of courseID sorted by OrderIndex.
	Lessons(ctx context.Context, courseID string) ([]Lesson, error)

	// Lesson returns the lesson with id or [ErrNotFound].
	Lesson(ctx context.Context, id string) (Lesson, error)

	// SetRole changes the role of uid and returns the updated profile.
	// Returns [ErrNotFound] if the profile does not exist.
	SetRole(ctx context.Context, uid string, role Role) (Profile, error)

	// Enroll adds courseID to the enrolment list of uid. Enrolling twice is
	// a no-op. Returns [ErrNotFound] if the profile does not exist.
	Enroll(ctx context.Context, uid, courseID string) error

	// Progress returns every progress record of uid.
	Progress(ctx context.Context, uid string) ([]Progress, error)

	// CourseProgress returns the progress of uid in courseID or [ErrNotFound].
	CourseProgress(ctx context.Context, uid, courseID string) (Progress, error)

	// RecordProgress marks lessonID as the last opened lesson of courseID and
	// appends it to the completed list if it is not already there.
	RecordProgress(ctx context.Context, uid, courseID, lessonID string) error

	// PutCourse creates or replaces a course.
	PutCourse(ctx context.Context, c Course) error

	// DeleteCourse removes a course. Deleting a missing course is a no-op.
	DeleteCourse(ctx context.Context, id string) error

	// PutLesson creates or replaces a lesson.
	PutLesson(ctx context.Context, l Lesson) error

	// DeleteLesson removes a lesson. Deleting a missing lesson is a no-op.
	DeleteLesson(ctx context.Context, id string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// newProfile fills the defaults of a freshly created profile.
func newProfile(p Profile) Profile {
	if p.DisplayName == "" {
		p.DisplayName = DefaultDisplayName
	}
	p.Role = RoleStudent
	p.EnrolledCourseIDs = []string{}
	return p
}
