package content

import (
	"context"
	"errors"
)

var _ Store = (*Fallback)(nil)

// Fallback wraps a [Store] and answers catalogue reads from a built-in
// [Catalogue] whenever the backend has nothing to offer: an empty course
// list, an empty lesson list for a known catalogue course, or a missing
// course or lesson. Writes and profile operations pass straight through.
type Fallback struct {
	Store
	catalogue *Catalogue
}

// WithFallback returns store wrapped so that catalogue reads fall back to c.
func WithFallback(store Store, c *Catalogue) *Fallback {
	return &Fallback{Store: store, catalogue: c}
}

// Courses implements [Store.Courses].
func (f *Fallback) Courses(ctx context.Context) ([]Course, error) {
	courses, err := f.Store.Courses(ctx)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return append([]Course(nil), f.catalogue.Courses...), nil
	}
	return courses, nil
}

// Course implements [Store.Course].
func (f *Fallback) Course(ctx context.Context, id string) (Course, error) {
	c, err := f.Store.Course(ctx, id)
	if errors.Is(err, ErrNotFound) {
		if fc, ok := f.catalogue.Course(id); ok {
			return fc, nil
		}
	}
	return c, err
}

// Lessons implements [Store.Lessons].
func (f *Fallback) Lessons(ctx context.Context, courseID string) ([]Lesson, error) {
	lessons, err := f.Store.Lessons(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(lessons) == 0 {
		return f.catalogue.LessonsOf(courseID), nil
	}
	return lessons, nil
}

// Lesson implements [Store.Lesson].
func (f *Fallback) Lesson(ctx context.Context, id string) (Lesson, error) {
	l, err := f.Store.Lesson(ctx, id)
	if errors.Is(err, ErrNotFound) {
		if fl, ok := f.catalogue.Lesson(id); ok {
			return fl, nil
		}
	}
	return l, err
}
