package content_test

import (
	"context"
	"errors"
	"testing"

	"github.com/eimkon/eimkon/internal/content"
)

func TestFallback_EmptyStoreServesCatalogue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := content.WithFallback(content.NewMemStore(), content.Builtin())

	courses, err := f.Courses(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(courses) != 3 {
		t.Errorf("Courses = %d, want 3 from catalogue", len(courses))
	}
	if c, err := f.Course(ctx, "math-101"); err != nil || c.Name != "Matematika" {
		t.Errorf("Course(math-101) = %+v, %v", c, err)
	}
	lessons, err := f.Lessons(ctx, "english-101")
	if err != nil || len(lessons) != 2 {
		t.Errorf("Lessons(english-101) = %d, %v; want 2", len(lessons), err)
	}
	if l, err := f.Lesson(ctx, "fe-l1"); err != nil || l.CourseID != "frontend-101" {
		t.Errorf("Lesson(fe-l1) = %+v, %v", l, err)
	}
	if _, err := f.Lesson(ctx, "nope"); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("Lesson(nope): got %v, want ErrNotFound", err)
	}
}

func TestFallback_StoredContentWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := content.NewMemStore()
	_ = mem.PutCourse(ctx, content.Course{ID: "own", Name: "O'z kursim"})
	_ = mem.PutLesson(ctx, content.Lesson{ID: "own-1", CourseID: "english-101", Title: "Boshqa"})
	f := content.WithFallback(mem, content.Builtin())

	courses, _ := f.Courses(ctx)
	if len(courses) != 1 || courses[0].ID != "own" {
		t.Errorf("Courses = %+v, want only stored course", courses)
	}
	lessons, _ := f.Lessons(ctx, "english-101")
	if len(lessons) != 1 || lessons[0].ID != "own-1" {
		t.Errorf("Lessons = %+v, want only stored lesson", lessons)
	}
	if c, err := f.Course(ctx, "english-101"); err != nil || c.Name != "Ingliz tili" {
		t.Errorf("Course(english-101) = %+v, %v; want catalogue course", c, err)
	}
}

func TestFallback_WritesPassThrough(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := content.NewMemStore()
	f := content.WithFallback(mem, content.Builtin())

	if err := f.RecordProgress(ctx, "u1", "math-101", "math-l1"); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.CourseProgress(ctx, "u1", "math-101"); err != nil {
		t.Errorf("progress not written to backend: %v", err)
	}
}
