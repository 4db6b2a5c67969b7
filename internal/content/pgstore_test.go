package content_test

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eimkon/eimkon/internal/content"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if EIMKON_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("EIMKON_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("EIMKON_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newPGStore(t *testing.T) *content.PGStore {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	for _, table := range []string{"progress", "profiles", "lessons", "courses"} {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			t.Fatalf("drop %s: %v", table, err)
		}
	}
	pool.Close()

	s, err := content.NewPGStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPGStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestPGStore(t *testing.T) {
	s := newPGStore(t)
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := content.Import(ctx, s, content.Builtin()); err != nil {
		t.Fatalf("Import: %v", err)
	}

	lessons, err := s.Lessons(ctx, "english-101")
	if err != nil {
		t.Fatal(err)
	}
	if len(lessons) != 2 || lessons[0].ID != "eng-l1" {
		t.Fatalf("Lessons = %+v", lessons)
	}
	if len(lessons[0].Content.Sections) != 2 {
		t.Errorf("sections not round-tripped: %+v", lessons[0].Content)
	}
	if _, err := s.Course(ctx, "nope"); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("Course(nope): got %v, want ErrNotFound", err)
	}

	p, err := s.EnsureProfile(ctx, content.Profile{UID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if p.DisplayName != content.DefaultDisplayName || p.Role != content.RoleStudent {
		t.Errorf("profile defaults = %+v", p)
	}
	for range 2 {
		if err := s.Enroll(ctx, "u1", "math-101"); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Enroll(ctx, "ghost", "math-101"); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("Enroll(ghost): got %v, want ErrNotFound", err)
	}
	p, _ = s.Profile(ctx, "u1")
	if !slices.Equal(p.EnrolledCourseIDs, []string{"math-101"}) {
		t.Errorf("EnrolledCourseIDs = %v", p.EnrolledCourseIDs)
	}
	if p, err = s.SetRole(ctx, "u1", content.RoleAdmin); err != nil || p.Role != content.RoleAdmin {
		t.Errorf("SetRole: role = %q, err = %v", p.Role, err)
	}

	for _, id := range []string{"eng-l1", "eng-l2", "eng-l1"} {
		if err := s.RecordProgress(ctx, "u1", "english-101", id); err != nil {
			t.Fatal(err)
		}
	}
	prog, err := s.CourseProgress(ctx, "u1", "english-101")
	if err != nil {
		t.Fatal(err)
	}
	if prog.LastLessonID != "eng-l1" || !slices.Equal(prog.CompletedLessonIDs, []string{"eng-l1", "eng-l2"}) {
		t.Errorf("progress = %+v", prog)
	}
}
