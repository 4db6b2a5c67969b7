package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*PGStore)(nil)

// PGStore is a PostgreSQL-backed [Store]. All methods are safe for
// concurrent use.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to the database at dsn, verifies the connection and
// runs [Migrate].
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("content store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("content store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("content store: migrate: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

// Ping implements [Store.Ping].
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureProfile implements [Store.EnsureProfile]. Creation is a single
// INSERT .. ON CONFLICT DO NOTHING so concurrent first logins agree on one
// profile.
func (s *PGStore) EnsureProfile(ctx context.Context, p Profile) (Profile, error) {
	p = newProfile(p)
	const q = `
		INSERT INTO profiles (uid, email, display_name, photo_url, role, enrolled_course_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, '{}', now())
		ON CONFLICT (uid) DO NOTHING`

	if _, err := s.pool.Exec(ctx, q, p.UID, p.Email, p.DisplayName, p.PhotoURL, string(p.Role)); err != nil {
		return Profile{}, fmt.Errorf("content store: ensure profile: %w", err)
	}
	return s.Profile(ctx, p.UID)
}

// Profile implements [Store.Profile].
func (s *PGStore) Profile(ctx context.Context, uid string) (Profile, error) {
	const q = `
		SELECT uid, email, display_name, photo_url, role, enrolled_course_ids, created_at, updated_at
		FROM   profiles
		WHERE  uid = $1`

	var (
		p       Profile
		role    string
		updated *time.Time
	)
	err := s.pool.QueryRow(ctx, q, uid).Scan(
		&p.UID, &p.Email, &p.DisplayName, &p.PhotoURL, &role,
		&p.EnrolledCourseIDs, &p.CreatedAt, &updated,
	)
	if isNoRows(err) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("content store: get profile: %w", err)
	}
	p.Role = Role(role)
	if updated != nil {
		p.UpdatedAt = *updated
	}
	if p.EnrolledCourseIDs == nil {
		p.EnrolledCourseIDs = []string{}
	}
	return p, nil
}

// Courses implements [Store.Courses]. Courses are returned sorted by ID.
func (s *PGStore) Courses(ctx context.Context) ([]Course, error) {
	const q = `
		SELECT id, name, description, icon, color_hex, level_tag
		FROM   courses
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("content store: list courses: %w", err)
	}
	courses, err := pgx.CollectRows(rows, scanCourse)
	if err != nil {
		return nil, fmt.Errorf("content store: list courses: %w", err)
	}
	return courses, nil
}

// Course implements [Store.Course].
func (s *PGStore) Course(ctx context.Context, id string) (Course, error) {
	const q = `
		SELECT id, name, description, icon, color_hex, level_tag
		FROM   courses
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return Course{}, fmt.Errorf("content store: get course: %w", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCourse)
	if isNoRows(err) {
		return Course{}, ErrNotFound
	}
	if err != nil {
		return Course{}, fmt.Errorf("content store: get course: %w", err)
	}
	return c, nil
}

// Lessons implements [Store.Lessons].
func (s *PGStore) Lessons(ctx context.Context, courseID string) ([]Lesson, error) {
	const q = `
		SELECT id, course_id, title, content, duration, level, order_index
		FROM   lessons
		WHERE  course_id = $1
		ORDER  BY order_index, id`

	rows, err := s.pool.Query(ctx, q, courseID)
	if err != nil {
		return nil, fmt.Errorf("content store: list lessons: %w", err)
	}
	lessons, err := pgx.CollectRows(rows, scanLesson)
	if err != nil {
		return nil, fmt.Errorf("content store: list lessons: %w", err)
	}
	return lessons, nil
}

// Lesson implements [Store.Lesson].
func (s *PGStore) Lesson(ctx context.Context, id string) (Lesson, error) {
	const q = `
		SELECT id, course_id, title, content, duration, level, order_index
		FROM   lessons
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return Lesson{}, fmt.Errorf("content store: get lesson: %w", err)
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanLesson)
	if isNoRows(err) {
		return Lesson{}, ErrNotFound
	}
	if err != nil {
		return Lesson{}, fmt.Errorf("content store: get lesson: %w", err)
	}
	return l, nil
}

// SetRole implements [Store.SetRole].
func (s *PGStore) SetRole(ctx context.Context, uid string, role Role) (Profile, error) {
	const q = `UPDATE profiles SET role = $2, updated_at = now() WHERE uid = $1`

	tag, err := s.pool.Exec(ctx, q, uid, string(role))
	if err != nil {
		return Profile{}, fmt.Errorf("content store: set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Profile{}, ErrNotFound
	}
	return s.Profile(ctx, uid)
}

// Enroll implements [Store.Enroll].
func (s *PGStore) Enroll(ctx context.Context, uid, courseID string) error {
	const q = `
		UPDATE profiles
		SET    enrolled_course_ids = CASE
		           WHEN $2 = ANY(enrolled_course_ids) THEN enrolled_course_ids
		           ELSE array_append(enrolled_course_ids, $2)
		       END,
		       updated_at = now()
		WHERE  uid = $1`

	tag, err := s.pool.Exec(ctx, q, uid, courseID)
	if err != nil {
		return fmt.Errorf("content store: enroll: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Progress implements [Store.Progress]. Records are sorted by course ID.
func (s *PGStore) Progress(ctx context.Context, uid string) ([]Progress, error) {
	const q = `
		SELECT course_id, last_lesson_id, completed_lesson_ids, updated_at
		FROM   progress
		WHERE  uid = $1
		ORDER  BY course_id`

	rows, err := s.pool.Query(ctx, q, uid)
	if err != nil {
		return nil, fmt.Errorf("content store: list progress: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanProgress)
	if err != nil {
		return nil, fmt.Errorf("content store: list progress: %w", err)
	}
	return out, nil
}

// CourseProgress implements [Store.CourseProgress].
func (s *PGStore) CourseProgress(ctx context.Context, uid, courseID string) (Progress, error) {
	const q = `
		SELECT course_id, last_lesson_id, completed_lesson_ids, updated_at
		FROM   progress
		WHERE  uid = $1 AND course_id = $2`

	rows, err := s.pool.Query(ctx, q, uid, courseID)
	if err != nil {
		return Progress{}, fmt.Errorf("content store: get progress: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProgress)
	if isNoRows(err) {
		return Progress{}, ErrNotFound
	}
	if err != nil {
		return Progress{}, fmt.Errorf("content store: get progress: %w", err)
	}
	return p, nil
}

// RecordProgress implements [Store.RecordProgress].
func (s *PGStore) RecordProgress(ctx context.Context, uid, courseID, lessonID string) error {
	const q = `
		INSERT INTO progress (uid, course_id, last_lesson_id, completed_lesson_ids, updated_at)
		VALUES ($1, $2, $3, ARRAY[$3]::text[], now())
		ON CONFLICT (uid, course_id) DO UPDATE SET
		    last_lesson_id       = EXCLUDED.last_lesson_id,
		    completed_lesson_ids = CASE
		        WHEN $3 = ANY(progress.completed_lesson_ids) THEN progress.completed_lesson_ids
		        ELSE array_append(progress.completed_lesson_ids, $3)
		    END,
		    updated_at           = now()`

	if _, err := s.pool.Exec(ctx, q, uid, courseID, lessonID); err != nil {
		return fmt.Errorf("content store: record progress: %w", err)
	}
	return nil
}

// PutCourse implements [Store.PutCourse].
func (s *PGStore) PutCourse(ctx context.Context, c Course) error {
	const q = `
		INSERT INTO courses (id, name, description, icon, color_hex, level_tag, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
		    name        = EXCLUDED.name,
		    description = EXCLUDED.description,
		    icon        = EXCLUDED.icon,
		    color_hex   = EXCLUDED.color_hex,
		    level_tag   = EXCLUDED.level_tag,
		    updated_at  = now()`

	_, err := s.pool.Exec(ctx, q, c.ID, c.Name, c.Description, c.Icon, c.ColorHex, c.LevelTag)
	if err != nil {
		return fmt.Errorf("content store: put course: %w", err)
	}
	return nil
}

// DeleteCourse implements [Store.DeleteCourse].
func (s *PGStore) DeleteCourse(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("content store: delete course: %w", err)
	}
	return nil
}

// PutLesson implements [Store.PutLesson].
func (s *PGStore) PutLesson(ctx context.Context, l Lesson) error {
	body, err := json.Marshal(l.Content)
	if err != nil {
		return fmt.Errorf("content store: marshal lesson content: %w", err)
	}

	const q = `
		INSERT INTO lessons (id, course_id, title, content, duration, level, order_index, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
		    course_id   = EXCLUDED.course_id,
		    title       = EXCLUDED.title,
		    content     = EXCLUDED.content,
		    duration    = EXCLUDED.duration,
		    level       = EXCLUDED.level,
		    order_index = EXCLUDED.order_index,
		    updated_at  = now()`

	_, err = s.pool.Exec(ctx, q, l.ID, l.CourseID, l.Title, body, l.Duration, l.Level, l.OrderIndex)
	if err != nil {
		return fmt.Errorf("content store: put lesson: %w", err)
	}
	return nil
}

// DeleteLesson implements [Store.DeleteLesson].
func (s *PGStore) DeleteLesson(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM lessons WHERE id = $1`, id); err != nil {
		return fmt.Errorf("content store: delete lesson: %w", err)
	}
	return nil
}

func scanCourse(row pgx.CollectableRow) (Course, error) {
	var c Course
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Icon, &c.ColorHex, &c.LevelTag)
	return c, err
}

func scanLesson(row pgx.CollectableRow) (Lesson, error) {
	var (
		l    Lesson
		body []byte
	)
	if err := row.Scan(&l.ID, &l.CourseID, &l.Title, &body, &l.Duration, &l.Level, &l.OrderIndex); err != nil {
		return Lesson{}, err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &l.Content); err != nil {
			return Lesson{}, fmt.Errorf("unmarshal lesson content: %w", err)
		}
	}
	return l, nil
}

func scanProgress(row pgx.CollectableRow) (Progress, error) {
	var p Progress
	if err := row.Scan(&p.CourseID, &p.LastLessonID, &p.CompletedLessonIDs, &p.UpdatedAt); err != nil {
		return Progress{}, err
	}
	p.ID = p.CourseID
	return p, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
