package content

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCatalogue = `
CREATE TABLE IF NOT EXISTS courses (
    id          TEXT         PRIMARY KEY,
    name        TEXT         NOT NULL,
    description TEXT         NOT NULL DEFAULT '',
    icon        TEXT         NOT NULL DEFAULT '',
    color_hex   TEXT         NOT NULL DEFAULT '',
    level_tag   TEXT         NOT NULL DEFAULT '',
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lessons (
    id          TEXT         PRIMARY KEY,
    course_id   TEXT         NOT NULL,
    title       TEXT         NOT NULL,
    content     JSONB        NOT NULL DEFAULT '{}',
    duration    TEXT         NOT NULL DEFAULT '',
    level       TEXT         NOT NULL DEFAULT '',
    order_index INTEGER      NOT NULL DEFAULT 0,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_lessons_course_order
    ON lessons (course_id, order_index);
`

const ddlLearners = `
CREATE TABLE IF NOT EXISTS profiles (
    uid                 TEXT         PRIMARY KEY,
    email               TEXT         NOT NULL DEFAULT '',
    display_name        TEXT         NOT NULL DEFAULT '',
    photo_url           TEXT         NOT NULL DEFAULT '',
    role                TEXT         NOT NULL DEFAULT 'student',
    enrolled_course_ids TEXT[]       NOT NULL DEFAULT '{}',
    created_at          TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS progress (
    uid                  TEXT         NOT NULL,
    course_id            TEXT         NOT NULL,
    last_lesson_id       TEXT         NOT NULL,
    completed_lesson_ids TEXT[]       NOT NULL DEFAULT '{}',
    updated_at           TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (uid, course_id)
);
`

// Migrate creates the content tables if they do not exist. It is safe to
// call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlCatalogue, ddlLearners} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("content migrate: %w", err)
		}
	}
	return nil
}
