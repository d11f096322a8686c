package db

import (
	"context"
	"database/sql"
	"fmt"
)

// The DDL sticks to the dialect overlap of Postgres and SQLite: TEXT ids
// (UUID strings), TEXT columns for JSON payloads, and BIGINT unix-millisecond
// timestamps so ordering compares identically on both drivers. Statements are
// executed one by one because the pgx extended protocol rejects batched DDL.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sections (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL REFERENCES courses(id),
		slug TEXT NOT NULL,
		title TEXT NOT NULL,
		order_index INTEGER NOT NULL DEFAULT 0,
		test_questions_count INTEGER NOT NULL DEFAULT 6,
		pass_percent INTEGER NOT NULL DEFAULT 60,
		is_free BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL,
		UNIQUE (course_id, slug)
	)`,
	`CREATE TABLE IF NOT EXISTS islands (
		id TEXT PRIMARY KEY,
		section_id TEXT NOT NULL REFERENCES sections(id),
		title TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'normal',
		order_index INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exercises (
		id TEXT PRIMARY KEY,
		answer_type TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		points_max INTEGER NOT NULL DEFAULT 1,
		hint TEXT NOT NULL DEFAULT '',
		explanation TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exercise_answer_keys (
		exercise_id TEXT PRIMARY KEY REFERENCES exercises(id),
		answer_key TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS island_items (
		id TEXT PRIMARY KEY,
		island_id TEXT NOT NULL REFERENCES islands(id),
		item_type TEXT NOT NULL,
		order_index INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL DEFAULT '',
		youtube_url TEXT NOT NULL DEFAULT '',
		exercise_id TEXT REFERENCES exercises(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_island_items_island ON island_items (island_id, order_index)`,
	`CREATE TABLE IF NOT EXISTS exercise_attempts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		exercise_id TEXT NOT NULL REFERENCES exercises(id),
		island_id TEXT NOT NULL REFERENCES islands(id),
		answer TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL,
		points_awarded INTEGER NOT NULL,
		time_spent_sec INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_user_island ON exercise_attempts (user_id, island_id, exercise_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS island_item_progress (
		user_id TEXT NOT NULL,
		island_item_id TEXT NOT NULL REFERENCES island_items(id),
		is_completed BOOLEAN NOT NULL DEFAULT FALSE,
		points_earned INTEGER NOT NULL DEFAULT 0,
		completed_at BIGINT,
		last_answer TEXT,
		PRIMARY KEY (user_id, island_item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS section_test_attempts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		section_id TEXT NOT NULL REFERENCES sections(id),
		score_percent INTEGER NOT NULL,
		passed BOOLEAN NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_test_attempts_user_section ON section_test_attempts (user_id, section_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS section_progress (
		user_id TEXT NOT NULL,
		section_id TEXT NOT NULL REFERENCES sections(id),
		best_test_score_percent INTEGER NOT NULL DEFAULT 0,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		points_done INTEGER NOT NULL DEFAULT 0,
		points_catchup INTEGER NOT NULL DEFAULT 0,
		points_total INTEGER NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (user_id, section_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_courses (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		course_id TEXT NOT NULL REFERENCES courses(id),
		created_at BIGINT NOT NULL,
		UNIQUE (email, course_id)
	)`,
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
