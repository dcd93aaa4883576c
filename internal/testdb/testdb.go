// Package testdb connects service tests to a local PostgreSQL instance and
// lays out the schema. Tests are skipped when no database is reachable.
package testdb

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		aggregate_id UUID NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_data JSONB NOT NULL,
		version INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (aggregate_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS certification_types (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		level TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS certification_criteria (
		id UUID PRIMARY KEY,
		type_id UUID NOT NULL REFERENCES certification_types (id),
		kind TEXT NOT NULL,
		course_id UUID,
		threshold NUMERIC NOT NULL DEFAULT 0,
		description TEXT NOT NULL,
		position INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS certifications (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		dog_id UUID NOT NULL,
		type_id UUID NOT NULL REFERENCES certification_types (id),
		state TEXT NOT NULL,
		completion_pct INT NOT NULL DEFAULT 0,
		issued_at TIMESTAMPTZ,
		artifact_handle TEXT,
		version INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, dog_id, type_id)
	)`,
	`CREATE TABLE IF NOT EXISTS course_completions (
		user_id UUID NOT NULL,
		dog_id UUID NOT NULL,
		course_id UUID NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, dog_id, course_id)
	)`,
	`CREATE TABLE IF NOT EXISTS quiz_scores (
		user_id UUID NOT NULL,
		dog_id UUID NOT NULL,
		course_id UUID NOT NULL,
		best_score NUMERIC NOT NULL,
		PRIMARY KEY (user_id, dog_id, course_id)
	)`,
	`CREATE TABLE IF NOT EXISTS training_days (
		user_id UUID NOT NULL,
		dog_id UUID NOT NULL,
		day DATE NOT NULL,
		PRIMARY KEY (user_id, dog_id, day)
	)`,
	`CREATE TABLE IF NOT EXISTS issuance_log (
		certificate_id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		certification_id UUID NOT NULL UNIQUE,
		type_name TEXT NOT NULL,
		level TEXT NOT NULL,
		holder_name TEXT NOT NULL,
		dog_name TEXT,
		storage_handle TEXT,
		issued_at TIMESTAMPTZ NOT NULL
	)`,
}

// Connect opens the test database and ensures the schema exists. Tests keep
// their data disjoint through fresh UUIDs rather than truncation, so packages
// can run in parallel against the same database.
func Connect(t testing.TB) *sql.DB {
	t.Helper()

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		envOr("PGHOST", "localhost"),
		envOr("PGPORT", "5432"),
		envOr("PGUSER", "user"),
		envOr("PGPASSWORD", "password"),
		envOr("PGDATABASE", "testdb"),
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to create schema: %v", err)
		}
	}

	return db
}

func envOr(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
