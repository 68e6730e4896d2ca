package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection and applies the schema. When
// dedupByNetwork is false the per-network uniqueness index is not created;
// disabling it on an existing database requires dropping the index manually.
func NewDB(connString string, dedupByNetwork bool) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := migrate(db, dedupByNetwork); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db}, nil
}

func migrate(db *sql.DB, dedupByNetwork bool) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT UNIQUE NOT NULL,
		external_id   TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS classrooms (
		id               TEXT PRIMARY KEY,
		code             TEXT UNIQUE NOT NULL,
		name             TEXT NOT NULL,
		instructor_id    TEXT NOT NULL REFERENCES accounts(id),
		geofence_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		latitude         DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude        DOUBLE PRECISION NOT NULL DEFAULT 0,
		radius_m         DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- classroom_id is a soft reference: instructors may delete a classroom
	-- while its sessions and attendance history are retained.
	CREATE TABLE IF NOT EXISTS sessions (
		id               TEXT PRIMARY KEY,
		classroom_id     TEXT NOT NULL,
		qr_token         TEXT UNIQUE NOT NULL,
		expires_at       TIMESTAMPTZ NOT NULL,
		is_active        BOOLEAN NOT NULL DEFAULT TRUE,
		geofence_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		latitude         DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude        DOUBLE PRECISION NOT NULL DEFAULT 0,
		radius_m         DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		rotated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_classroom ON sessions(classroom_id);

	CREATE UNIQUE INDEX IF NOT EXISTS uniq_sessions_active_classroom
		ON sessions(classroom_id) WHERE is_active;

	CREATE TABLE IF NOT EXISTS attendance_records (
		id                 TEXT PRIMARY KEY,
		session_id         TEXT NOT NULL REFERENCES sessions(id),
		student_id         TEXT NOT NULL REFERENCES accounts(id),
		network_addr       TEXT NOT NULL,
		device_fingerprint TEXT NOT NULL DEFAULT '',
		suspicious         BOOLEAN NOT NULL DEFAULT FALSE,
		marked_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_records_session ON attendance_records(session_id);

	CREATE UNIQUE INDEX IF NOT EXISTS uniq_records_session_student
		ON attendance_records(session_id, student_id) WHERE NOT suspicious;
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	if dedupByNetwork {
		_, err := db.Exec(`
			CREATE UNIQUE INDEX IF NOT EXISTS uniq_records_session_network
				ON attendance_records(session_id, network_addr) WHERE NOT suspicious
		`)
		return err
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
