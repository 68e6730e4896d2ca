package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepository persists sessions in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, classroom_id, qr_token, expires_at, is_active,
	geofence_enabled, latitude, longitude, radius_m, created_at, rotated_at`

func (r *PostgresRepository) Insert(ctx context.Context, s Session) (Session, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, s.ID, s.ClassroomID, s.QRToken, s.ExpiresAt, s.Active,
		s.Geofence.Enabled, s.Geofence.Lat, s.Geofence.Lng, s.Geofence.RadiusM,
		s.CreatedAt, s.RotatedAt)
	if err != nil {
		if isActiveConflict(err) {
			return Session{}, ErrActiveExists
		}
		return Session{}, err
	}
	return s, nil
}

// isActiveConflict matches the one-active-session-per-classroom index.
func isActiveConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" &&
		pgErr.ConstraintName == "uniq_sessions_active_classroom"
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (Session, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (Session, error) {
	return r.get(ctx, `WHERE qr_token = $1`, token)
}

func (r *PostgresRepository) FindActive(ctx context.Context, classroomID string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE classroom_id = $1 AND is_active
		LIMIT 1
	`, classroomID)
	return scanSession(row)
}

func (r *PostgresRepository) get(ctx context.Context, where string, arg any) (Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions `+where, arg)
	return scanSession(row)
}

func scanSession(row *sql.Row) (Session, error) {
	var s Session
	if err := row.Scan(&s.ID, &s.ClassroomID, &s.QRToken, &s.ExpiresAt, &s.Active,
		&s.Geofence.Enabled, &s.Geofence.Lat, &s.Geofence.Lng, &s.Geofence.RadiusM,
		&s.CreatedAt, &s.RotatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return s, nil
}

func (r *PostgresRepository) SaveRotation(ctx context.Context, id, token string, expiresAt, rotatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET qr_token = $2, expires_at = $3, is_active = TRUE, rotated_at = $4
		WHERE id = $1
	`, id, token, expiresAt, rotatedAt)
	if err != nil {
		if isActiveConflict(err) {
			return ErrActiveExists
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET is_active = FALSE WHERE id = $1`, id)
	return err
}
