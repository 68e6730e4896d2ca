package classroom

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PostgresRepository persists classrooms in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, c Classroom) (Classroom, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO classrooms (id, code, name, instructor_id, geofence_enabled, latitude, longitude, radius_m, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, c.ID, c.Code, c.Name, c.InstructorID, c.Geofence.Enabled, c.Geofence.Lat, c.Geofence.Lng, c.Geofence.RadiusM, c.CreatedAt)
	if err != nil {
		return Classroom{}, err
	}
	return c, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (Classroom, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (Classroom, error) {
	return r.get(ctx, `WHERE code = $1`, code)
}

func (r *PostgresRepository) get(ctx context.Context, where string, arg any) (Classroom, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, code, name, instructor_id, geofence_enabled, latitude, longitude, radius_m, created_at
		FROM classrooms `+where, arg)
	var c Classroom
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.InstructorID,
		&c.Geofence.Enabled, &c.Geofence.Lat, &c.Geofence.Lng, &c.Geofence.RadiusM, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Classroom{}, ErrNotFound
		}
		return Classroom{}, err
	}
	return c, nil
}

func (r *PostgresRepository) ListByInstructor(ctx context.Context, instructorID string) ([]Classroom, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, name, instructor_id, geofence_enabled, latitude, longitude, radius_m, created_at
		FROM classrooms WHERE instructor_id = $1 ORDER BY name
	`, instructorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Classroom
	for rows.Next() {
		var c Classroom
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.InstructorID,
			&c.Geofence.Enabled, &c.Geofence.Lat, &c.Geofence.Lng, &c.Geofence.RadiusM, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, c Classroom) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE classrooms
		SET name = $2, geofence_enabled = $3, latitude = $4, longitude = $5, radius_m = $6
		WHERE id = $1
	`, c.ID, c.Name, c.Geofence.Enabled, c.Geofence.Lat, c.Geofence.Lng, c.Geofence.RadiusM)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM classrooms WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
