package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepository persists attendance records in Postgres. Partial unique
// indexes on (session_id, student_id) and (session_id, network_addr) over
// non-suspicious rows make the duplicate invariant hold under concurrent
// writers; the losing insert surfaces as ErrDuplicateRecord.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, session_id, student_id, network_addr, device_fingerprint, suspicious, marked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, rec.ID, rec.SessionID, rec.StudentID, rec.NetworkAddr, rec.DeviceFingerprint, rec.Suspicious, rec.MarkedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicateRecord
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *PostgresRepository) FindNonSuspicious(ctx context.Context, sessionID, studentID, networkAddr string, byNetwork bool) (string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT student_id, network_addr
		FROM attendance_records
		WHERE session_id = $1 AND NOT suspicious
		  AND (student_id = $2 OR ($4 AND network_addr = $3))
		LIMIT 1
	`, sessionID, studentID, networkAddr, byNetwork)
	var matchStudent, matchNetwork string
	if err := row.Scan(&matchStudent, &matchNetwork); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	if matchStudent == studentID {
		return "student", nil
	}
	return "network", nil
}

func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	return r.list(ctx, `WHERE r.session_id = $1`, sessionID)
}

func (r *PostgresRepository) ListByStudent(ctx context.Context, studentID string) ([]Record, error) {
	return r.list(ctx, `WHERE r.student_id = $1`, studentID)
}

func (r *PostgresRepository) list(ctx context.Context, where string, arg any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.session_id, r.student_id, a.name, a.external_id,
		       r.network_addr, r.device_fingerprint, r.suspicious, r.marked_at
		FROM attendance_records r
		JOIN accounts a ON a.id = r.student_id
		`+where+`
		ORDER BY r.marked_at ASC
	`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.StudentName, &rec.StudentExternalID,
			&rec.NetworkAddr, &rec.DeviceFingerprint, &rec.Suspicious, &rec.MarkedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
