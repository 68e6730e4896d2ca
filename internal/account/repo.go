package account

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepository persists accounts in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, a Account) (Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, email, external_id, role, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, a.ID, a.Name, a.Email, a.ExternalID, a.Role, a.PasswordHash, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrEmailTaken
		}
		return Account{}, err
	}
	return a, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (Account, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	return r.get(ctx, `WHERE email = $1`, email)
}

func (r *PostgresRepository) get(ctx context.Context, where string, arg any) (Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, external_id, role, password_hash, created_at
		FROM accounts `+where, arg)
	var a Account
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.ExternalID, &a.Role, &a.PasswordHash, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}
