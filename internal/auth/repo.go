package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence operations for admin accounts.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*AdminUser, error)
	FindByID(ctx context.Context, id int64) (*AdminUser, error)
	Create(ctx context.Context, email, name, passwordHash string) (*AdminUser, error)
	SetPassword(ctx context.Context, id int64, passwordHash string) error
	TouchLogin(ctx context.Context, id int64, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const adminColumns = `id, email, name, password_hash, is_active, last_login_at, created_at, updated_at`

func scanAdmin(row pgx.Row) (*AdminUser, error) {
	var u AdminUser
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsActive, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindByEmail fetches an admin by email, case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*AdminUser, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM admin_users WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
	return scanAdmin(row)
}

// FindByID fetches an admin by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*AdminUser, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM admin_users WHERE id = $1`, id)
	return scanAdmin(row)
}

// Create inserts an active admin.
func (r *PGRepository) Create(ctx context.Context, email, name, passwordHash string) (*AdminUser, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO admin_users (email, name, password_hash, is_active)
VALUES ($1, $2, $3, TRUE)
RETURNING `+adminColumns, strings.TrimSpace(email), name, passwordHash)
	user, err := scanAdmin(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, ErrEmailTaken
	}
	return user, err
}

// SetPassword replaces the stored hash.
func (r *PGRepository) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE admin_users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLogin records a successful sign in.
func (r *PGRepository) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE admin_users SET last_login_at = $2 WHERE id = $1`, id, at)
	return err
}

var _ Repository = (*PGRepository)(nil)
