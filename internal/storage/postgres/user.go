package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopflow/shopflow/internal/domain/user"
)

const (
	userColumns = `id, username, password_hash, email, full_name, phone, address,
		role, active, created_at, updated_at, last_login`

	createUserSQL = `INSERT INTO users (username, password_hash, email, full_name, phone, address,
		role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id`

	getUserByUsernameSQL = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	getUserByIDSQL       = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	updateProfileSQL = `UPDATE users
		SET full_name = $2, email = $3, phone = $4, address = $5, updated_at = $6
		WHERE username = $1
		RETURNING ` + userColumns

	touchLoginSQL = `UPDATE users SET last_login = $2 WHERE id = $1`
)

const uniqueViolation = "23505"

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a new user and sets its ID. A duplicate username yields
// user.ErrUsernameTaken.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	err := r.pool.QueryRow(ctx, createUserSQL,
		u.Username, u.PasswordHash, u.Email, u.FullName, u.Phone, u.Address,
		u.Role, u.Active, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return user.ErrUsernameTaken
		}
		return fmt.Errorf("creating user %q: %w", u.Username, err)
	}
	u.UpdatedAt = u.CreatedAt
	return nil
}

// GetByUsername returns the user or user.ErrNotFound.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	return r.getOne(ctx, getUserByUsernameSQL, username)
}

// GetByID returns the user or user.ErrNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	return r.getOne(ctx, getUserByIDSQL, id)
}

// UpdateProfile overwrites the contact fields of the user.
func (r *UserRepository) UpdateProfile(ctx context.Context, username string, p user.Profile, now time.Time) (*user.User, error) {
	return r.getOne(ctx, updateProfileSQL, username, p.FullName, p.Email, p.Phone, p.Address, now)
}

// TouchLogin records a successful login.
func (r *UserRepository) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.pool.Exec(ctx, touchLoginSQL, id, at); err != nil {
		return fmt.Errorf("updating last login of user %d: %w", id, err)
	}
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, sql string, args ...any) (*user.User, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.FullName, &u.Phone, &u.Address,
		&u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin,
	)
	return u, err
}
