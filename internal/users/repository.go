package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Store is the credential store contract consumed by the session service,
// the access guard and the profile handlers.
type Store interface {
	Create(ctx context.Context, input NewUser) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByEmailOrName(ctx context.Context, email, name string) (User, error)
	Update(ctx context.Context, id string, input ProfileUpdate) (User, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectColumns = `id, name, email, password_hash, role, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, input NewUser) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = DefaultRole
	}

	now := time.Now().UTC()
	user := User{
		ID:           id.String(),
		Name:         input.Name,
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: input.PasswordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role, now)
	if err != nil {
		if dup := duplicateFromError(err); dup != nil {
			return User{}, dup
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row, "query user by id")
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row, "query user by email")
}

// FindByEmailOrName prefers the email match when two different rows collide.
func (r *Repository) FindByEmailOrName(ctx context.Context, email, name string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM users
		WHERE email = $1 OR name = $2
		ORDER BY (email = $1) DESC
		LIMIT 1
	`, strings.ToLower(strings.TrimSpace(email)), name)
	return scanUser(row, "query user by email or name")
}

func (r *Repository) Update(ctx context.Context, id string, input ProfileUpdate) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}

	var email any
	if input.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	var name any
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET name = COALESCE($2, name), email = COALESCE($3, email), updated_at = $4
		WHERE id = $1
		RETURNING `+selectColumns, id, name, email, time.Now().UTC())

	user, err := scanUser(row, "update user")
	if err != nil {
		if dup := duplicateFromError(err); dup != nil {
			return User{}, dup
		}
		return User{}, err
	}

	return user, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}

	return exists, nil
}

func scanUser(row *sql.Row, op string) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func duplicateFromError(err error) *DuplicateError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}

	switch {
	case strings.Contains(pgErr.ConstraintName, "name"):
		return &DuplicateError{Field: "name"}
	default:
		return &DuplicateError{Field: "email"}
	}
}
