package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/lims-calendar/internal/persistence"
)

// UserRepository implements persistence.UserRepository using SQLite.
type UserRepository struct {
	pool *ConnectionPool
	now  func() time.Time
}

// NewUserRepository creates a user repository over pool.
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{pool: pool, now: time.Now}
}

// CreateUser inserts a directory user.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.AccessKeyHash == "" {
		return persistence.ErrConstraintViolation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, display_name, role, access_key_hash, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			user.ID,
			user.DisplayName,
			user.Role,
			user.AccessKeyHash,
			user.CreatedAt.UTC().Format(time.RFC3339),
			user.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert user %s: %w", user.ID, MapError(err))
		}
		return nil
	})
}

// GetUser retrieves a user by id.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}

	var (
		user                 persistence.User
		createdAt, updatedAt string
	)
	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT id, display_name, role, access_key_hash, created_at, updated_at
		FROM users
		WHERE id = ?`, id,
	).Scan(&user.ID, &user.DisplayName, &user.Role, &user.AccessKeyHash, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.User{}, persistence.ErrNotFound
		}
		return persistence.User{}, fmt.Errorf("sqlite: get user %s: %w", id, MapError(err))
	}
	user.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	user.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return user, nil
}
