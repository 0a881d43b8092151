package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opstrail/changetrack/internal/models"
)

// UserRepository reads user rows. Writes go through tracked sessions so they
// land in the audit trail.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const selectUserColumns = `id, email, password_hash, full_name, role, active, last_login, created_at, updated_at`

// FindByEmail fetches a user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE email = $1", selectUserColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID fetches a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", selectUserColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// List returns all users, newest first.
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users ORDER BY created_at DESC", selectUserColumns)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateLastLogin stamps the login timestamp outside the tracked write path;
// login times are operational noise, not auditable data changes.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE users SET last_login = $1 WHERE id = $2", ts, id); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}
