package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/opstrail/changetrack/internal/models"
)

func userRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "full_name", "role", "active", "last_login", "created_at", "updated_at"}).
		AddRow("user-1", "alice@example.com", "hash", "Alice Ops", string(models.RoleAdmin), true, now, now, now)
}

func TestUserRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("alice@example.com").
		WillReturnRows(userRows())

	user, err := repo.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, "user-1", user.ID)
	require.Equal(t, models.RoleAdmin, user.Role)
}

func TestUserRepositoryFindByEmailMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUserRepositoryUpdateLastLogin(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	ts := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET last_login = $1 WHERE id = $2")).
		WithArgs(ts, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateLastLogin(context.Background(), "user-1", ts))
	require.NoError(t, mock.ExpectationsWereMet())
}
