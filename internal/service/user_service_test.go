package service

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/opstrail/changetrack/internal/dto"
	"github.com/opstrail/changetrack/internal/models"
	"github.com/opstrail/changetrack/internal/tracker"
)

type userRepoStub struct {
	users map[string]*models.User
}

func (s *userRepoStub) List(_ context.Context) ([]models.User, error) {
	out := make([]models.User, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, *user)
	}
	return out, nil
}

func (s *userRepoStub) FindByID(_ context.Context, id string) (*models.User, error) {
	for _, user := range s.users {
		if user.ID == id {
			clone := *user
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *userRepoStub) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if user, ok := s.users[email]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func newUserServiceMock(t *testing.T, repo *userRepoStub) (*UserService, sqlmock.Sqlmock, *trackerAuditStub, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	audit := &trackerAuditStub{}
	factory := tracker.NewFactory(sqlxDB, audit, nil)
	return NewUserService(repo, factory, nil), mock, audit, func() { db.Close() }
}

func TestUserServiceCreateAssignsIDAndAudits(t *testing.T) {
	repo := &userRepoStub{users: map[string]*models.User{}}
	svc, mock, audit, cleanup := newUserServiceMock(t, repo)
	defer cleanup()

	// The id is preset, so the insert is a plain exec without key capture.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Email:    "bob@example.com",
		Password: "s3cret-pass",
		FullName: "Bob Builder",
		Role:     "OPERATOR",
	}, "alice", "req-9")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, models.RoleOperator, user.Role)

	require.Len(t, audit.postLogs, 1)
	log := audit.postLogs[0]
	require.Equal(t, models.AuditActionCreate, log.Action)
	require.Equal(t, "users", log.Entity)
	require.Equal(t, user.ID, log.EntityID)
	for _, detail := range log.Details {
		require.NotEqual(t, "password_hash", detail.Field)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserServiceCreateRejectsDuplicateEmail(t *testing.T) {
	repo := &userRepoStub{users: map[string]*models.User{
		"bob@example.com": {ID: "user-2", Email: "bob@example.com"},
	}}
	svc, _, _, cleanup := newUserServiceMock(t, repo)
	defer cleanup()

	_, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Email:    "bob@example.com",
		Password: "s3cret-pass",
		FullName: "Bob Builder",
		Role:     "OPERATOR",
	}, "alice", "")
	require.Error(t, err)
}

func TestUserServiceDeactivateAuditsActiveFlag(t *testing.T) {
	repo := &userRepoStub{users: map[string]*models.User{
		"bob@example.com": {
			ID: "user-2", Email: "bob@example.com", FullName: "Bob Builder",
			Role: models.RoleOperator, Active: true,
		},
	}}
	svc, mock, audit, cleanup := newUserServiceMock(t, repo)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := svc.Deactivate(context.Background(), "user-2", "alice", "")
	require.NoError(t, err)
	require.False(t, user.Active)

	require.Len(t, audit.txLogs, 1)
	require.Len(t, audit.txLogs[0].Details, 1)
	require.Equal(t, "active", audit.txLogs[0].Details[0].Field)
	require.NoError(t, mock.ExpectationsWereMet())
}
