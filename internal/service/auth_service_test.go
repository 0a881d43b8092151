package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/opstrail/changetrack/internal/models"
)

type authRepoStub struct {
	users     map[string]*models.User
	lastLogin map[string]time.Time
}

func (s *authRepoStub) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if user, ok := s.users[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) FindByID(_ context.Context, id string) (*models.User, error) {
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) UpdateLastLogin(_ context.Context, id string, ts time.Time) error {
	if s.lastLogin == nil {
		s.lastLogin = map[string]time.Time{}
	}
	s.lastLogin[id] = ts
	return nil
}

func newAuthFixture(t *testing.T, active bool) (*AuthService, *authRepoStub, *trackerAuditStub) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &authRepoStub{users: map[string]*models.User{
		"alice@example.com": {
			ID:           "user-1",
			Email:        "alice@example.com",
			PasswordHash: string(hash),
			FullName:     "Alice Ops",
			Role:         models.RoleAdmin,
			Active:       active,
		},
	}}
	audit := &trackerAuditStub{}
	svc := NewAuthService(repo, audit, nil, nil, AuthConfig{
		Secret:     "test-secret",
		Expiration: time.Hour,
		Issuer:     "changetrack-test",
	})
	return svc, repo, audit
}

func TestAuthServiceLoginIssuesTokenAndAudits(t *testing.T) {
	svc, repo, audit := newAuthFixture(t, true)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, "alice@example.com", resp.User.Email)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, models.RoleAdmin, claims.Role)

	require.Contains(t, repo.lastLogin, "user-1")
	require.Len(t, audit.postLogs, 1)
	require.Equal(t, models.AuditActionLogin, audit.postLogs[0].Action)
	require.Equal(t, "users", audit.postLogs[0].Entity)
	require.Equal(t, "user-1", audit.postLogs[0].EntityID)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, _, audit := newAuthFixture(t, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong",
	})
	require.Error(t, err)
	require.Empty(t, audit.postLogs)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc, _, _ := newAuthFixture(t, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "s3cret-pass",
	})
	require.Error(t, err)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	svc, _, _ := newAuthFixture(t, false)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "s3cret-pass",
	})
	require.Error(t, err)
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	svc, _, _ := newAuthFixture(t, true)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken + "x")
	require.Error(t, err)
}
