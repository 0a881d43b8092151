package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/opstrail/changetrack/internal/dto"
	"github.com/opstrail/changetrack/internal/models"
	"github.com/opstrail/changetrack/internal/tracker"
	appErrors "github.com/opstrail/changetrack/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context) ([]models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// UserService manages accounts. Writes go through tracked sessions; password
// hashes stay out of the audit details.
type UserService struct {
	repo     userRepository
	sessions sessionFactory
	logger   *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, sessions sessionFactory, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, sessions: sessions, logger: logger}
}

// List returns all accounts.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, nil
}

// Get returns one account by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create provisions an account. The id is assigned up front, so the insert
// skips key capture and the create audit still lands post-commit.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest, userName, requestID string) (*models.User, error) {
	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         models.UserRole(req.Role),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	session := s.sessions.Session(tracker.WithRequestID(requestID))
	if err := session.Create(user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage user")
	}
	if _, err := session.SaveChanges(ctx, userName); err != nil {
		if errors.Is(err, tracker.ErrMissingActor) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "acting user is required")
		}
		s.logger.Warn("user create save failed", zap.String("email", req.Email), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	return user, nil
}

// Update applies the non-nil fields of req to the account.
func (s *UserService) Update(ctx context.Context, id string, req dto.UpdateUserRequest, userName, requestID string) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	session := s.sessions.Session(tracker.WithRequestID(requestID))
	if err := session.Track(user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to track user")
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Role != nil {
		user.Role = models.UserRole(*req.Role)
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if _, err := session.SaveChanges(ctx, userName); err != nil {
		if errors.Is(err, tracker.ErrMissingActor) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "acting user is required")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	return user, nil
}

// Deactivate flips the account off instead of deleting the row, keeping the
// audit trail attached to a live entity.
func (s *UserService) Deactivate(ctx context.Context, id, userName, requestID string) (*models.User, error) {
	active := false
	return s.Update(ctx, id, dto.UpdateUserRequest{Active: &active}, userName, requestID)
}
