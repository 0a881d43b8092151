package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/opstrail/changetrack/internal/dto"
	"github.com/opstrail/changetrack/internal/models"
	"github.com/opstrail/changetrack/internal/tracker"
	appErrors "github.com/opstrail/changetrack/pkg/errors"
)

type itemRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Item, error)
	GetBySKU(ctx context.Context, sku string) (*models.Item, error)
	List(ctx context.Context, filter models.ItemFilter) ([]models.Item, error)
	Count(ctx context.Context, filter models.ItemFilter) (int, error)
}

type sessionFactory interface {
	Session(opts ...tracker.Option) *tracker.Session
}

// ItemService manages inventory items. Every write runs through a tracked
// session so changes produce audit records automatically.
type ItemService struct {
	repo     itemRepository
	sessions sessionFactory
	logger   *zap.Logger
}

// NewItemService constructs an ItemService.
func NewItemService(repo itemRepository, sessions sessionFactory, logger *zap.Logger) *ItemService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ItemService{repo: repo, sessions: sessions, logger: logger}
}

// List returns items matching the filter plus the total count.
func (s *ItemService) List(ctx context.Context, filter models.ItemFilter) ([]models.Item, int, error) {
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list items")
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count items")
	}
	return items, total, nil
}

// Get returns one item by id.
func (s *ItemService) Get(ctx context.Context, id int64) (*models.Item, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load item")
	}
	return item, nil
}

// Create inserts a new item. The generated key lands back on the returned
// struct and the insert audit record is written after the data commit.
func (s *ItemService) Create(ctx context.Context, req dto.CreateItemRequest, userName, requestID string) (*models.Item, error) {
	if _, err := s.repo.GetBySKU(ctx, req.SKU); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "sku already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check sku")
	}

	now := time.Now().UTC()
	item := &models.Item{
		SKU:       req.SKU,
		Name:      req.Name,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		Location:  req.Location,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	session := s.sessions.Session(tracker.WithRequestID(requestID))
	if err := session.Create(item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage item")
	}
	if _, err := session.SaveChanges(ctx, userName); err != nil {
		if errors.Is(err, tracker.ErrMissingActor) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "acting user is required")
		}
		// The row may be committed with only its audit record missing;
		// the tracker already logged that case and the queue retries it.
		if item.ID != 0 {
			s.logger.Warn("item created but audit write failed", zap.Int64("item_id", item.ID), zap.Error(err))
			return item, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create item")
	}
	return item, nil
}

// Update applies the non-nil fields of req to the item.
func (s *ItemService) Update(ctx context.Context, id int64, req dto.UpdateItemRequest, userName, requestID string) (*models.Item, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	session := s.sessions.Session(tracker.WithRequestID(requestID))
	if err := session.Track(item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to track item")
	}

	if req.Name != nil {
		item.Name = *req.Name
	}
	if req.Quantity != nil {
		item.Quantity = *req.Quantity
	}
	if req.UnitPrice != nil {
		item.UnitPrice = *req.UnitPrice
	}
	if req.Location != nil {
		item.Location = *req.Location
	}
	if req.Active != nil {
		item.Active = *req.Active
	}
	// updated_at is maintained by a database trigger so an unchanged
	// item stays a save no-op.

	if _, err := session.SaveChanges(ctx, userName); err != nil {
		if errors.Is(err, tracker.ErrMissingActor) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "acting user is required")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update item")
	}
	return item, nil
}

// Delete removes an item. The delete audit record captures its final values.
func (s *ItemService) Delete(ctx context.Context, id int64, userName, requestID string) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	session := s.sessions.Session(tracker.WithRequestID(requestID))
	if err := session.Remove(item); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage item removal")
	}
	if _, err := session.SaveChanges(ctx, userName); err != nil {
		if errors.Is(err, tracker.ErrMissingActor) {
			return appErrors.Clone(appErrors.ErrValidation, "acting user is required")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete item")
	}
	return nil
}
