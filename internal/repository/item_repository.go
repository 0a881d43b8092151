package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/opstrail/changetrack/internal/models"
)

// ItemRepository reads inventory rows. All writes flow through tracked
// sessions so every change produces audit records.
type ItemRepository struct {
	db *sqlx.DB
}

// NewItemRepository constructs the repository.
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const selectItemColumns = `id, sku, name, quantity, unit_price, location, active, created_at, updated_at`

// GetByID fetches a single item.
func (r *ItemRepository) GetByID(ctx context.Context, id int64) (*models.Item, error) {
	query := fmt.Sprintf("SELECT %s FROM items WHERE id = $1", selectItemColumns)
	var item models.Item
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetBySKU fetches an item by its stock keeping unit.
func (r *ItemRepository) GetBySKU(ctx context.Context, sku string) (*models.Item, error) {
	query := fmt.Sprintf("SELECT %s FROM items WHERE sku = $1", selectItemColumns)
	var item models.Item
	if err := r.db.GetContext(ctx, &item, query, sku); err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns items matching the filter.
func (r *ItemRepository) List(ctx context.Context, filter models.ItemFilter) ([]models.Item, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("SELECT %s FROM items", selectItemColumns))

	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR sku ILIKE $%d)", len(args), len(args)))
	}
	if filter.Location != "" {
		args = append(args, filter.Location)
		conditions = append(conditions, fmt.Sprintf("location = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY name")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var items []models.Item
	if err := r.db.SelectContext(ctx, &items, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// Count returns the number of items matching the filter.
func (r *ItemRepository) Count(ctx context.Context, filter models.ItemFilter) (int, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT COUNT(*) FROM items")

	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR sku ILIKE $%d)", len(args), len(args)))
	}
	if filter.Location != "" {
		args = append(args, filter.Location)
		conditions = append(conditions, fmt.Sprintf("location = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, builder.String(), args...); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return total, nil
}
