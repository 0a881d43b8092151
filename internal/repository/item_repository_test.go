package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/opstrail/changetrack/internal/models"
)

func itemRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "sku", "name", "quantity", "unit_price", "location", "active", "created_at", "updated_at"}).
		AddRow(int64(4), "BLT-01", "hex bolt", 12, 0.35, "aisle-3", true, now, now)
}

func TestItemRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewItemRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM items WHERE id = $1")).
		WithArgs(int64(4)).
		WillReturnRows(itemRows())

	item, err := repo.GetByID(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, "BLT-01", item.SKU)
	require.Equal(t, 12, item.Quantity)
}

func TestItemRepositoryListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewItemRepository(db)
	active := true
	mock.ExpectQuery(regexp.QuoteMeta("(name ILIKE $1 OR sku ILIKE $1)")).
		WithArgs("%bolt%", "aisle-3", true).
		WillReturnRows(itemRows())

	items, err := repo.List(context.Background(), models.ItemFilter{
		Search:   "bolt",
		Location: "aisle-3",
		Active:   &active,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "hex bolt", items[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepositoryListClampsLimit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewItemRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 50 OFFSET 0")).
		WillReturnRows(itemRows())

	_, err := repo.List(context.Background(), models.ItemFilter{Limit: 1000, Offset: -4})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepositoryCount(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewItemRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM items")).
		WithArgs("aisle-3").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	total, err := repo.Count(context.Background(), models.ItemFilter{Location: "aisle-3"})
	require.NoError(t, err)
	require.Equal(t, 7, total)
}
