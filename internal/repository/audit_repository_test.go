package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/opstrail/changetrack/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAuditRepositoryInsertWritesHeaderAndDetails(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	old := "3"
	updated := "5"
	log := &models.AuditLog{
		Action:   models.AuditActionUpdate,
		Entity:   "items",
		EntityID: "4",
		UserName: "alice",
		Details: []models.AuditLogDetail{
			{Field: "quantity", OldValue: &old, NewValue: &updated},
			{Field: "name", OldValue: &old, NewValue: &updated},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log_details")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log_details")).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Insert(context.Background(), log))
	require.NotEmpty(t, log.ID)
	require.False(t, log.CreatedAt.IsZero())
	require.Equal(t, log.ID, log.Details[0].AuditLogID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryInsertRollsBackOnDetailFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	val := "x"
	log := &models.AuditLog{
		Action:   models.AuditActionCreate,
		Entity:   "items",
		EntityID: "9",
		UserName: "bob",
		Details:  []models.AuditLogDetail{{Field: "sku", NewValue: &val}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log_details")).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	require.Error(t, repo.Insert(context.Background(), log))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryListFiltersAndAttachesDetails(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	now := time.Now().UTC()

	headers := sqlmock.NewRows([]string{"id", "action", "entity", "entity_id", "user_name", "request_id", "created_at"}).
		AddRow("log-1", "UPDATE", "items", "4", "alice", nil, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, action, entity, entity_id, user_name, request_id, created_at FROM audit_logs")).
		WithArgs("items", "alice").
		WillReturnRows(headers)

	details := sqlmock.NewRows([]string{"id", "audit_log_id", "field", "old_value", "new_value"}).
		AddRow(int64(1), "log-1", "quantity", "3", "5").
		AddRow(int64(2), "log-1", "name", "bolt", "hex bolt")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, audit_log_id, field, old_value, new_value")).
		WillReturnRows(details)

	logs, err := repo.List(context.Background(), models.AuditLogFilter{Entity: "items", UserName: "alice"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Len(t, logs[0].Details, 2)
	require.Equal(t, "quantity", logs[0].Details[0].Field)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryListEmptySkipsDetailQuery(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "entity", "entity_id", "user_name", "request_id", "created_at"}))

	logs, err := repo.List(context.Background(), models.AuditLogFilter{})
	require.NoError(t, err)
	require.Empty(t, logs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryCount(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs")).
		WithArgs("items").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	total, err := repo.Count(context.Background(), models.AuditLogFilter{Entity: "items"})
	require.NoError(t, err)
	require.Equal(t, 12, total)
}

func TestAuditRepositoryDeleteOlderThan(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	cutoff := time.Now().Add(-90 * 24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_logs WHERE created_at <")).
		WillReturnResult(sqlmock.NewResult(0, 42))

	removed, err := repo.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(42), removed)
	require.NoError(t, mock.ExpectationsWereMet())
}
