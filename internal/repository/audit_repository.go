package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opstrail/changetrack/internal/models"
)

// AuditRepository persists audit headers and their detail rows.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const insertAuditLogQuery = `INSERT INTO audit_logs
	(id, action, entity, entity_id, user_name, request_id, created_at)
	VALUES (:id, :action, :entity, :entity_id, :user_name, :request_id, :created_at)`

const insertAuditDetailQuery = `INSERT INTO audit_log_details
	(audit_log_id, field, old_value, new_value)
	VALUES (:audit_log_id, :field, :old_value, :new_value)`

// InsertTx writes a header and its details inside an existing transaction.
func (r *AuditRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, log *models.AuditLog) error {
	prepare(log)
	if _, err := tx.NamedExecContext(ctx, insertAuditLogQuery, log); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	for i := range log.Details {
		log.Details[i].AuditLogID = log.ID
		if _, err := tx.NamedExecContext(ctx, insertAuditDetailQuery, log.Details[i]); err != nil {
			return fmt.Errorf("insert audit detail %s: %w", log.Details[i].Field, err)
		}
	}
	return nil
}

// Insert writes a header and its details in a transaction of its own.
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit insert: %w", err)
	}
	if err := r.InsertTx(ctx, tx, log); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit insert: %w", err)
	}
	return nil
}

func prepare(log *models.AuditLog) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
}

// List returns audit headers matching the filter, newest first, with their
// detail rows attached.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT id, action, entity, entity_id, user_name, request_id, created_at FROM audit_logs`)

	conditions, args := filterConditions(filter)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC, id")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var logs []models.AuditLog
	if err := r.db.SelectContext(ctx, &logs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	if err := r.attachDetails(ctx, logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// Count returns the number of headers matching the filter.
func (r *AuditRepository) Count(ctx context.Context, filter models.AuditLogFilter) (int, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT COUNT(*) FROM audit_logs")

	conditions, args := filterConditions(filter)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, builder.String(), args...); err != nil {
		return 0, fmt.Errorf("count audit logs: %w", err)
	}
	return total, nil
}

// DeleteOlderThan removes headers (details cascade) created before cutoff.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit logs: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge audit logs rows: %w", err)
	}
	return removed, nil
}

func filterConditions(filter models.AuditLogFilter) ([]string, []interface{}) {
	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)
	if filter.Entity != "" {
		args = append(args, filter.Entity)
		conditions = append(conditions, fmt.Sprintf("entity = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.UserName != "" {
		args = append(args, filter.UserName)
		conditions = append(conditions, fmt.Sprintf("user_name = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}
	return conditions, args
}

func (r *AuditRepository) attachDetails(ctx context.Context, logs []models.AuditLog) error {
	if len(logs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(logs))
	index := make(map[string]int, len(logs))
	for i, log := range logs {
		ids = append(ids, log.ID)
		index[log.ID] = i
	}

	query, args, err := sqlx.In(`SELECT id, audit_log_id, field, old_value, new_value
		FROM audit_log_details WHERE audit_log_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("build audit detail query: %w", err)
	}
	query = r.db.Rebind(query)

	var details []models.AuditLogDetail
	if err := r.db.SelectContext(ctx, &details, query, args...); err != nil {
		return fmt.Errorf("load audit details: %w", err)
	}
	for _, d := range details {
		if i, ok := index[d.AuditLogID]; ok {
			logs[i].Details = append(logs[i].Details, d)
		}
	}
	return nil
}
