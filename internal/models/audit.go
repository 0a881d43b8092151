package models

import "time"

// AuditAction enumerates the change kinds recorded by the tracker.
type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
	AuditActionLogin  AuditAction = "LOGIN"
)

// AuditLog is the header row written once per changed entity.
type AuditLog struct {
	ID        string      `db:"id" json:"id"`
	Action    AuditAction `db:"action" json:"action"`
	Entity    string      `db:"entity" json:"entity"`
	EntityID  string      `db:"entity_id" json:"entity_id"`
	UserName  string      `db:"user_name" json:"user_name"`
	RequestID *string     `db:"request_id" json:"request_id,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`

	Details []AuditLogDetail `db:"-" json:"details,omitempty"`
}

// AuditLogDetail records a single field change belonging to a header row.
// OldValue is nil for creates, NewValue is nil for deletes.
type AuditLogDetail struct {
	ID         int64   `db:"id" json:"-"`
	AuditLogID string  `db:"audit_log_id" json:"-"`
	Field      string  `db:"field" json:"field"`
	OldValue   *string `db:"old_value" json:"old_value"`
	NewValue   *string `db:"new_value" json:"new_value"`
}

// AuditLogFilter constrains audit log queries.
type AuditLogFilter struct {
	Entity   string
	EntityID string
	Action   AuditAction
	UserName string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}
