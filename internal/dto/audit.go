package dto

import (
	"fmt"
	"strconv"
	"time"

	"github.com/opstrail/changetrack/internal/models"
)

// AuditLogQuery mirrors the supported listing filters on the audit endpoints.
type AuditLogQuery struct {
	Entity   string `form:"entity"`
	EntityID string `form:"entityId"`
	Action   string `form:"action"`
	UserName string `form:"user"`
	From     string `form:"from"`
	To       string `form:"to"`
	Page     string `form:"page"`
	PageSize string `form:"pageSize"`
}

// Filter converts the raw query values into a repository filter. Timestamps
// accept RFC3339 or a plain date.
func (q AuditLogQuery) Filter() (models.AuditLogFilter, error) {
	filter := models.AuditLogFilter{
		Entity:   q.Entity,
		EntityID: q.EntityID,
		UserName: q.UserName,
	}

	if q.Action != "" {
		action := models.AuditAction(q.Action)
		switch action {
		case models.AuditActionCreate, models.AuditActionUpdate, models.AuditActionDelete, models.AuditActionLogin:
			filter.Action = action
		default:
			return filter, fmt.Errorf("unknown action %q", q.Action)
		}
	}

	if q.From != "" {
		ts, _, err := parseTimestamp(q.From)
		if err != nil {
			return filter, fmt.Errorf("invalid from timestamp: %w", err)
		}
		filter.From = &ts
	}
	if q.To != "" {
		ts, dateOnly, err := parseTimestamp(q.To)
		if err != nil {
			return filter, fmt.Errorf("invalid to timestamp: %w", err)
		}
		if dateOnly {
			// The repository filters created_at < to, so a bare date must
			// advance to the next midnight to cover the whole named day.
			ts = ts.Add(24 * time.Hour)
		}
		filter.To = &ts
	}

	page := parsePositiveInt(q.Page, 1)
	pageSize := parsePositiveInt(q.PageSize, 50)
	if pageSize > 200 {
		pageSize = 200
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	return filter, nil
}

func parseTimestamp(raw string) (time.Time, bool, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, false, nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	return ts, err == nil, err
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

// AuditLogResponse is the serialized audit header with its field changes.
type AuditLogResponse struct {
	ID        string                   `json:"id"`
	Action    models.AuditAction       `json:"action"`
	Entity    string                   `json:"entity"`
	EntityID  string                   `json:"entityId"`
	UserName  string                   `json:"userName"`
	RequestID *string                  `json:"requestId,omitempty"`
	CreatedAt time.Time                `json:"createdAt"`
	Details   []AuditLogDetailResponse `json:"details"`
}

// AuditLogDetailResponse is one changed field within an audit record.
type AuditLogDetailResponse struct {
	Field    string  `json:"field"`
	OldValue *string `json:"oldValue"`
	NewValue *string `json:"newValue"`
}

// NewAuditLogResponse maps a model to its API shape.
func NewAuditLogResponse(log models.AuditLog) AuditLogResponse {
	details := make([]AuditLogDetailResponse, 0, len(log.Details))
	for _, d := range log.Details {
		details = append(details, AuditLogDetailResponse{
			Field:    d.Field,
			OldValue: d.OldValue,
			NewValue: d.NewValue,
		})
	}
	return AuditLogResponse{
		ID:        log.ID,
		Action:    log.Action,
		Entity:    log.Entity,
		EntityID:  log.EntityID,
		UserName:  log.UserName,
		RequestID: log.RequestID,
		CreatedAt: log.CreatedAt,
		Details:   details,
	}
}
