package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opstrail/changetrack/internal/dto"
	"github.com/opstrail/changetrack/internal/models"
	appErrors "github.com/opstrail/changetrack/pkg/errors"
	"github.com/opstrail/changetrack/pkg/response"
)

type auditService interface {
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error)
	ListForEntity(ctx context.Context, entity, entityID string) ([]models.AuditLog, error)
	Export(ctx context.Context, filter models.AuditLogFilter, format string) ([]byte, string, error)
}

// AuditHandler exposes REST endpoints over the audit trail.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service auditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// List godoc
// @Summary List audit records
// @Tags Audit
// @Produce json
// @Param entity query string false "Entity table name"
// @Param entityId query string false "Entity row identifier"
// @Param action query string false "CREATE, UPDATE, DELETE or LOGIN"
// @Param user query string false "Acting user name"
// @Param from query string false "Start timestamp (RFC3339 or date)"
// @Param to query string false "End timestamp (RFC3339 or date)"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size (max 200)"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "audit service not configured"))
		return
	}
	var query dto.AuditLogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid audit query"))
		return
	}
	filter, err := query.Filter()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	logs, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]dto.AuditLogResponse, 0, len(logs))
	for _, log := range logs {
		payload = append(payload, dto.NewAuditLogResponse(log))
	}
	pagination := &models.Pagination{
		Page:       filter.Offset/filter.Limit + 1,
		PageSize:   filter.Limit,
		TotalCount: total,
	}
	response.JSON(c, http.StatusOK, payload, pagination)
}

// ListForEntity godoc
// @Summary Change history for one entity row
// @Tags Audit
// @Produce json
// @Param entity path string true "Entity table name"
// @Param id path string true "Entity row identifier"
// @Success 200 {object} response.Envelope
// @Router /audit-logs/{entity}/{id} [get]
func (h *AuditHandler) ListForEntity(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "audit service not configured"))
		return
	}
	logs, err := h.service.ListForEntity(c.Request.Context(), c.Param("entity"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	payload := make([]dto.AuditLogResponse, 0, len(logs))
	for _, log := range logs {
		payload = append(payload, dto.NewAuditLogResponse(log))
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

// Export godoc
// @Summary Export audit records as CSV or PDF
// @Tags Audit
// @Produce octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} byte
// @Router /audit-logs/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "audit service not configured"))
		return
	}
	var query dto.AuditLogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid audit query"))
		return
	}
	filter, err := query.Filter()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	format := c.DefaultQuery("format", "csv")
	payload, filename, err := h.service.Export(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	contentType := "text/csv"
	if format == "pdf" {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, payload)
}
