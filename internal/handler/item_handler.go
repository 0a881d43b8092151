package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/opstrail/changetrack/internal/dto"
	"github.com/opstrail/changetrack/internal/models"
	appErrors "github.com/opstrail/changetrack/pkg/errors"
	"github.com/opstrail/changetrack/pkg/middleware/requestid"
	"github.com/opstrail/changetrack/pkg/response"
)

type itemService interface {
	List(ctx context.Context, filter models.ItemFilter) ([]models.Item, int, error)
	Get(ctx context.Context, id int64) (*models.Item, error)
	Create(ctx context.Context, req dto.CreateItemRequest, userName, requestID string) (*models.Item, error)
	Update(ctx context.Context, id int64, req dto.UpdateItemRequest, userName, requestID string) (*models.Item, error)
	Delete(ctx context.Context, id int64, userName, requestID string) error
}

// ItemHandler exposes REST endpoints for inventory items.
type ItemHandler struct {
	service itemService
}

// NewItemHandler constructs the handler.
func NewItemHandler(service itemService) *ItemHandler {
	return &ItemHandler{service: service}
}

// List godoc
// @Summary List inventory items
// @Tags Items
// @Produce json
// @Param search query string false "Match against name or SKU"
// @Param location query string false "Storage location"
// @Param active query bool false "Active flag"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size (max 200)"
// @Success 200 {object} response.Envelope
// @Router /items [get]
func (h *ItemHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "item service not configured"))
		return
	}
	filter := models.ItemFilter{
		Search:   strings.TrimSpace(c.Query("search")),
		Location: strings.TrimSpace(c.Query("location")),
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be a boolean"))
			return
		}
		filter.Active = &active
	}

	page := parsePage(c.Query("page"), 1)
	pageSize := parsePage(c.Query("pageSize"), 50)
	if pageSize > 200 {
		pageSize = 200
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	items, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get one inventory item
// @Tags Items
// @Produce json
// @Param id path int true "Item ID"
// @Success 200 {object} response.Envelope
// @Router /items/{id} [get]
func (h *ItemHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "item service not configured"))
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid item id"))
		return
	}
	item, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create an inventory item
// @Tags Items
// @Accept json
// @Produce json
// @Param payload body dto.CreateItemRequest true "Item payload"
// @Success 201 {object} response.Envelope
// @Router /items [post]
func (h *ItemHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "item service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid item payload"))
		return
	}
	item, err := h.service.Create(c.Request.Context(), req, actorName(claims), requestid.Value(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update an inventory item
// @Tags Items
// @Accept json
// @Produce json
// @Param id path int true "Item ID"
// @Param payload body dto.UpdateItemRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /items/{id} [put]
func (h *ItemHandler) Update(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "item service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid item id"))
		return
	}
	var req dto.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid item payload"))
		return
	}
	item, err := h.service.Update(c.Request.Context(), id, req, actorName(claims), requestid.Value(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete an inventory item
// @Tags Items
// @Param id path int true "Item ID"
// @Success 204
// @Router /items/{id} [delete]
func (h *ItemHandler) Delete(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "item service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid item id"))
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, actorName(claims), requestid.Value(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func parsePage(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
