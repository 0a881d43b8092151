package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opstrail/changetrack/internal/dto"
	"github.com/opstrail/changetrack/internal/models"
	appErrors "github.com/opstrail/changetrack/pkg/errors"
	"github.com/opstrail/changetrack/pkg/middleware/requestid"
	"github.com/opstrail/changetrack/pkg/response"
)

type userService interface {
	List(ctx context.Context) ([]models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, req dto.CreateUserRequest, userName, requestID string) (*models.User, error)
	Update(ctx context.Context, id string, req dto.UpdateUserRequest, userName, requestID string) (*models.User, error)
	Deactivate(ctx context.Context, id, userName, requestID string) (*models.User, error)
}

// UserHandler exposes account management endpoints.
type UserHandler struct {
	service userService
}

// NewUserHandler constructs the handler.
func NewUserHandler(service userService) *UserHandler {
	return &UserHandler{service: service}
}

// List godoc
// @Summary List accounts
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "user service not configured"))
		return
	}
	users, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, nil)
}

// Get godoc
// @Summary Get one account
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "user service not configured"))
		return
	}
	user, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Create godoc
// @Summary Provision an account
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body dto.CreateUserRequest true "User payload"
// @Success 201 {object} response.Envelope
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "user service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid user payload"))
		return
	}
	user, err := h.service.Create(c.Request.Context(), req, actorName(claims), requestid.Value(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Update godoc
// @Summary Update an account
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body dto.UpdateUserRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /users/{id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "user service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid user payload"))
		return
	}
	user, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorName(claims), requestid.Value(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Deactivate godoc
// @Summary Deactivate an account
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/deactivate [post]
func (h *UserHandler) Deactivate(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "user service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	user, err := h.service.Deactivate(c.Request.Context(), c.Param("id"), actorName(claims), requestid.Value(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}
