package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/opstrail/changetrack/internal/dto"
	"github.com/opstrail/changetrack/internal/middleware"
	"github.com/opstrail/changetrack/internal/models"
)

type itemServiceMock struct {
	items      []models.Item
	total      int
	lastActor  string
	lastFilter models.ItemFilter
	deleteErr  error
}

func (m *itemServiceMock) List(_ context.Context, filter models.ItemFilter) ([]models.Item, int, error) {
	m.lastFilter = filter
	return m.items, m.total, nil
}

func (m *itemServiceMock) Get(_ context.Context, id int64) (*models.Item, error) {
	return &models.Item{ID: id, SKU: "BLT-01", Name: "hex bolt"}, nil
}

func (m *itemServiceMock) Create(_ context.Context, req dto.CreateItemRequest, userName, _ string) (*models.Item, error) {
	m.lastActor = userName
	return &models.Item{ID: 7, SKU: req.SKU, Name: req.Name, Quantity: req.Quantity}, nil
}

func (m *itemServiceMock) Update(_ context.Context, id int64, req dto.UpdateItemRequest, userName, _ string) (*models.Item, error) {
	m.lastActor = userName
	item := &models.Item{ID: id, SKU: "BLT-01", Name: "hex bolt"}
	if req.Name != nil {
		item.Name = *req.Name
	}
	return item, nil
}

func (m *itemServiceMock) Delete(_ context.Context, _ int64, userName, _ string) error {
	m.lastActor = userName
	return m.deleteErr
}

func operatorClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Email: "alice@example.com", Role: models.RoleOperator}
}

func TestItemHandlerCreatePassesActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &itemServiceMock{}
	handler := NewItemHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.CreateItemRequest{SKU: "BLT-01", Name: "hex bolt", Quantity: 12})
	req, _ := http.NewRequest(http.MethodPost, "/items", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, operatorClaims())

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "alice@example.com", mock.lastActor)
}

func TestItemHandlerCreateRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewItemHandler(&itemServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.CreateItemRequest{SKU: "BLT-01", Name: "hex bolt"})
	req, _ := http.NewRequest(http.MethodPost, "/items", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestItemHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewItemHandler(&itemServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/items", bytes.NewReader([]byte(`not-json`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, operatorClaims())

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestItemHandlerListParsesFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &itemServiceMock{items: []models.Item{{ID: 4}}, total: 1}
	handler := NewItemHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/items?search=bolt&active=true&page=2&pageSize=10", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "bolt", mock.lastFilter.Search)
	require.NotNil(t, mock.lastFilter.Active)
	require.True(t, *mock.lastFilter.Active)
	require.Equal(t, 10, mock.lastFilter.Limit)
	require.Equal(t, 10, mock.lastFilter.Offset)
}

func TestItemHandlerGetRejectsBadID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewItemHandler(&itemServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/items/abc", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	handler.Get(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestItemHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &itemServiceMock{}
	handler := NewItemHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/items/4", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "4"}}
	c.Set(middleware.ContextUserKey, operatorClaims())

	handler.Delete(c)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "alice@example.com", mock.lastActor)
}
