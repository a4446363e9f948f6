package handler

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/youthhub-api/internal/dto"
	"github.com/noah-isme/youthhub-api/internal/models"
	appErrors "github.com/noah-isme/youthhub-api/pkg/errors"
)

type contentServiceMock struct {
	created    dto.CreateContentRequest
	updated    dto.UpdateContentRequest
	transition models.ContentStatus
	err        error
}

func (m *contentServiceMock) Get(_ context.Context, id int64) (*models.ContentItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.ContentItem{ID: id, Kind: models.KindNews, Version: 1}, nil
}

func (m *contentServiceMock) Create(_ context.Context, req dto.CreateContentRequest) (*models.ContentItem, error) {
	m.created = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.ContentItem{ID: 1, Kind: req.Kind, Version: 1, AuthorID: req.AuthorID}, nil
}

func (m *contentServiceMock) Update(_ context.Context, id int64, req dto.UpdateContentRequest) (*models.ContentItem, error) {
	m.updated = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.ContentItem{ID: id, Version: 2}, nil
}

func (m *contentServiceMock) Transition(_ context.Context, id int64, status models.ContentStatus) (*models.ContentItem, error) {
	m.transition = status
	if m.err != nil {
		return nil, m.err
	}
	return &models.ContentItem{ID: id, Predicate: models.Predicate{Status: status}}, nil
}

func newContentRouter(svc *contentServiceMock) *gin.Engine {
	router := newTestRouter()
	h := NewContentHandler(svc)
	router.POST("/items", h.Create)
	router.GET("/items/:id", h.Get)
	router.PUT("/items/:id", h.Update)
	router.POST("/items/:id/status", h.Transition)
	return router
}

func TestContentHandlerCreate(t *testing.T) {
	svc := &contentServiceMock{}
	router := newContentRouter(svc)

	body := `{"kind":"NEWS","predicate":{"target_clubs":[7],"target_min_age":13},"payload":{"title":"t","body":"b"}}`
	req, _ := http.NewRequest(http.MethodPost, "/items", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", "4")
	req.Header.Set("X-Test-Role", string(models.RoleClubAdmin))
	w := performRequest(router, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.KindNews, svc.created.Kind)
	assert.Equal(t, []int64{7}, svc.created.Predicate.TargetClubs)
	assert.Equal(t, 13, *svc.created.Predicate.TargetMinAge)
	require.NotNil(t, svc.created.AuthorID)
	assert.Equal(t, int64(4), *svc.created.AuthorID)
}

func TestContentHandlerCreateRejectsBadJSON(t *testing.T) {
	router := newContentRouter(&contentServiceMock{})
	req, _ := http.NewRequest(http.MethodPost, "/items", bytes.NewBufferString(`{"kind":`))
	req.Header.Set("Content-Type", "application/json")
	w := performRequest(router, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContentHandlerCreateSurfacesPredicateField(t *testing.T) {
	svc := &contentServiceMock{err: appErrors.InvalidPredicate("include_admins", "only system messages may target admins")}
	router := newContentRouter(svc)

	req, _ := http.NewRequest(http.MethodPost, "/items", bytes.NewBufferString(`{"kind":"NEWS","payload":{}}`))
	req.Header.Set("Content-Type", "application/json")
	w := performRequest(router, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"include_admins"`)
}

func TestContentHandlerUpdateAndGet(t *testing.T) {
	svc := &contentServiceMock{}
	router := newContentRouter(svc)

	req, _ := http.NewRequest(http.MethodPut, "/items/5", bytes.NewBufferString(`{"force_version_bump":true}`))
	req.Header.Set("Content-Type", "application/json")
	w := performRequest(router, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.updated.ForceVersionBump)
	assert.Nil(t, svc.updated.Predicate)

	req, _ = http.NewRequest(http.MethodGet, "/items/0", nil)
	w = performRequest(router, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.err = appErrors.Clone(appErrors.ErrNotFound, "content item not found")
	req, _ = http.NewRequest(http.MethodGet, "/items/5", nil)
	w = performRequest(router, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestContentHandlerTransition(t *testing.T) {
	svc := &contentServiceMock{}
	router := newContentRouter(svc)

	req, _ := http.NewRequest(http.MethodPost, "/items/5/status", bytes.NewBufferString(`{"status":"PUBLISHED"}`))
	req.Header.Set("Content-Type", "application/json")
	w := performRequest(router, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusPublished, svc.transition)

	req, _ = http.NewRequest(http.MethodPost, "/items/5/status", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = performRequest(router, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.err = appErrors.Clone(appErrors.ErrConflict, "cannot move item from ARCHIVED to PUBLISHED")
	req, _ = http.NewRequest(http.MethodPost, "/items/5/status", bytes.NewBufferString(`{"status":"PUBLISHED"}`))
	req.Header.Set("Content-Type", "application/json")
	w = performRequest(router, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}
