package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/youthhub-api/internal/dto"
	"github.com/noah-isme/youthhub-api/internal/models"
	appErrors "github.com/noah-isme/youthhub-api/pkg/errors"
	"github.com/noah-isme/youthhub-api/pkg/response"
)

type contentService interface {
	Get(ctx context.Context, id int64) (*models.ContentItem, error)
	Create(ctx context.Context, req dto.CreateContentRequest) (*models.ContentItem, error)
	Update(ctx context.Context, id int64, req dto.UpdateContentRequest) (*models.ContentItem, error)
	Transition(ctx context.Context, id int64, status models.ContentStatus) (*models.ContentItem, error)
}

// ContentHandler manages content items and their lifecycle.
type ContentHandler struct {
	service contentService
}

// NewContentHandler constructs the handler.
func NewContentHandler(service contentService) *ContentHandler {
	return &ContentHandler{service: service}
}

// Create godoc
// @Summary Create a content item
// @Tags Content
// @Accept json
// @Produce json
// @Param payload body dto.CreateContentRequest true "Content item"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /items [post]
func (h *ContentHandler) Create(c *gin.Context) {
	var req dto.CreateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		author := claims.UserID
		req.AuthorID = &author
	}
	item, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Get godoc
// @Summary Get a content item
// @Tags Content
// @Produce json
// @Param id path int true "Content item ID"
// @Success 200 {object} response.Envelope
// @Router /items/{id} [get]
func (h *ContentHandler) Get(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Update godoc
// @Summary Edit payload or targeting of a content item
// @Tags Content
// @Accept json
// @Produce json
// @Param id path int true "Content item ID"
// @Param payload body dto.UpdateContentRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /items/{id} [put]
func (h *ContentHandler) Update(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	item, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Transition godoc
// @Summary Move a content item through its lifecycle
// @Tags Content
// @Accept json
// @Produce json
// @Param id path int true "Content item ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /items/{id}/status [post]
func (h *ContentHandler) Transition(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "status is required"))
		return
	}
	item, err := h.service.Transition(c.Request.Context(), id, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
