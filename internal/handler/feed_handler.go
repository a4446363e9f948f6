package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/youthhub-api/internal/dto"
	"github.com/noah-isme/youthhub-api/internal/models"
	appErrors "github.com/noah-isme/youthhub-api/pkg/errors"
	"github.com/noah-isme/youthhub-api/pkg/response"
)

type feedService interface {
	Feed(ctx context.Context, q models.FeedQuery) (*models.FeedPage, error)
}

// FeedHandler serves forward queries.
type FeedHandler struct {
	service feedService
}

// NewFeedHandler constructs the handler.
func NewFeedHandler(service feedService) *FeedHandler {
	return &FeedHandler{service: service}
}

// Mine godoc
// @Summary Feed of the authenticated user
// @Tags Feed
// @Produce json
// @Param kind query string false "Content kind"
// @Param cursor query string false "Opaque cursor from a previous page"
// @Param limit query int false "Page size (default 20, max 100)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /feed [get]
func (h *FeedHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	h.serve(c, claims.UserID, false)
}

// ForUser godoc
// @Summary Admin view of another user's feed
// @Tags Feed
// @Produce json
// @Param id path int true "User ID"
// @Param kind query string false "Content kind"
// @Param cursor query string false "Opaque cursor from a previous page"
// @Param limit query int false "Page size (default 20, max 100)"
// @Param preview query bool false "Evaluate admin subjects in preview mode"
// @Success 200 {object} response.Envelope
// @Router /admin/users/{id}/feed [get]
func (h *FeedHandler) ForUser(c *gin.Context) {
	userID, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	h.serve(c, userID, true)
}

// serve answers a feed query. Preview is honoured only on admin routes.
func (h *FeedHandler) serve(c *gin.Context, userID int64, allowPreview bool) {
	var req dto.FeedRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ErrorWithData(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid feed query"), []models.FeedItem{})
		return
	}
	page, err := h.service.Feed(c.Request.Context(), models.FeedQuery{
		UserID:       userID,
		Kind:         models.ContentKind(strings.ToUpper(strings.TrimSpace(req.Kind))),
		Cursor:       req.Cursor,
		Limit:        req.Limit,
		AdminPreview: allowPreview && req.Preview,
	})
	if err != nil {
		response.ErrorWithData(c, err, []models.FeedItem{})
		return
	}
	if page.NextCursor != "" {
		c.Header("X-Next-Cursor", page.NextCursor)
	}
	response.JSON(c, http.StatusOK, page.Items, &models.Pagination{
		Limit:      page.Limit,
		NextCursor: page.NextCursor,
		HasMore:    page.NextCursor != "",
	})
}
