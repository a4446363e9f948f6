package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/youthhub-api/internal/dto"
	"github.com/noah-isme/youthhub-api/internal/models"
	appErrors "github.com/noah-isme/youthhub-api/pkg/errors"
	"github.com/noah-isme/youthhub-api/pkg/response"
)

type explainService interface {
	Explain(ctx context.Context, userID, itemID int64, preview bool) (*models.Explanation, error)
}

// ExplainHandler exposes evaluator decisions for debugging.
type ExplainHandler struct {
	service   explainService
	validator *validator.Validate
}

// NewExplainHandler constructs the handler.
func NewExplainHandler(service explainService, validate *validator.Validate) *ExplainHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &ExplainHandler{service: service, validator: validate}
}

// Explain godoc
// @Summary Explain why an item is or is not visible to a user
// @Tags Admin
// @Produce json
// @Param user_id query int true "User ID"
// @Param item_id query int true "Content item ID"
// @Param preview query bool false "Admin preview mode"
// @Success 200 {object} response.Envelope
// @Router /admin/explain [get]
func (h *ExplainHandler) Explain(c *gin.Context) {
	var req dto.ExplainRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid explain query"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "user_id and item_id are required"))
		return
	}
	explanation, err := h.service.Explain(c.Request.Context(), req.UserID, req.ItemID, req.Preview)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, explanation, nil)
}
