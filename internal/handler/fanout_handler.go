package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/youthhub-api/internal/dto"
	"github.com/noah-isme/youthhub-api/internal/service"
	appErrors "github.com/noah-isme/youthhub-api/pkg/errors"
	"github.com/noah-isme/youthhub-api/pkg/response"
)

type ledgerExporter interface {
	FanoutLedger(ctx context.Context, itemID int64, version *int, format string) (*service.ExportFile, error)
}

// FanoutHandler exposes fanout ledger audits.
type FanoutHandler struct {
	exporter ledgerExporter
}

// NewFanoutHandler constructs the handler.
func NewFanoutHandler(exporter ledgerExporter) *FanoutHandler {
	return &FanoutHandler{exporter: exporter}
}

// Export godoc
// @Summary Export the fanout ledger of an item
// @Tags Admin
// @Produce text/csv
// @Produce application/pdf
// @Param id path int true "Content item ID"
// @Param format query string false "csv (default) or pdf"
// @Param version query int false "Restrict to one version"
// @Success 200 {file} file
// @Router /admin/items/{id}/fanout/export [get]
func (h *FanoutHandler) Export(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.FanoutExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export query"))
		return
	}
	file, err := h.exporter.FanoutLedger(c.Request.Context(), id, req.Version, strings.ToLower(req.Format))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
