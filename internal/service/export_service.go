package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/youthhub-api/internal/models"
	appErrors "github.com/noah-isme/youthhub-api/pkg/errors"
	"github.com/noah-isme/youthhub-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type ledgerLister interface {
	ListByItem(ctx context.Context, itemID int64, version *int) ([]models.FanoutRecord, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered export ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

// ExportService renders fanout ledger audits.
type ExportService struct {
	content itemGetter
	ledger  ledgerLister
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers use the defaults.
func NewExportService(content itemGetter, ledger ledgerLister, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{content: content, ledger: ledger, csv: csv, pdf: pdf, logger: logger}
}

// FanoutLedger renders the ledger rows of itemID, optionally for one version.
func (s *ExportService) FanoutLedger(ctx context.Context, itemID int64, version *int, format string) (*ExportFile, error) {
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", format))
	}
	item, err := s.content.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	rows, err := s.ledger.ListByItem(ctx, itemID, version)
	if err != nil {
		return nil, appErrors.Backend(ctx, err, "failed to read fanout ledger")
	}

	dataset := export.Dataset{Headers: []string{"Item ID", "Version", "Recipient ID", "Recorded At"}}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, []string{
			strconv.FormatInt(row.ItemID, 10),
			strconv.Itoa(row.Version),
			strconv.FormatInt(row.RecipientID, 10),
			row.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	file := &ExportFile{
		Filename: fmt.Sprintf("fanout_item_%d_%s.%s", item.ID, time.Now().UTC().Format("20060102_150405"), format),
		Rows:     len(rows),
	}
	switch format {
	case ExportFormatPDF:
		file.ContentType = "application/pdf"
		file.Body, err = s.pdf.Render(dataset, fmt.Sprintf("Fanout ledger %s #%d", item.Kind, item.ID))
	default:
		file.ContentType = "text/csv"
		file.Body, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("fanout ledger exported", zap.Int64("item_id", itemID), zap.String("format", format), zap.Int("rows", file.Rows))
	return file, nil
}
