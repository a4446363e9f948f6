package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/youthhub-api/internal/models"
	appErrors "github.com/noah-isme/youthhub-api/pkg/errors"
	"github.com/noah-isme/youthhub-api/pkg/export"
)

type failingPDF struct{}

func (failingPDF) Render(export.Dataset, string) ([]byte, error) {
	return nil, errors.New("font missing")
}

func newExportForTest(t *testing.T) (*ExportService, *memoryLedger) {
	t.Helper()
	item := models.ContentItem{ID: 4, Kind: models.KindEvent, Version: 2, Predicate: published(models.Predicate{IsGlobal: true})}
	content := NewContentService(newMemoryContent(item), nil, nil, nil, &fakeClock{now: evalNow}, zap.NewNop())
	ledger := newMemoryLedger()
	ctx := context.Background()
	_, err := ledger.Deliver(ctx, models.RecipientBatch{ItemID: 4, Version: 1, Recipients: []int64{8, 3}})
	require.NoError(t, err)
	_, err = ledger.Deliver(ctx, models.RecipientBatch{ItemID: 4, Version: 2, Recipients: []int64{3}})
	require.NoError(t, err)
	return NewExportService(content, ledger, nil, nil, nil), ledger
}

func TestExportFanoutLedgerCSV(t *testing.T) {
	svc, _ := newExportForTest(t)

	file, err := svc.FanoutLedger(context.Background(), 4, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, 3, file.Rows)
	assert.Regexp(t, `^fanout_item_4_\d{8}_\d{6}\.csv$`, file.Filename)

	records, err := csv.NewReader(bytes.NewReader(file.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"Item ID", "Version", "Recipient ID", "Recorded At"}, records[0])
	assert.Equal(t, []string{"4", "1", "3"}, records[1][:3])
	assert.Equal(t, []string{"4", "1", "8"}, records[2][:3])
	assert.Equal(t, []string{"4", "2", "3"}, records[3][:3])
}

func TestExportFanoutLedgerSingleVersionPDF(t *testing.T) {
	svc, _ := newExportForTest(t)
	version := 2

	file, err := svc.FanoutLedger(context.Background(), 4, &version, ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.Equal(t, 1, file.Rows)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF")))
}

func TestExportFanoutLedgerErrors(t *testing.T) {
	svc, ledger := newExportForTest(t)
	ctx := context.Background()

	_, err := svc.FanoutLedger(ctx, 4, nil, "xlsx")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.FanoutLedger(ctx, 77, nil, ExportFormatCSV)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	broken := NewExportService(svc.content, ledger, nil, nil, failingPDF{})
	_, err = broken.FanoutLedger(ctx, 4, nil, ExportFormatPDF)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}
