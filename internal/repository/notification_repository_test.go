package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/youthhub-api/internal/models"
)

func TestNotificationDeliverWritesFreshRecipients(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO fanout_ledger")).
		WithArgs(int64(4), 1, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"recipient_id"}).AddRow(int64(3)).AddRow(int64(5)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(4), 1, "EVENT", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := NewNotificationRepository(db).Deliver(context.Background(), models.RecipientBatch{
		ItemID: 4, Version: 1, Kind: models.KindEvent, Recipients: []int64{3, 5, 8},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationDeliverSkipsDuplicates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO fanout_ledger")).
		WillReturnRows(sqlmock.NewRows([]string{"recipient_id"}))
	mock.ExpectCommit()

	n, err := NewNotificationRepository(db).Deliver(context.Background(), models.RecipientBatch{ItemID: 4, Version: 1, Recipients: []int64{3}})
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationDeliverRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO fanout_ledger")).
		WillReturnRows(sqlmock.NewRows([]string{"recipient_id"}).AddRow(int64(3)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := NewNotificationRepository(db).Deliver(context.Background(), models.RecipientBatch{ItemID: 4, Version: 1, Recipients: []int64{3}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationDeliverEmptyBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	n, err := NewNotificationRepository(db).Deliver(context.Background(), models.RecipientBatch{ItemID: 4, Version: 1})
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerSinkDeliver(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO fanout_ledger")).
		WithArgs(int64(4), 3, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"recipient_id"}).AddRow(int64(3)).AddRow(int64(8)))

	sink := NewLedgerSink(NewFanoutLedgerRepository(db))
	n, err := sink.Deliver(context.Background(), models.RecipientBatch{ItemID: 4, Version: 3, Recipients: []int64{3, 8}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
