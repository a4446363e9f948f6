package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/youthhub-api/internal/models"
)

func TestEngagementAggregates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM unnest($2::bigint[])")).
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "reaction_count", "comment_count", "my_reaction"}).
			AddRow(int64(5), 3, 1, "LIKE").
			AddRow(int64(6), 0, 0, nil))

	got, err := NewEngagementRepository(db).Aggregates(context.Background(), 1, []int64{5, 6})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[5].ReactionCount)
	assert.Equal(t, "LIKE", *got[5].MyReaction)
	assert.Nil(t, got[6].MyReaction)

	empty, err := NewEngagementRepository(db).Aggregates(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, map[int64]models.Engagement{}, empty)
	require.NoError(t, mock.ExpectationsWereMet())
}
