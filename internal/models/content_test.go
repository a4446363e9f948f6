package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentItemRankKey(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-2 * time.Hour)
	published := now.Add(-time.Hour).Add(1500 * time.Microsecond)
	expired := now.Add(-time.Minute)

	item := ContentItem{ID: 9, CreatedAt: created, Predicate: Predicate{PublishedAt: &published, IsPinned: true}}
	key := item.RankKey(now)
	assert.True(t, key.Pinned)
	assert.Equal(t, published.Truncate(time.Millisecond).UnixMilli(), key.PublishedMs)
	assert.Equal(t, int64(9), key.ID)

	item.Predicate.PinnedUntil = &expired
	assert.False(t, item.EffectivePinned(now))

	unpublished := ContentItem{ID: 3, CreatedAt: created}
	assert.Equal(t, created.UnixMilli(), unpublished.RankKey(now).PublishedMs)
}

func TestCursorLess(t *testing.T) {
	pinned := Cursor{Pinned: true, PublishedMs: 1, ID: 1}
	newer := Cursor{PublishedMs: 10, ID: 1}
	older := Cursor{PublishedMs: 5, ID: 8}
	sameTimeLowerID := Cursor{PublishedMs: 5, ID: 7}

	assert.True(t, newer.Less(pinned))
	assert.True(t, older.Less(newer))
	assert.True(t, sameTimeLowerID.Less(older))
	assert.False(t, pinned.Less(newer))
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload(KindNews, json.RawMessage(`{"title":"Hi","body":"There"}`))
	require.NoError(t, err)
	news, ok := p.(*NewsPayload)
	require.True(t, ok)
	assert.Equal(t, "Hi", news.Title)

	_, err = DecodePayload("BOGUS", nil)
	assert.Error(t, err)

	_, err = DecodePayload(KindEvent, json.RawMessage(`{"title":`))
	assert.Error(t, err)
}
