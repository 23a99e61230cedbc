package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *searchFixture) indexer(engine Engine, breaker *Breaker) *Indexer {
	return NewIndexer(engine, breaker, f.store, f.registry, f.logger, nil)
}

func TestReindexKind(t *testing.T) {
	f := newSearchFixture(t)
	engine := newFakeEngine()
	ix := f.indexer(engine, NewBreaker(nil, nil))

	indexed, err := ix.ReindexKind(context.Background(), "machines")
	require.NoError(t, err)
	assert.Equal(t, 3, indexed)
	require.Len(t, engine.docs["machines"], 3)

	// Documents carry the fulltext blob and resolved FK labels.
	doc := engine.docs["machines"][1]
	require.NotNil(t, doc)
	assert.Equal(t, "M-1 Hydraulic Press Hall A", doc["fulltext"])
	assert.Equal(t, "FAC-N-North Plant", doc["label_factory_id"])
	assert.Equal(t, int64(1), doc["scope_company"])
}

func TestReindexKindSkipsSoftDeleted(t *testing.T) {
	f := newSearchFixture(t)
	_, err := f.db.Exec(`UPDATE machines SET deleted = 1 WHERE id = 3`)
	require.NoError(t, err)

	engine := newFakeEngine()
	ix := f.indexer(engine, NewBreaker(nil, nil))

	indexed, err := ix.ReindexKind(context.Background(), "machines")
	require.NoError(t, err)
	assert.Equal(t, 2, indexed)
	assert.NotContains(t, engine.docs["machines"], int64(3))
}

func TestReindexKindUnknown(t *testing.T) {
	f := newSearchFixture(t)
	ix := f.indexer(newFakeEngine(), NewBreaker(nil, nil))

	_, err := ix.ReindexKind(context.Background(), "gadgets")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestReindexKindRefusesWhenBreakerOpen(t *testing.T) {
	f := newSearchFixture(t)
	breaker := NewBreaker(nil, nil)
	breaker.Trip(errors.New("down"))
	ix := f.indexer(newFakeEngine(), breaker)

	_, err := ix.ReindexKind(context.Background(), "machines")
	assert.Error(t, err)
}

func TestReindexKindTripsOnConnectionError(t *testing.T) {
	f := newSearchFixture(t)
	engine := newFakeEngine()
	engine.indexErr = &connError{err: errors.New("connection reset")}
	breaker := NewBreaker(f.logger, nil)
	ix := f.indexer(engine, breaker)

	_, err := ix.ReindexKind(context.Background(), "machines")
	assert.Error(t, err)
	assert.True(t, breaker.Open())
}

func TestIndexRecord(t *testing.T) {
	f := newSearchFixture(t)
	engine := newFakeEngine()
	ix := f.indexer(engine, NewBreaker(nil, nil))
	ctx := context.Background()

	require.NoError(t, ix.IndexRecord(ctx, "machines", 2))
	doc := engine.docs["machines"][2]
	require.NotNil(t, doc)
	assert.Equal(t, "M-2 Drill Press Hall B", doc["fulltext"])
}

func TestReindexAndIncrementalDocumentsMatch(t *testing.T) {
	f := newSearchFixture(t)
	ctx := context.Background()

	bulk := newFakeEngine()
	_, err := f.indexer(bulk, NewBreaker(nil, nil)).ReindexKind(ctx, "machines")
	require.NoError(t, err)

	// Refreshing the same records one by one must produce the exact
	// documents the full rebuild wrote.
	incremental := newFakeEngine()
	ix := f.indexer(incremental, NewBreaker(nil, nil))
	for id := range bulk.docs["machines"] {
		require.NoError(t, ix.IndexRecord(ctx, "machines", id))
	}
	assert.Equal(t, bulk.docs["machines"], incremental.docs["machines"])
}

func TestIndexRecordRemovesVanishedRecord(t *testing.T) {
	f := newSearchFixture(t)
	engine := newFakeEngine()
	ix := f.indexer(engine, NewBreaker(nil, nil))
	ctx := context.Background()

	require.NoError(t, ix.IndexRecord(ctx, "machines", 2))
	require.Contains(t, engine.docs["machines"], int64(2))

	// Soft-delete the row; refreshing it now removes the document.
	_, err := f.db.Exec(`UPDATE machines SET deleted = 1 WHERE id = 2`)
	require.NoError(t, err)
	require.NoError(t, ix.IndexRecord(ctx, "machines", 2))
	assert.NotContains(t, engine.docs["machines"], int64(2))
}

func TestIndexRecordNoopWhenBreakerOpen(t *testing.T) {
	f := newSearchFixture(t)
	engine := newFakeEngine()
	breaker := NewBreaker(nil, nil)
	breaker.Trip(errors.New("down"))
	ix := f.indexer(engine, breaker)

	// Post-write maintenance quietly skips; the next full reindex after a
	// restart repairs the index.
	assert.NoError(t, ix.IndexRecord(context.Background(), "machines", 1))
	assert.Empty(t, engine.docs["machines"])
}

func TestDeleteRecord(t *testing.T) {
	f := newSearchFixture(t)
	engine := newFakeEngine()
	ix := f.indexer(engine, NewBreaker(nil, nil))
	ctx := context.Background()

	require.NoError(t, ix.IndexRecord(ctx, "machines", 1))
	require.NoError(t, ix.DeleteRecord(ctx, "machines", 1))
	assert.NotContains(t, engine.docs["machines"], int64(1))

	assert.ErrorIs(t, ix.DeleteRecord(ctx, "gadgets", 1), ErrUnknownKind)
}
