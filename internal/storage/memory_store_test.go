package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Caia-Tech/smartmeta/pkg/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoc(id string, created time.Time) *document.Document {
	return &document.Document{
		ID:        id,
		Source:    document.Source{Type: "txt", Filename: id + ".txt", Size: 11},
		Content:   document.Content{Text: "hello world"},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestMemoryStore_PutGetDelete(t *testing.T) {
	metrics := NewSimpleMetricsCollector()
	store := NewMemoryStore(time.Minute, metrics)
	ctx := context.Background()

	doc := newDoc("doc-1", time.Now())
	require.NoError(t, store.Put(ctx, doc))

	got, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got.Content.Text)

	got.Content.Text = "mutated"
	again, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "hello world", again.Content.Text)

	require.NoError(t, store.Delete(ctx, "doc-1"))
	_, err = store.Get(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "doc-1"), ErrNotFound)

	summary := metrics.GetMetricsSummary()
	assert.Equal(t, 1, summary.ByBackend["memory"]["put"].SuccessCount)
	assert.Equal(t, 1, summary.ByBackend["memory"]["delete"].FailureCount)
}

func TestMemoryStore_RejectsInvalidDocuments(t *testing.T) {
	store := NewMemoryStore(0, nil)

	assert.Error(t, store.Put(context.Background(), nil))
	assert.Error(t, store.Put(context.Background(), &document.Document{ID: "x"}))
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(time.Minute, nil)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newDoc("a", now)))
	require.NoError(t, store.Put(ctx, newDoc("b", now)))

	now = now.Add(45 * time.Second)
	_, err := store.Get(ctx, "a")
	require.NoError(t, err, "reads extend the lifetime")

	now = now.Add(30 * time.Second)
	_, err = store.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)

	now = now.Add(2 * time.Minute)
	docs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	store := NewMemoryStore(time.Hour, nil)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, store.Put(ctx, newDoc("old", base.Add(-2*time.Minute))))
	require.NoError(t, store.Put(ctx, newDoc("new", base)))
	require.NoError(t, store.Put(ctx, newDoc("mid", base.Add(-time.Minute))))

	docs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "new", docs[0].ID)
	assert.Equal(t, "mid", docs[1].ID)
	assert.Equal(t, "old", docs[2].ID)
}

func TestMemoryStore_Janitor(t *testing.T) {
	store := NewMemoryStore(time.Millisecond, nil)
	defer store.Close()

	require.NoError(t, store.Put(context.Background(), newDoc("gone", time.Now())))
	store.StartJanitor(5 * time.Millisecond)

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, store.Close())
}

func TestSimpleMetricsCollector_Bounded(t *testing.T) {
	metrics := NewBoundedMetricsCollector(2)
	for i := 0; i < 5; i++ {
		metrics.RecordMetric(StorageMetrics{OperationType: "get", Backend: "memory", Duration: int64(i + 1), Success: i%2 == 0})
	}

	assert.Len(t, metrics.GetMetrics(), 2)
	summary := metrics.GetMetricsSummary()
	assert.Equal(t, 5, summary.TotalOperations)

	stats := summary.ByBackend["memory"]["get"]
	assert.Equal(t, 5, stats.Count)
	assert.Equal(t, 3, stats.SuccessCount)
	assert.Equal(t, int64(1), stats.MinDuration)
	assert.Equal(t, int64(5), stats.MaxDuration)
	assert.InDelta(t, 60.0, stats.GetSuccessRate(), 0.001)

	metrics.ClearMetrics()
	assert.Empty(t, metrics.GetMetrics())
	assert.Equal(t, 0, metrics.GetMetricsSummary().TotalOperations)
}
