package store_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/portfolio-rag/internal/core/embedding"
	"github.com/jinford/portfolio-rag/internal/core/index"
	"github.com/jinford/portfolio-rag/internal/core/ingestion/chunk"
	"github.com/jinford/portfolio-rag/internal/core/store"
	testutil "github.com/jinford/portfolio-rag/internal/core/testing"
)

func sampleIndex(t *testing.T, text string) *index.VectorIndex {
	t.Helper()
	idx, err := index.Build(
		[]chunk.Chunk{{Text: text, Metadata: map[string]string{"source": "text"}}},
		[]embedding.Vector{{0.6, 0.8}},
	)
	require.NoError(t, err)
	return idx
}

func newStore(t *testing.T, blobs store.BlobStore) (*store.IndexStore, string) {
	t.Helper()
	scratch := t.TempDir()
	return store.NewIndexStore(blobs,
		store.WithScratchDir(scratch),
		store.WithLogger(testutil.DiscardLogger()),
	), scratch
}

func assertScratchEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory must be cleaned up")
}

func TestIndexStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	blobs := testutil.NewMemoryBlobStore()
	s, scratch := newStore(t, blobs)

	require.NoError(t, s.Save(ctx, "portfolio-1", sampleIndex(t, "first build")))
	_, ok := blobs.Data("portfolio-1/index.pfix")
	assert.True(t, ok)

	loaded, err := s.Load(ctx, "portfolio-1")
	require.NoError(t, err)
	assert.Equal(t, "first build", loaded.Chunks()[0].Text)

	// 上書き保存
	require.NoError(t, s.Save(ctx, "portfolio-1", sampleIndex(t, "second build")))
	loaded, err = s.Load(ctx, "portfolio-1")
	require.NoError(t, err)
	assert.Equal(t, "second build", loaded.Chunks()[0].Text)
	assert.Equal(t, 1, blobs.Len())

	assertScratchEmpty(t, scratch)
}

func TestIndexStore_LoadMissingReturnsNotFound(t *testing.T) {
	s, scratch := newStore(t, testutil.NewMemoryBlobStore())

	_, err := s.Load(context.Background(), "unknown")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assertScratchEmpty(t, scratch)
}

func TestIndexStore_LoadCorruptReturnsNotFound(t *testing.T) {
	blobs := testutil.NewMemoryBlobStore()
	blobs.Set("broken/index.pfix", []byte("garbage that is long enough to pass the size check but is not an index"))
	s, scratch := newStore(t, blobs)

	_, err := s.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, err, index.ErrCorruptIndex)
	assertScratchEmpty(t, scratch)
}

func TestIndexStore_TransientErrorsAreNotNotFound(t *testing.T) {
	errNetwork := errors.New("connection reset")
	blobs := testutil.NewMemoryBlobStore()
	blobs.GetErr = errNetwork
	blobs.PutErr = errNetwork
	s, scratch := newStore(t, blobs)
	ctx := context.Background()

	_, err := s.Load(ctx, "portfolio-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNetwork)
	assert.NotErrorIs(t, err, store.ErrNotFound)

	err = s.Save(ctx, "portfolio-1", sampleIndex(t, "text"))
	assert.ErrorIs(t, err, errNetwork)

	assertScratchEmpty(t, scratch)
}

func TestIndexStore_Delete(t *testing.T) {
	ctx := context.Background()
	blobs := testutil.NewMemoryBlobStore()
	s, _ := newStore(t, blobs)

	require.NoError(t, s.Save(ctx, "portfolio-1", sampleIndex(t, "text")))
	require.NoError(t, s.Delete(ctx, "portfolio-1"))

	_, err := s.Load(ctx, "portfolio-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestKey_ValidatesPortfolioID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    string
		wantErr bool
	}{
		{name: "UUID", id: "0b6f5c1e-8a5e-4c0e-9d59-6d4c5c1f2e3a", want: "0b6f5c1e-8a5e-4c0e-9d59-6d4c5c1f2e3a/index.pfix"},
		{name: "空文字", id: "", wantErr: true},
		{name: "空白のみ", id: "  ", wantErr: true},
		{name: "スラッシュを含む", id: "a/b", wantErr: true},
		{name: "親ディレクトリ参照", id: "..", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := store.Key(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, store.ErrInvalidPortfolioID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}
