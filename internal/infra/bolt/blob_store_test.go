package bolt

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/portfolio-rag/internal/core/store"
)

func TestBlobStore_PutGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexes.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	var buf bytes.Buffer
	err = s.Get(ctx, "p1/index.pfix", &buf)
	assert.ErrorIs(t, err, store.ErrBlobNotFound)

	require.NoError(t, s.Put(ctx, "p1/index.pfix", strings.NewReader("first"), 5))
	require.NoError(t, s.Put(ctx, "p1/index.pfix", strings.NewReader("second"), 6))

	buf.Reset()
	require.NoError(t, s.Get(ctx, "p1/index.pfix", &buf))
	assert.Equal(t, "second", buf.String())

	require.NoError(t, s.Delete(ctx, "p1/index.pfix"))
	require.NoError(t, s.Delete(ctx, "p1/index.pfix"))
	err = s.Get(ctx, "p1/index.pfix", &buf)
	assert.ErrorIs(t, err, store.ErrBlobNotFound)
}

func TestBlobStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexes.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "p1/index.pfix", strings.NewReader("durable"), -1))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var buf bytes.Buffer
	require.NoError(t, s.Get(ctx, "p1/index.pfix", &buf))
	assert.Equal(t, "durable", buf.String())
}

func TestBlobStore_WithIndexStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "indexes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	indexes := store.NewIndexStore(s, store.WithScratchDir(t.TempDir()))
	_, err = indexes.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
