package postgres

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/portfolio-rag/internal/core/store"
	"github.com/jinford/portfolio-rag/internal/platform/database"
)

// startPostgres は Docker 上に PostgreSQL を起動して接続を返す
// Docker が利用できない環境ではテストをスキップする
func startPostgres(t *testing.T) *database.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker is not available: %v", err)
	}
	pool.MaxWait = 60 * time.Second

	resource, err := pool.Run("postgres", "16-alpine", []string{
		"POSTGRES_USER=rag",
		"POSTGRES_PASSWORD=secret",
		"POSTGRES_DB=portfolio",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })
	_ = resource.Expire(120)

	port, err := strconv.Atoi(resource.GetPort("5432/tcp"))
	require.NoError(t, err)

	params := database.ConnectionParams{
		Host:     "localhost",
		Port:     port,
		User:     "rag",
		Password: "secret",
		DBName:   "portfolio",
		SSLMode:  "disable",
	}

	var db *database.Database
	err = pool.Retry(func() error {
		var connErr error
		db, connErr = database.New(context.Background(), params)
		return connErr
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestBlobStore_PutGetDelete(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	s := NewBlobStore(db)
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx))

	var buf bytes.Buffer
	err := s.Get(ctx, "p1/index.pfix", &buf)
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

func TestBlobStore_ConcurrentPutSameKey(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	s := NewBlobStore(db, WithTable("concurrent_blobs"))
	require.NoError(t, s.EnsureSchema(ctx))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data := fmt.Sprintf("payload-%d", i)
			assert.NoError(t, s.Put(ctx, "p1/index.pfix", strings.NewReader(data), int64(len(data))))
		}()
	}
	wg.Wait()

	// いずれかの書き込みが欠けずに残っていること
	var buf bytes.Buffer
	require.NoError(t, s.Get(ctx, "p1/index.pfix", &buf))
	assert.True(t, strings.HasPrefix(buf.String(), "payload-"))
}
