package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"

	"github.com/jinford/portfolio-rag/internal/core/store"
	"github.com/jinford/portfolio-rag/internal/platform/database"
)

// DefaultTable は Blob を保存するテーブル名
const DefaultTable = "portfolio_index_blobs"

// BlobStore は PostgreSQL の bytea 列に Blob を保存する
type BlobStore struct {
	db    *database.Database
	table string
}

// Option は BlobStore のオプション設定
type Option func(*BlobStore)

// WithTable は保存先テーブル名を指定する
func WithTable(table string) Option {
	return func(s *BlobStore) {
		s.table = table
	}
}

// NewBlobStore は新しい BlobStore を作成します
func NewBlobStore(db *database.Database, opts ...Option) *BlobStore {
	s := &BlobStore{
		db:    db,
		table: DefaultTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema はテーブルが存在しない場合に作成します
func (s *BlobStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	data BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, pgx.Identifier{s.table}.Sanitize())

	if _, err := s.db.Pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Put はアドバイザリロックを取得した上でキーの内容を upsert します
func (s *BlobStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (key, data, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		pgx.Identifier{s.table}.Sanitize())

	_, err := database.Transact(ctx, s.db, func(adapter *database.Adapter) (struct{}, error) {
		// 同一キーへの書き込みを直列化する
		if err := adapter.Locks.Acquire(ctx, database.LockID(s.table, key)); err != nil {
			return struct{}{}, err
		}
		if _, err := adapter.Tx.Exec(ctx, query, key, buf.Bytes()); err != nil {
			return struct{}{}, fmt.Errorf("failed to upsert blob %s: %w", key, err)
		}
		return struct{}{}, nil
	})
	return err
}

// Get はキーの内容を w に書き出します。存在しない場合は store.ErrBlobNotFound を返します
func (s *BlobStore) Get(ctx context.Context, key string, w io.Writer) error {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE key = $1`, pgx.Identifier{s.table}.Sanitize())

	var data []byte
	if err := s.db.Pool.QueryRow(ctx, query, key).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrBlobNotFound
		}
		return fmt.Errorf("failed to get blob %s: %w", key, err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

// Delete はキーの行を削除します。存在しない場合も成功とします
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, pgx.Identifier{s.table}.Sanitize())
	if _, err := s.db.Pool.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// コンパイル時の型チェック
var _ store.BlobStore = (*BlobStore)(nil)
