package bolt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jinford/portfolio-rag/internal/core/store"
)

var bucketName = []byte("portfolio_index_blobs")

// BlobStore は単一ファイルの bbolt データベースに Blob を保存する
// ローカル開発や単一プロセス運用向け
type BlobStore struct {
	db *bbolt.DB
}

// Open は path のデータベースを開く。存在しない場合は作成する
func Open(path string) (*BlobStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &BlobStore{db: db}, nil
}

// Close はデータベースを閉じる
func (s *BlobStore) Close() error {
	return s.db.Close()
}

// Put はキーの内容をバケットに上書き保存する
func (s *BlobStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), buf.Bytes())
	})
}

// Get はキーの内容を w に書き出す。存在しない場合は store.ErrBlobNotFound を返す
func (s *BlobStore) Get(ctx context.Context, key string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		// 値はトランザクション内でのみ有効なので、ここで書き出す
		data := tx.Bucket(bucketName).Get([]byte(key))
		if data == nil {
			return store.ErrBlobNotFound
		}
		_, err := w.Write(data)
		return err
	})
}

// Delete はキーを削除する。存在しない場合も成功とする
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

// インターフェース実装の確認
var _ store.BlobStore = (*BlobStore)(nil)
