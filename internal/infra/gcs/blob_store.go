package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"

	"github.com/jinford/portfolio-rag/internal/core/store"
)

const contentType = "application/octet-stream"

// BlobStore は Google Cloud Storage のバケットに Blob を保存する
type BlobStore struct {
	svc    *storage.Service
	bucket string
	prefix string
}

type config struct {
	prefix     string
	clientOpts []option.ClientOption
}

// Option は BlobStore のオプション設定
type Option func(*config)

// WithPrefix はオブジェクト名の先頭に付けるパスを指定する
func WithPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

// WithClientOptions は Storage クライアントのオプションを追加する
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *config) {
		c.clientOpts = append(c.clientOpts, opts...)
	}
}

// NewBlobStore は bucket を保存先とする BlobStore を作成します
// 認証はアプリケーションデフォルト認証情報を使用します
func NewBlobStore(ctx context.Context, bucket string, opts ...Option) (*BlobStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	svc, err := storage.NewService(ctx, cfg.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	return &BlobStore{
		svc:    svc,
		bucket: bucket,
		prefix: cfg.prefix,
	}, nil
}

func (s *BlobStore) objectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Put はキーに対応するオブジェクトをアップロードする
func (s *BlobStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	obj := &storage.Object{
		Name:        s.objectName(key),
		ContentType: contentType,
	}
	_, err := s.svc.Objects.Insert(s.bucket, obj).
		Media(r, googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", obj.Name, err)
	}
	return nil
}

// Get はオブジェクトをダウンロードして w に書き出す。存在しない場合は store.ErrBlobNotFound を返す
func (s *BlobStore) Get(ctx context.Context, key string, w io.Writer) error {
	name := s.objectName(key)
	resp, err := s.svc.Objects.Get(s.bucket, name).Context(ctx).Download()
	if err != nil {
		if isNotFound(err) {
			return store.ErrBlobNotFound
		}
		return fmt.Errorf("failed to download object %s: %w", name, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read object %s: %w", name, err)
	}
	return nil
}

// Delete はオブジェクトを削除する。存在しない場合も成功とする
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	name := s.objectName(key)
	if err := s.svc.Objects.Delete(s.bucket, name).Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete object %s: %w", name, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound
	}
	return false
}

// インターフェース実装の確認
var _ store.BlobStore = (*BlobStore)(nil)
