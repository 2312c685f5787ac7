package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jinford/portfolio-rag/internal/core/index"
)

// IndexFileName はポートフォリオごとのインデックスBlob名
const IndexFileName = "index.pfix"

var (
	// ErrNotFound は指定ポートフォリオのインデックスが利用できない場合に返されます
	// 未構築の場合と、保存済みBlobが破損している場合の両方を含みます
	ErrNotFound = errors.New("index not found")

	// ErrBlobNotFound は BlobStore にキーが存在しない場合に返されます
	ErrBlobNotFound = errors.New("blob not found")

	// ErrInvalidPortfolioID はポートフォリオIDがキーとして使えない場合に返されます
	ErrInvalidPortfolioID = errors.New("invalid portfolio id")
)

// BlobStore はバイト列を永続化するストレージのインターフェース
type BlobStore interface {
	// Put は key に r の内容を上書き保存する
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get は key の内容を w に書き出す。存在しない場合は ErrBlobNotFound を返す
	Get(ctx context.Context, key string, w io.Writer) error

	// Delete は key を削除する。存在しない場合も成功とする
	Delete(ctx context.Context, key string) error
}

// IndexStore はポートフォリオ単位でインデックスを保存・復元する
type IndexStore struct {
	blobs      BlobStore
	scratchDir string
	logger     *slog.Logger
}

// Option は IndexStore のオプション設定
type Option func(*IndexStore)

// WithScratchDir は一時ファイルを作成するディレクトリを指定する
func WithScratchDir(dir string) Option {
	return func(s *IndexStore) {
		s.scratchDir = dir
	}
}

// WithLogger は IndexStore にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(s *IndexStore) {
		s.logger = logger
	}
}

// NewIndexStore は新しい IndexStore を作成する
func NewIndexStore(blobs BlobStore, opts ...Option) *IndexStore {
	s := &IndexStore{
		blobs:  blobs,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Key はポートフォリオIDに対応するBlobキーを返す
func Key(portfolioID string) (string, error) {
	if err := validatePortfolioID(portfolioID); err != nil {
		return "", err
	}
	return portfolioID + "/" + IndexFileName, nil
}

// Save はインデックスをシリアライズして保存する。既存のインデックスは上書きされる
func (s *IndexStore) Save(ctx context.Context, portfolioID string, idx *index.VectorIndex) error {
	key, err := Key(portfolioID)
	if err != nil {
		return err
	}

	data, err := index.Serialize(idx)
	if err != nil {
		return fmt.Errorf("failed to serialize index: %w", err)
	}

	return s.withScratch(func(dir string) error {
		path := filepath.Join(dir, IndexFileName)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("failed to write scratch file: %w", err)
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open scratch file: %w", err)
		}
		defer f.Close()

		if err := s.blobs.Put(ctx, key, f, int64(len(data))); err != nil {
			return fmt.Errorf("failed to upload index %s: %w", key, err)
		}

		s.logger.Info("index saved",
			"portfolio_id", portfolioID,
			"key", key,
			"bytes", len(data),
			"entries", idx.Len(),
		)
		return nil
	})
}

// Load は保存済みインデックスを復元する
// 存在しない場合や破損している場合は ErrNotFound を返す
func (s *IndexStore) Load(ctx context.Context, portfolioID string) (*index.VectorIndex, error) {
	key, err := Key(portfolioID)
	if err != nil {
		return nil, err
	}

	var idx *index.VectorIndex
	err = s.withScratch(func(dir string) error {
		path := filepath.Join(dir, IndexFileName)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create scratch file: %w", err)
		}

		getErr := s.blobs.Get(ctx, key, f)
		closeErr := f.Close()
		if getErr != nil {
			if errors.Is(getErr, ErrBlobNotFound) {
				return fmt.Errorf("%w: portfolio %s", ErrNotFound, portfolioID)
			}
			return fmt.Errorf("failed to download index %s: %w", key, getErr)
		}
		if closeErr != nil {
			return fmt.Errorf("failed to close scratch file: %w", closeErr)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read scratch file: %w", err)
		}

		idx, err = index.Deserialize(data)
		if err != nil {
			s.logger.Warn("stored index is unreadable, treating as not found",
				"portfolio_id", portfolioID,
				"key", key,
				"error", err,
			)
			return errors.Join(fmt.Errorf("%w: portfolio %s", ErrNotFound, portfolioID), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// Delete はポートフォリオのインデックスを削除する
func (s *IndexStore) Delete(ctx context.Context, portfolioID string) error {
	key, err := Key(portfolioID)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", key, err)
	}
	s.logger.Info("index deleted", "portfolio_id", portfolioID, "key", key)
	return nil
}

// withScratch は一時ディレクトリを作成して fn を実行し、成否に関わらず削除する
func (s *IndexStore) withScratch(fn func(dir string) error) error {
	dir, err := os.MkdirTemp(s.scratchDir, "portfolio-index-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("failed to remove scratch directory", "dir", dir, "error", err)
		}
	}()
	return fn(dir)
}

func validatePortfolioID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("%w: empty", ErrInvalidPortfolioID)
	case strings.ContainsAny(id, "/\\"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidPortfolioID, id)
	case id == "." || strings.Contains(id, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidPortfolioID, id)
	}
	return nil
}
