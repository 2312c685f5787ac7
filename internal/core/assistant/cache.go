package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/jinford/portfolio-rag/internal/core/answer"
	"github.com/jinford/portfolio-rag/internal/core/index"
	"github.com/jinford/portfolio-rag/internal/core/store"
)

const (
	// DefaultCacheCapacity はキャッシュするチェーン数の既定上限
	DefaultCacheCapacity = 256

	// DefaultLoadTimeout はキャッシュミス時のインデックス復元のタイムアウト
	DefaultLoadTimeout = 60 * time.Second
)

// ErrNotFound はポートフォリオのチャットボットがまだ学習されていない場合に返されます
// 利用者にはドキュメントの再アップロードを促します
var ErrNotFound = errors.New("chatbot not trained yet, re-upload required")

// IndexLoader は保存済みインデックスを復元するインターフェース
type IndexLoader interface {
	Load(ctx context.Context, portfolioID string) (*index.VectorIndex, error)
}

// ChainFactory はインデックスから回答チェーンを組み立てる
type ChainFactory func(idx *index.VectorIndex) answer.Chain

// ChainCache はポートフォリオIDごとの回答チェーンを保持するキャッシュ
// 同一ポートフォリオへの同時キャッシュミスはインデックス復元を1回に集約する
type ChainCache struct {
	loader      IndexLoader
	factory     ChainFactory
	capacity    int
	loadTimeout time.Duration
	logger      *slog.Logger

	chains chainStore
	group  singleflight.Group
}

// CacheOption は ChainCache のオプション設定
type CacheOption func(*ChainCache)

// WithCapacity はキャッシュの上限件数を設定する。0 は無制限
func WithCapacity(n int) CacheOption {
	return func(c *ChainCache) {
		if n >= 0 {
			c.capacity = n
		}
	}
}

// WithLoadTimeout はインデックス復元のタイムアウトを設定する
func WithLoadTimeout(d time.Duration) CacheOption {
	return func(c *ChainCache) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// WithCacheLogger は ChainCache にロガーを設定する
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *ChainCache) {
		c.logger = logger
	}
}

// NewChainCache は新しい ChainCache を作成する
func NewChainCache(loader IndexLoader, factory ChainFactory, opts ...CacheOption) (*ChainCache, error) {
	c := &ChainCache{
		loader:      loader,
		factory:     factory,
		capacity:    DefaultCacheCapacity,
		loadTimeout: DefaultLoadTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.capacity == 0 {
		c.chains = newMapStore()
		return c, nil
	}

	chains, err := lru.NewWithEvict(c.capacity, func(portfolioID string, _ answer.Chain) {
		c.logger.Debug("chain evicted from cache", "portfolio_id", portfolioID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chain cache: %w", err)
	}
	c.chains = &lruStore{cache: chains}
	return c, nil
}

// GetOrBuild はキャッシュ済みのチェーンを返す
// キャッシュにない場合は保存済みインデックスから復元して登録する
func (c *ChainCache) GetOrBuild(ctx context.Context, portfolioID string) (answer.Chain, error) {
	if chain, ok := c.chains.get(portfolioID); ok {
		return chain, nil
	}

	v, err, shared := c.group.Do(portfolioID, func() (any, error) {
		if chain, ok := c.chains.get(portfolioID); ok {
			return chain, nil
		}

		// 復元は呼び出し元のキャンセルに影響されず、待っている全員に結果を共有する
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		start := time.Now()
		idx, err := c.loader.Load(loadCtx, portfolioID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: portfolio %s: %w", ErrNotFound, portfolioID, err)
			}
			return nil, fmt.Errorf("failed to rehydrate chain for portfolio %s: %w", portfolioID, err)
		}

		// 復元中に新しいチェーンが登録されていればそちらを優先する
		chain := c.chains.putIfAbsent(portfolioID, c.factory(idx))
		c.logger.Info("chain rehydrated from index store",
			"portfolio_id", portfolioID,
			"entries", idx.Len(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return chain, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("cache miss coalesced", "portfolio_id", portfolioID)
	}
	return v.(answer.Chain), nil
}

// Put はポートフォリオのチェーンを置き換える
func (c *ChainCache) Put(portfolioID string, chain answer.Chain) {
	c.chains.put(portfolioID, chain)
}

// Invalidate はポートフォリオのチェーンをキャッシュから取り除く
func (c *ChainCache) Invalidate(portfolioID string) {
	c.chains.remove(portfolioID)
}

// Contains はポートフォリオのチェーンがキャッシュ済みか判定する
func (c *ChainCache) Contains(portfolioID string) bool {
	_, ok := c.chains.peek(portfolioID)
	return ok
}

// Len はキャッシュ済みのチェーン数を返す
func (c *ChainCache) Len() int {
	return c.chains.len()
}

type chainStore interface {
	get(key string) (answer.Chain, bool)
	peek(key string) (answer.Chain, bool)
	put(key string, chain answer.Chain)
	putIfAbsent(key string, chain answer.Chain) answer.Chain
	remove(key string)
	len() int
}

type lruStore struct {
	cache *lru.Cache[string, answer.Chain]
}

func (s *lruStore) get(key string) (answer.Chain, bool) { return s.cache.Get(key) }

func (s *lruStore) peek(key string) (answer.Chain, bool) { return s.cache.Peek(key) }

func (s *lruStore) put(key string, chain answer.Chain) { s.cache.Add(key, chain) }

func (s *lruStore) putIfAbsent(key string, chain answer.Chain) answer.Chain {
	if previous, ok, _ := s.cache.PeekOrAdd(key, chain); ok {
		return previous
	}
	return chain
}

func (s *lruStore) remove(key string) { s.cache.Remove(key) }

func (s *lruStore) len() int { return s.cache.Len() }

// mapStore は上限なしのキャッシュ
type mapStore struct {
	mu     sync.RWMutex
	chains map[string]answer.Chain
}

func newMapStore() *mapStore {
	return &mapStore{chains: make(map[string]answer.Chain)}
}

func (s *mapStore) get(key string) (answer.Chain, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain, ok := s.chains[key]
	return chain, ok
}

func (s *mapStore) peek(key string) (answer.Chain, bool) { return s.get(key) }

func (s *mapStore) put(key string, chain answer.Chain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains[key] = chain
}

func (s *mapStore) putIfAbsent(key string, chain answer.Chain) answer.Chain {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.chains[key]; ok {
		return existing
	}
	s.chains[key] = chain
	return chain
}

func (s *mapStore) remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chains, key)
}

func (s *mapStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chains)
}
