package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultSingleTimeout は単一Embedding呼び出しのタイムアウト
	DefaultSingleTimeout = 30 * time.Second

	// DefaultBatchTimeout はバッチEmbedding呼び出しのタイムアウト
	DefaultBatchTimeout = 60 * time.Second

	// DefaultMaxBatchSize は1回のバッチ呼び出しに含めるテキスト数の上限
	DefaultMaxBatchSize = 100
)

// Vector は固定次元のEmbeddingベクトル
type Vector = []float32

// Embedder はテキストをベクトルに変換するインターフェース
type Embedder interface {
	// EmbedOne は単一テキストのEmbeddingを生成する
	EmbedOne(ctx context.Context, text string) (Vector, error)

	// EmbedMany は複数テキストのEmbeddingを入力順に生成する
	EmbedMany(ctx context.Context, texts []string) ([]Vector, error)
}

// SingleEndpoint は単一Embedding用のエンドポイント（APIリビジョン）
type SingleEndpoint interface {
	Name() string
	EmbedOne(ctx context.Context, text string) (Vector, error)
}

// BatchEndpoint はバッチEmbedding用のエンドポイント（APIリビジョン）
type BatchEndpoint interface {
	Name() string
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
}

// Provider は優先順位付きのエンドポイント群をフォールバックしながら呼び出す Embedder 実装
type Provider struct {
	single        []SingleEndpoint
	batch         []BatchEndpoint
	singleTimeout time.Duration
	batchTimeout  time.Duration
	maxBatchSize  int
	limiter       *rate.Limiter
	logger        *slog.Logger
}

// ProviderOption は Provider のオプション設定
type ProviderOption func(*Provider)

// WithSingleTimeout は単一呼び出しのタイムアウトを上書きする
func WithSingleTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.singleTimeout = d
		}
	}
}

// WithBatchTimeout はバッチ呼び出しのタイムアウトを上書きする
func WithBatchTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.batchTimeout = d
		}
	}
}

// WithMaxBatchSize はバッチ呼び出し1回あたりのテキスト数の上限を上書きする
func WithMaxBatchSize(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.maxBatchSize = n
		}
	}
}

// WithRateLimit は試行ごとのクライアント側レート制限を設定する
// rps が0以下の場合は制限しない
func WithRateLimit(rps float64, burst int) ProviderOption {
	return func(p *Provider) {
		if rps <= 0 {
			p.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithProviderLogger は Provider にロガーを設定する
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider は新しい Provider を作成する
// single は最低1件必要で、batch は空でもよい（その場合は常に逐次実行）
func NewProvider(single []SingleEndpoint, batch []BatchEndpoint, opts ...ProviderOption) (*Provider, error) {
	if len(single) == 0 {
		return nil, ErrNoEndpoints
	}

	p := &Provider{
		single:        single,
		batch:         batch,
		singleTimeout: DefaultSingleTimeout,
		batchTimeout:  DefaultBatchTimeout,
		maxBatchSize:  DefaultMaxBatchSize,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// EmbedOne は単一エンドポイントを優先順に試行し、最初に成功した結果を返す
func (p *Provider) EmbedOne(ctx context.Context, text string) (Vector, error) {
	var lastErr error
	for i, ep := range p.single {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}

		vec, err := p.embedOneAt(ctx, ep, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		p.logger.Warn("embedding endpoint failed",
			"op", "embed_one",
			"endpoint", ep.Name(),
			"attempt", i+1,
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, &ProviderError{Op: "embed_one", Attempts: i + 1, Err: ctx.Err()}
		}
	}
	return nil, &ProviderError{Op: "embed_one", Attempts: len(p.single), Err: lastErr}
}

// EmbedMany はテキストを上限件数ごとのグループに分け、グループ単位でバッチエンドポイントを優先順に試行する
// あるグループで全て失敗した場合は、そのグループだけ EmbedOne を1件ずつ逐次呼び出してフォールバックする
func (p *Provider) EmbedMany(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return []Vector{}, nil
	}

	vectors := make([]Vector, 0, len(texts))
	for start := 0; start < len(texts); start += p.maxBatchSize {
		end := min(start+p.maxBatchSize, len(texts))
		group, err := p.embedGroup(ctx, texts[start:end], start, len(texts))
		if err != nil {
			return nil, err
		}
		if len(vectors) > 0 && len(group[0]) != len(vectors[0]) {
			return nil, fmt.Errorf("%w: dimension changed from %d to %d at text %d", ErrInvalidEmbedding, len(vectors[0]), len(group[0]), start+1)
		}
		vectors = append(vectors, group...)
	}
	return vectors, nil
}

// embedGroup は1グループ分の Embedding を生成する。offset と total はログとエラー用
func (p *Provider) embedGroup(ctx context.Context, texts []string, offset, total int) ([]Vector, error) {
	var lastErr error
	for i, ep := range p.batch {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}

		vectors, err := p.embedBatchAt(ctx, ep, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		p.logger.Warn("batch embedding endpoint failed",
			"op", "embed_many",
			"endpoint", ep.Name(),
			"attempt", i+1,
			"offset", offset,
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, &ProviderError{Op: "embed_many", Attempts: i + 1, Err: ctx.Err()}
		}
	}

	if len(p.batch) > 0 {
		p.logger.Warn("all batch endpoints failed, embedding one by one",
			"texts", len(texts),
			"offset", offset,
			"error", lastErr,
		)
	}

	vectors := make([]Vector, 0, len(texts))
	for i, text := range texts {
		vec, err := p.EmbedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d of %d: %w", offset+i+1, total, err)
		}
		if len(vectors) > 0 && len(vec) != len(vectors[0]) {
			return nil, fmt.Errorf("%w: dimension changed from %d to %d at text %d", ErrInvalidEmbedding, len(vectors[0]), len(vec), offset+i+1)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (p *Provider) embedOneAt(ctx context.Context, ep SingleEndpoint, text string) (Vector, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.singleTimeout)
	defer cancel()

	vec, err := ep.EmbedOne(attemptCtx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrInvalidEmbedding)
	}
	return vec, nil
}

func (p *Provider) embedBatchAt(ctx context.Context, ep BatchEndpoint, texts []string) ([]Vector, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.batchTimeout)
	defer cancel()

	vectors, err := ep.EmbedBatch(attemptCtx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrInvalidEmbedding, len(texts), len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: empty vector at %d", ErrInvalidEmbedding, i)
		}
		if len(vec) != len(vectors[0]) {
			return nil, fmt.Errorf("%w: mixed dimensions %d and %d", ErrInvalidEmbedding, len(vectors[0]), len(vec))
		}
	}
	return vectors, nil
}

func (p *Provider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("embedding rate limiter: %w", err)
	}
	return nil
}

// インターフェース実装の確認
var _ Embedder = (*Provider)(nil)
