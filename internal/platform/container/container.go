package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"

	"github.com/jinford/portfolio-rag/internal/core/answer"
	"github.com/jinford/portfolio-rag/internal/core/assistant"
	"github.com/jinford/portfolio-rag/internal/core/embedding"
	"github.com/jinford/portfolio-rag/internal/core/ingestion"
	"github.com/jinford/portfolio-rag/internal/core/ingestion/chunk"
	"github.com/jinford/portfolio-rag/internal/core/store"
	"github.com/jinford/portfolio-rag/internal/infra/bolt"
	"github.com/jinford/portfolio-rag/internal/infra/gcs"
	"github.com/jinford/portfolio-rag/internal/infra/gemini"
	"github.com/jinford/portfolio-rag/internal/infra/openai"
	"github.com/jinford/portfolio-rag/internal/infra/postgres"
	"github.com/jinford/portfolio-rag/internal/platform/config"
	"github.com/jinford/portfolio-rag/internal/platform/database"
)

// ServiceContainer はアプリケーションの依存関係を保持する
type ServiceContainer struct {
	Service *assistant.Service
	Indexes *store.IndexStore

	logger  *slog.Logger
	closers []func() error
}

type options struct {
	tokenCounter chunk.TokenCounter
	blobs        store.BlobStore
}

// Option はコンテナ生成時のオプション
type Option func(*options)

// WithTokenCounter はチャンクのトークン数計測に使う実装を指定する
// 未指定の場合は tiktoken を読み込む
func WithTokenCounter(counter chunk.TokenCounter) Option {
	return func(o *options) {
		o.tokenCounter = counter
	}
}

// WithBlobStore は設定の保存先を無視して指定の BlobStore を使う
func WithBlobStore(blobs store.BlobStore) Option {
	return func(o *options) {
		o.blobs = blobs
	}
}

// llmStack はプロバイダーごとに生成した Embedder と Generator
type llmStack struct {
	embedder       embedding.Embedder
	generator      answer.Generator
	embeddingModel string
}

// NewContainer は設定とロガーからコンテナを生成する
func NewContainer(ctx context.Context, logger *slog.Logger, cfg *config.Config, opts ...Option) (*ServiceContainer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c := &ServiceContainer{logger: logger}

	// LLM (Gemini / OpenAI)
	stack, err := newLLMStack(cfg, logger)
	if err != nil {
		return nil, err
	}

	// BlobStore (GCS / PostgreSQL / bbolt)
	blobs := o.blobs
	if blobs == nil {
		blobs, err = c.newBlobStore(ctx, cfg)
		if err != nil {
			c.Close()
			return nil, err
		}
	}
	indexes := store.NewIndexStore(blobs,
		store.WithScratchDir(cfg.Store.ScratchDir),
		store.WithLogger(logger),
	)

	// Chunker / TokenCounter
	counter := o.tokenCounter
	if counter == nil {
		tiktoken, err := chunk.NewTiktokenCounter()
		if err != nil {
			// トークン数はレポート用なので、読み込めなくても構築は続ける
			logger.Warn("token counter unavailable", "error", err)
		} else {
			counter = tiktoken
		}
	}
	var chunkOpts []chunk.Option
	if counter != nil {
		chunkOpts = append(chunkOpts, chunk.WithTokenCounter(counter))
	}
	chunker, err := chunk.New(chunk.Config{MaxSize: cfg.Chunk.Size, Overlap: cfg.Chunk.Overlap}, chunkOpts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("Chunker 初期化に失敗しました: %w", err)
	}

	// ChainCache
	factory := assistant.NewChainFactory(stack.embedder, stack.generator, answer.Config{
		TopK:            cfg.Generation.TopK,
		Temperature:     cfg.Generation.Temperature,
		MaxOutputTokens: cfg.Generation.MaxTokens,
		Model:           cfg.Generation.Model,
		OwnerName:       cfg.Generation.OwnerName,
	}, logger)
	cache, err := assistant.NewChainCache(indexes, factory,
		assistant.WithCapacity(cfg.ChainCacheSize),
		assistant.WithCacheLogger(logger),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("ChainCache 初期化に失敗しました: %w", err)
	}

	c.Indexes = indexes
	c.Service = assistant.NewService(
		ingestion.NewLoader(ingestion.WithLoaderLogger(logger)),
		chunker,
		stack.embedder,
		indexes,
		factory,
		cache,
		assistant.WithEmbeddingModel(stack.embeddingModel),
		assistant.WithBuildTimeout(cfg.BuildTimeout),
		assistant.WithServiceLogger(logger),
	)
	return c, nil
}

func newLLMStack(cfg *config.Config, logger *slog.Logger) (*llmStack, error) {
	providerOpts := []embedding.ProviderOption{
		embedding.WithSingleTimeout(cfg.Embedding.Timeout),
		embedding.WithBatchTimeout(cfg.Embedding.BatchTimeout),
		embedding.WithRateLimit(cfg.Embedding.RateLimit, 1),
		embedding.WithProviderLogger(logger),
	}

	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return newGeminiStack(cfg, providerOpts)
	case config.ProviderOpenAI:
		return newOpenAIStack(cfg, providerOpts)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.LLMProvider)
	}
}

func newGeminiStack(cfg *config.Config, providerOpts []embedding.ProviderOption) (*llmStack, error) {
	model := cfg.Embedding.Model
	if model == "" {
		model = gemini.DefaultEmbeddingModel
	}
	single := cfg.Gemini.EmbedEndpoints
	if len(single) == 0 {
		single = gemini.DefaultEmbedEndpoints
	}
	batch := cfg.Gemini.BatchEmbedEndpoints
	if len(batch) == 0 {
		batch = gemini.DefaultBatchEmbedEndpoints
	}

	singleEndpoints, err := gemini.NewEmbedEndpoints(cfg.Gemini.APIKey, model, single)
	if err != nil {
		return nil, fmt.Errorf("Gemini Embedder 初期化に失敗しました: %w", err)
	}
	batchEndpoints, err := gemini.NewBatchEmbedEndpoints(cfg.Gemini.APIKey, model, batch)
	if err != nil {
		return nil, fmt.Errorf("Gemini Embedder 初期化に失敗しました: %w", err)
	}
	providerOpts = append(providerOpts, embedding.WithMaxBatchSize(gemini.MaxBatchSize))
	provider, err := embedding.NewProvider(singleEndpoints, batchEndpoints, providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("Embedding Provider 初期化に失敗しました: %w", err)
	}

	generator, err := gemini.NewGenerator(cfg.Gemini.APIKey, nil,
		gemini.WithGenerateEndpoint(cfg.Gemini.GenerateEndpoint),
		gemini.WithGenerationModel(cfg.Generation.Model),
		gemini.WithGenerationTimeout(cfg.Generation.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("Gemini Generator 初期化に失敗しました: %w", err)
	}

	return &llmStack{embedder: provider, generator: generator, embeddingModel: model}, nil
}

func newOpenAIStack(cfg *config.Config, providerOpts []embedding.ProviderOption) (*llmStack, error) {
	baseURLs := cfg.OpenAI.BaseURLs
	if len(baseURLs) == 0 {
		// 空文字は SDK の既定URL
		baseURLs = []string{""}
	}

	var (
		single []embedding.SingleEndpoint
		batch  []embedding.BatchEndpoint
		model  string
	)
	for _, baseURL := range baseURLs {
		embedder, err := openai.NewEmbedder(cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.Embedding.Model),
			openai.WithBaseURL(baseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("OpenAI Embedder 初期化に失敗しました: %w", err)
		}
		single = append(single, embedder)
		batch = append(batch, embedder)
		model = embedder.ModelName()
	}
	providerOpts = append(providerOpts, embedding.WithMaxBatchSize(openai.MaxBatchSize))
	provider, err := embedding.NewProvider(single, batch, providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("Embedding Provider 初期化に失敗しました: %w", err)
	}

	generator, err := openai.NewClient(cfg.OpenAI.APIKey,
		openai.WithModel(cfg.Generation.Model),
		openai.WithTimeout(cfg.Generation.Timeout),
		openai.WithClientBaseURL(baseURLs[0]),
	)
	if err != nil {
		return nil, fmt.Errorf("OpenAI Client 初期化に失敗しました: %w", err)
	}

	return &llmStack{embedder: provider, generator: generator, embeddingModel: model}, nil
}

func (c *ServiceContainer) newBlobStore(ctx context.Context, cfg *config.Config) (store.BlobStore, error) {
	switch cfg.Store.Backend {
	case config.BackendBolt:
		blobs, err := bolt.Open(cfg.Store.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("bolt 初期化に失敗しました: %w", err)
		}
		c.closers = append(c.closers, blobs.Close)
		return blobs, nil

	case config.BackendPostgres:
		db, err := database.New(ctx, database.ConnectionParams{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
		}
		c.closers = append(c.closers, func() error {
			db.Close()
			return nil
		})
		blobs := postgres.NewBlobStore(db)
		if err := blobs.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return blobs, nil

	case config.BackendGCS:
		var gcsOpts []gcs.Option
		if cfg.Store.GCSPrefix != "" {
			gcsOpts = append(gcsOpts, gcs.WithPrefix(cfg.Store.GCSPrefix))
		}
		if cfg.Store.CredentialsFile != "" {
			gcsOpts = append(gcsOpts, gcs.WithClientOptions(option.WithCredentialsFile(cfg.Store.CredentialsFile)))
		}
		blobs, err := gcs.NewBlobStore(ctx, cfg.Store.GCSBucket, gcsOpts...)
		if err != nil {
			return nil, fmt.Errorf("GCS 初期化に失敗しました: %w", err)
		}
		return blobs, nil

	default:
		return nil, fmt.Errorf("unsupported index store backend: %q", cfg.Store.Backend)
	}
}

// Close は実行中のビルドを待ってから内部リソースを解放する
func (c *ServiceContainer) Close() error {
	if c == nil {
		return nil
	}
	if c.Service != nil {
		c.Service.Wait()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Logger はロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}
