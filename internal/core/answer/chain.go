package answer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jinford/portfolio-rag/internal/core/embedding"
	"github.com/jinford/portfolio-rag/internal/core/index"
)

// Chain は質問からポートフォリオに基づく回答を生成するインターフェース
type Chain interface {
	Query(ctx context.Context, question string) (string, error)
}

// Generator はテキスト生成モデルのインターフェース
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GenerateRequest はテキスト生成のリクエスト
type GenerateRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	Model       string // 空の場合は Generator の既定モデル
}

// Retriever は類似チャンクを検索するインターフェース
type Retriever interface {
	Search(query embedding.Vector, k int) ([]index.Result, error)
}

// Config は回答生成の設定
type Config struct {
	TopK            int
	Temperature     float64
	MaxOutputTokens int
	Model           string
	OwnerName       string
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		TopK:            5,
		Temperature:     0.2,
		MaxOutputTokens: 512,
	}
}

// RetrievalChain は検索拡張生成による Chain 実装
// 1つのインデックスに束縛され、構築後は不変
type RetrievalChain struct {
	retriever Retriever
	embedder  embedding.Embedder
	generator Generator
	config    Config
	logger    *slog.Logger
}

// Option は RetrievalChain のオプション設定
type Option func(*RetrievalChain)

// WithConfig は回答生成の設定を上書きする
func WithConfig(cfg Config) Option {
	return func(c *RetrievalChain) {
		c.config = cfg
	}
}

// WithLogger は RetrievalChain にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(c *RetrievalChain) {
		c.logger = logger
	}
}

// NewRetrievalChain は新しい RetrievalChain を作成する
func NewRetrievalChain(retriever Retriever, embedder embedding.Embedder, generator Generator, opts ...Option) *RetrievalChain {
	c := &RetrievalChain{
		retriever: retriever,
		embedder:  embedder,
		generator: generator,
		config:    DefaultConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.config.TopK <= 0 {
		c.config.TopK = DefaultConfig().TopK
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Query は質問をEmbeddingし、類似チャンクをコンテキストとして回答を生成する
// 失敗した場合は常に *AnswerError を返す
func (c *RetrievalChain) Query(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", &AnswerError{Kind: KindInternal, Step: "validate", Err: ErrEmptyQuestion}
	}

	start := time.Now()

	queryVec, err := c.embedder.EmbedOne(ctx, question)
	if err != nil {
		return "", wrap("embed", err)
	}

	results, err := c.retriever.Search(queryVec, c.config.TopK)
	if err != nil {
		return "", wrap("retrieve", err)
	}

	system, err := renderSystemPrompt(c.config.OwnerName, buildContext(results))
	if err != nil {
		return "", wrap("prompt", err)
	}

	answer, err := c.generator.Generate(ctx, GenerateRequest{
		System:      system,
		User:        question,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxOutputTokens,
		Model:       c.config.Model,
	})
	if err != nil {
		return "", wrap("generate", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", wrap("generate", ErrEmptyAnswer)
	}

	c.logger.Debug("answer generated",
		"chunks", len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return answer, nil
}

// buildContext は検索結果をスコア降順のまま空行区切りで連結する
func buildContext(results []index.Result) string {
	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Chunk.Text)
	}
	return strings.Join(texts, "\n\n")
}

// インターフェース実装の確認
var _ Chain = (*RetrievalChain)(nil)
