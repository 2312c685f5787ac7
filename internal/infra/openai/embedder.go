package openai

import (
	"context"
	"fmt"
	"sort"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jinford/portfolio-rag/internal/core/embedding"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"

	// MaxBatchSize は1リクエストで送れる最大テキスト数
	MaxBatchSize = 100
)

// Embedder は OpenAI 互換の Embeddings API の1エンドポイントを表す
// ベースURLごとに1つ作成し、embedding.Provider のフォールバック候補として並べる
type Embedder struct {
	client    openai.Client
	name      string
	model     string
	dimension int
}

type embedderOptions struct {
	model      string
	dimension  int
	baseURL    string
	clientOpts []option.RequestOption
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithEmbeddingDimension はベクトル次元を指定する。0 はモデルの既定値
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithBaseURL は接続先のベースURLを指定する
func WithBaseURL(baseURL string) EmbedderOption {
	return func(o *embedderOptions) {
		o.baseURL = baseURL
	}
}

// WithRequestOptions は openai-go のリクエストオプションを追加する
func WithRequestOptions(opts ...option.RequestOption) EmbedderOption {
	return func(o *embedderOptions) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// NewEmbedder は新しい Embedder を作成する
// リトライはフォールバック側で行うため、SDKのリトライは無効にする
func NewEmbedder(apiKey string, opts ...EmbedderOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := embedderOptions{model: DefaultEmbeddingModel}
	for _, opt := range opts {
		opt(&options)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	name := "api.openai.com"
	if options.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(options.baseURL))
		name = options.baseURL
	}
	clientOpts = append(clientOpts, options.clientOpts...)

	return &Embedder{
		client:    openai.NewClient(clientOpts...),
		name:      name,
		model:     options.model,
		dimension: options.dimension,
	}, nil
}

// Name はフォールバックのログに使うエンドポイント名を返す
func (e *Embedder) Name() string {
	return e.name
}

// EmbedOne は単一テキストの Embedding を生成する
func (e *Embedder) EmbedOne(ctx context.Context, text string) (embedding.Vector, error) {
	vectors, err := e.request(ctx, openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)}, 1)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch はバッチで Embedding を生成する（最大100件）
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds maximum of %d", len(texts), MaxBatchSize)
	}
	return e.request(ctx, openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}, len(texts))
}

func (e *Embedder) request(ctx context.Context, input openai.EmbeddingNewParamsInputUnion, want int) ([]embedding.Vector, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: input,
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", toStatusError(err))
	}
	if len(resp.Data) != want {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", embedding.ErrInvalidEmbedding, want, len(resp.Data))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([]embedding.Vector, len(data))
	for i, d := range data {
		vec := make(embedding.Vector, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension は指定されたベクトル次元数を返す。0 はモデルの既定値
func (e *Embedder) Dimension() int {
	return e.dimension
}

// インターフェース実装の確認
var (
	_ embedding.SingleEndpoint = (*Embedder)(nil)
	_ embedding.BatchEndpoint  = (*Embedder)(nil)
)
