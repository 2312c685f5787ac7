package gemini

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/jinford/portfolio-rag/internal/core/embedding"
	"github.com/jinford/portfolio-rag/internal/core/llm"
)

const (
	// DefaultEmbeddingModel はデフォルトのEmbeddingモデル
	DefaultEmbeddingModel = "text-embedding-004"

	// MaxBatchSize は batchEmbedContents 1回で送れる最大リクエスト数
	MaxBatchSize = 100
)

// APIリビジョンごとにモデルの提供状況が異なるため、v1beta から順に試す
var (
	DefaultEmbedEndpoints = []string{
		BaseURL + "/v1beta/models/{model}:embedContent",
		BaseURL + "/v1/models/{model}:embedContent",
	}

	DefaultBatchEmbedEndpoints = []string{
		BaseURL + "/v1beta/models/{model}:batchEmbedContents",
		BaseURL + "/v1/models/{model}:batchEmbedContents",
	}
)

// EmbedEndpoint は :embedContent の1エンドポイント
type EmbedEndpoint struct {
	client *restClient
	url    string
}

// BatchEmbedEndpoint は :batchEmbedContents の1エンドポイント
type BatchEmbedEndpoint struct {
	client *restClient
	url    string
	model  string
}

// NewEmbedEndpoints はテンプレートごとに EmbedEndpoint を作成する
func NewEmbedEndpoints(apiKey, model string, templates []string, opts ...Option) ([]embedding.SingleEndpoint, error) {
	client, err := newRESTClient(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}

	endpoints := make([]embedding.SingleEndpoint, 0, len(templates))
	for _, tmpl := range templates {
		endpoints = append(endpoints, &EmbedEndpoint{client: client, url: expand(tmpl, model)})
	}
	return endpoints, nil
}

// NewBatchEmbedEndpoints はテンプレートごとに BatchEmbedEndpoint を作成する
func NewBatchEmbedEndpoints(apiKey, model string, templates []string, opts ...Option) ([]embedding.BatchEndpoint, error) {
	client, err := newRESTClient(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}

	endpoints := make([]embedding.BatchEndpoint, 0, len(templates))
	for _, tmpl := range templates {
		endpoints = append(endpoints, &BatchEmbedEndpoint{client: client, url: expand(tmpl, model), model: model})
	}
	return endpoints, nil
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type embedRequest struct {
	Model   string  `json:"model,omitempty"`
	Content content `json:"content"`
}

func textContent(text string) content {
	return content{Parts: []part{{Text: text}}}
}

// Name はエンドポイントURLを返す。APIキーは含まない
func (e *EmbedEndpoint) Name() string {
	return e.url
}

// EmbedOne は単一テキストの Embedding を生成する
func (e *EmbedEndpoint) EmbedOne(ctx context.Context, text string) (embedding.Vector, error) {
	body, err := e.client.post(ctx, e.url, embedRequest{Content: textContent(text)})
	if err != nil {
		return nil, err
	}

	values := gjson.GetBytes(body, "embedding.values")
	if !values.IsArray() {
		return nil, fmt.Errorf("%w: embedding.values is missing", llm.ErrInvalidResponse)
	}
	return toVector(values), nil
}

// Name はエンドポイントURLを返す。APIキーは含まない
func (e *BatchEmbedEndpoint) Name() string {
	return e.url
}

// EmbedBatch は複数テキストの Embedding を入力順に生成する
func (e *BatchEmbedEndpoint) EmbedBatch(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds maximum of %d", len(texts), MaxBatchSize)
	}
	requests := make([]embedRequest, len(texts))
	for i, text := range texts {
		requests[i] = embedRequest{Model: modelResource(e.model), Content: textContent(text)}
	}

	body, err := e.client.post(ctx, e.url, map[string]any{"requests": requests})
	if err != nil {
		return nil, err
	}

	embeddings := gjson.GetBytes(body, "embeddings")
	if !embeddings.IsArray() {
		return nil, fmt.Errorf("%w: embeddings is missing", llm.ErrInvalidResponse)
	}

	items := embeddings.Array()
	vectors := make([]embedding.Vector, len(items))
	for i, item := range items {
		vectors[i] = toVector(item.Get("values"))
	}
	return vectors, nil
}

func toVector(values gjson.Result) embedding.Vector {
	arr := values.Array()
	vec := make(embedding.Vector, len(arr))
	for i, v := range arr {
		vec[i] = float32(v.Float())
	}
	return vec
}

// インターフェース実装の確認
var (
	_ embedding.SingleEndpoint = (*EmbedEndpoint)(nil)
	_ embedding.BatchEndpoint  = (*BatchEmbedEndpoint)(nil)
)
