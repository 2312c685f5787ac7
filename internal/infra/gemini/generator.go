package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jinford/portfolio-rag/internal/core/answer"
	"github.com/jinford/portfolio-rag/internal/core/llm"
)

const (
	// DefaultGenerationModel はデフォルトの生成モデル
	DefaultGenerationModel = "gemini-2.5-flash"

	// DefaultGenerateEndpoint は :generateContent のエンドポイントテンプレート
	DefaultGenerateEndpoint = BaseURL + "/v1beta/models/{model}:generateContent"

	// DefaultGenerationTimeout は生成呼び出しのタイムアウト
	DefaultGenerationTimeout = 60 * time.Second
)

// Generator は Gemini の :generateContent を使用した回答生成の実装
type Generator struct {
	client   *restClient
	endpoint string
	model    string
	timeout  time.Duration
}

// GeneratorOption は Generator のオプション設定
type GeneratorOption func(*Generator)

// WithGenerateEndpoint はエンドポイントテンプレートを上書きする
func WithGenerateEndpoint(template string) GeneratorOption {
	return func(g *Generator) {
		if template != "" {
			g.endpoint = template
		}
	}
}

// WithGenerationModel は既定のモデルを上書きする
func WithGenerationModel(model string) GeneratorOption {
	return func(g *Generator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithGenerationTimeout は生成呼び出しのタイムアウトを設定する
func WithGenerationTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGenerator は新しい Generator を作成する
func NewGenerator(apiKey string, clientOpts []Option, opts ...GeneratorOption) (*Generator, error) {
	client, err := newRESTClient(apiKey, clientOpts...)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		client:   client,
		endpoint: DefaultGenerateEndpoint,
		model:    DefaultGenerationModel,
		timeout:  DefaultGenerationTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// ModelName はモデル名を返す
func (g *Generator) ModelName() string {
	return g.model
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

// Generate はシステムプロンプトと質問から回答を生成する
func (g *Generator) Generate(ctx context.Context, req answer.GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	model := g.model
	if req.Model != "" {
		model = req.Model
	}

	payload := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.User}}}},
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.System != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}

	body, err := g.client.post(ctx, expand(g.endpoint, model), payload)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	candidates := gjson.GetBytes(body, "candidates")
	if len(candidates.Array()) == 0 {
		if reason := gjson.GetBytes(body, "promptFeedback.blockReason").String(); reason != "" {
			return "", fmt.Errorf("%w: prompt blocked (%s)", llm.ErrInvalidResponse, reason)
		}
		return "", fmt.Errorf("%w: no candidates returned", llm.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, p := range gjson.GetBytes(body, "candidates.0.content.parts").Array() {
		sb.WriteString(p.Get("text").String())
	}
	return strings.TrimSpace(sb.String()), nil
}

// インターフェース実装の確認
var _ answer.Generator = (*Generator)(nil)
