package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/portfolio-rag/internal/core/answer"
	"github.com/jinford/portfolio-rag/internal/core/llm"
)

const (
	// DefaultModel はデフォルトで使用するOpenAIモデル
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

// Client は OpenAI Chat Completions API を使用した回答生成の実装
type Client struct {
	client      openai.Client
	model       string
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption は Client のオプション設定
type ClientOption func(*Client, *[]option.RequestOption)

// WithModel は既定のモデルを上書きする
func WithModel(model string) ClientOption {
	return func(c *Client, _ *[]option.RequestOption) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout はAPIコールのタイムアウトを設定する
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client, _ *[]option.RequestOption) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetry はレート制限時のリトライ回数と基底待機時間を設定する
func WithRetry(maxRetries int, baseBackoff time.Duration) ClientOption {
	return func(c *Client, _ *[]option.RequestOption) {
		c.maxRetries = maxRetries
		c.baseBackoff = baseBackoff
	}
}

// WithClientBaseURL は接続先のベースURLを指定する
func WithClientBaseURL(baseURL string) ClientOption {
	return func(_ *Client, opts *[]option.RequestOption) {
		if baseURL != "" {
			*opts = append(*opts, option.WithBaseURL(baseURL))
		}
	}
}

// WithClientRequestOptions は openai-go のリクエストオプションを追加する
func WithClientRequestOptions(extra ...option.RequestOption) ClientOption {
	return func(_ *Client, opts *[]option.RequestOption) {
		*opts = append(*opts, extra...)
	}
}

// NewClient は新しい Client を作成する
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	c := &Client{
		model:       DefaultModel,
		timeout:     DefaultTimeout,
		maxRetries:  MaxRetries,
		baseBackoff: BaseBackoff,
	}
	requestOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	for _, opt := range opts {
		opt(c, &requestOpts)
	}
	c.client = openai.NewClient(requestOpts...)
	return c, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// Generate はシステムプロンプトと質問から回答を生成する
func (c *Client) Generate(ctx context.Context, req answer.GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseBackoff
			if backoff > MaxBackoff {
				backoff = MaxBackoff
			}

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = toStatusError(err)
			if errors.Is(lastErr, llm.ErrRateLimitExceeded) {
				continue
			}
			return "", fmt.Errorf("OpenAI API call failed: %w", lastErr)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("%w: no completion choices returned", llm.ErrInvalidResponse)
		}
		return strings.TrimSpace(completion.Choices[0].Message.Content), nil
	}

	return "", fmt.Errorf("OpenAI API call failed after %d retries: %w", c.maxRetries, lastErr)
}

// toStatusError は SDK のエラーを HTTP ステータスで分類できる形に変換する
func toStatusError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &llm.StatusError{
			StatusCode: apiErr.StatusCode,
			Status:     http.StatusText(apiErr.StatusCode),
			Message:    apiErr.Message,
		}
	}
	return err
}

// インターフェース実装の確認
var _ answer.Generator = (*Client)(nil)
