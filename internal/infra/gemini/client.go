package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jinford/portfolio-rag/internal/core/llm"
)

const (
	// BaseURL は Gemini API のベースURL
	BaseURL = "https://generativelanguage.googleapis.com"

	// maxResponseBytes はレスポンスボディの読み込み上限
	maxResponseBytes = 32 << 20
)

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("Gemini API key not set: please set GEMINI_API_KEY environment variable")

// Option は Gemini クライアント共通のオプション設定
type Option func(*restClient)

// WithHTTPClient は HTTP クライアントを差し替える
func WithHTTPClient(c *http.Client) Option {
	return func(rc *restClient) {
		if c != nil {
			rc.http = c
		}
	}
}

// restClient は x-goog-api-key ヘッダで認証する JSON over HTTP クライアント
// APIキーはURLに含めない
type restClient struct {
	http   *http.Client
	apiKey string
}

func newRESTClient(apiKey string, opts ...Option) (*restClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	rc := &restClient{
		// タイムアウトは呼び出し側のコンテキストで制御する
		http:   &http.Client{Timeout: 5 * time.Minute},
		apiKey: apiKey,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc, nil
}

// post は payload をJSONで送信し、2xx のレスポンスボディを返す
// 2xx 以外は *llm.StatusError を返す
func (c *restClient) post(ctx context.Context, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := gjson.GetBytes(respBody, "error.message").String()
		if message == "" {
			message = strings.TrimSpace(string(respBody))
		}
		return nil, &llm.StatusError{
			StatusCode: resp.StatusCode,
			Status:     gjson.GetBytes(respBody, "error.status").String(),
			Message:    message,
		}
	}
	if !gjson.ValidBytes(respBody) {
		return nil, fmt.Errorf("%w: response is not valid JSON", llm.ErrInvalidResponse)
	}
	return respBody, nil
}

// expand はエンドポイントテンプレートの {model} を置換する
func expand(template, model string) string {
	return strings.ReplaceAll(template, "{model}", model)
}

// modelResource は models/ 接頭辞付きのモデル名を返す
func modelResource(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}
