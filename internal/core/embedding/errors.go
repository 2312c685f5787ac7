package embedding

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderExhausted は全てのエンドポイントが失敗した場合に返されます
	ErrProviderExhausted = errors.New("all embedding endpoints failed")

	// ErrInvalidEmbedding はレスポンスのベクトルが不正な場合に返されます
	ErrInvalidEmbedding = errors.New("invalid embedding response")

	// ErrNoEndpoints はエンドポイントが一つも設定されていない場合に返されます
	ErrNoEndpoints = errors.New("no embedding endpoints configured")
)

// ProviderError は全エンドポイントの試行が失敗したことを表します
// Err は最後に試行したエンドポイントのエラーです
type ProviderError struct {
	Op       string // "embed_one" または "embed_many"
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding: %s: %s after %d attempts: %v", e.Op, ErrProviderExhausted, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{ErrProviderExhausted, e.Err}
}
