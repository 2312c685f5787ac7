package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimitExceeded はレート制限・クォータ超過の場合のエラー
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrPermissionDenied は認証・権限エラーの場合のエラー
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidResponse はレスポンス形式が不正な場合のエラー
	ErrInvalidResponse = errors.New("invalid response")

	// ErrUnavailable はバックエンドが一時的に利用できない場合のエラー
	ErrUnavailable = errors.New("backend unavailable")
)

// StatusError はHTTPステータス付きのプロバイダエラーを表す
// Message は上流のエラーメッセージで、ログ用途に限る
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("status %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// Unwrap はステータスに対応する分類エラーを返す
func (e *StatusError) Unwrap() error {
	return Classify(e.StatusCode)
}

// Classify はHTTPステータスを分類エラーに変換する
// 分類対象外のステータスは nil を返す
func Classify(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimitExceeded
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrPermissionDenied
	case status >= http.StatusInternalServerError:
		return ErrUnavailable
	default:
		return nil
	}
}
