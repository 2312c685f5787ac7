package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "429はレート制限", status: 429, want: ErrRateLimitExceeded},
		{name: "401は権限エラー", status: 401, want: ErrPermissionDenied},
		{name: "403は権限エラー", status: 403, want: ErrPermissionDenied},
		{name: "503は利用不可", status: 503, want: ErrUnavailable},
		{name: "400は分類なし", status: 400, want: nil},
		{name: "404は分類なし", status: 404, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.status))
		})
	}
}

func TestStatusError_UnwrapClassifies(t *testing.T) {
	err := fmt.Errorf("embed failed: %w", &StatusError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"})

	assert.True(t, errors.Is(err, ErrRateLimitExceeded))
	assert.False(t, errors.Is(err, ErrPermissionDenied))

	var statusErr *StatusError
	assert.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 429, statusErr.StatusCode)
	assert.Contains(t, statusErr.Error(), "RESOURCE_EXHAUSTED")
}
