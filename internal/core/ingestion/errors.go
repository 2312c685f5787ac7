package ingestion

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoContent は利用可能なドキュメントが一つもない場合に返されます
	ErrNoContent = errors.New("no usable documents")

	// ErrUnreadable は入力を読み取れない場合に返されます
	ErrUnreadable = errors.New("unreadable input")
)

// NoContentError は全入力からドキュメントが得られなかったことを表します
// Skipped にはスキップされた入力とその理由が入ります
type NoContentError struct {
	Skipped []string
}

func (e *NoContentError) Error() string {
	if len(e.Skipped) == 0 {
		return fmt.Sprintf("ingestion: %s: no input provided", ErrNoContent)
	}
	return fmt.Sprintf("ingestion: %s (skipped: %s)", ErrNoContent, strings.Join(e.Skipped, "; "))
}

func (e *NoContentError) Unwrap() error {
	return ErrNoContent
}
