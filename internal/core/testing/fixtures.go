package testing

import (
	"io"
	"log/slog"

	"github.com/jinford/portfolio-rag/internal/core/ingestion"
)

// JohnDoeText はエンドツーエンドのテストで使用するポートフォリオ本文です
const JohnDoeText = "John Doe is a backend engineer with 5 years of experience in distributed systems."

// TestInput はテキストのみのビルド入力を生成します
func TestInput(text string) ingestion.Input {
	return ingestion.Input{FreeText: text}
}

// DiscardLogger は出力を捨てるロガーを返します
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
