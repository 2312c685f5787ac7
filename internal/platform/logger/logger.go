package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config はロガーの設定
type Config struct {
	Level  slog.Level
	Format string // "json" or "text"
	Output io.Writer
}

// DefaultConfig はデフォルトのロガー設定
// 標準出力は回答の表示に使うため、ログは標準エラー出力に書く
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// ParseConfig は LOG_LEVEL / LOG_FORMAT の文字列から設定を作成します
// 解釈できないレベルは info として扱います
func ParseConfig(level, format string) Config {
	cfg := DefaultConfig()
	if err := cfg.Level.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		cfg.Level = slog.LevelInfo
	}
	if f := strings.ToLower(strings.TrimSpace(format)); f == "json" || f == "text" {
		cfg.Format = f
	}
	return cfg
}

// New は新しいロガーを作成し、デフォルトロガーとして設定します
func New(cfg Config) *slog.Logger {
	var handler slog.Handler

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level: cfg.Level,
	}

	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default: // "text"
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
