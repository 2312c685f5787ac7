package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinford/portfolio-rag/internal/core/answer"
	"github.com/jinford/portfolio-rag/internal/core/assistant"
	"github.com/jinford/portfolio-rag/internal/platform/config"
	"github.com/jinford/portfolio-rag/internal/platform/container"
	"github.com/jinford/portfolio-rag/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer
}

// NewAppContext は設定ファイルを読み込み、コンテナを初期化して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}

	appLogger := logger.New(logger.ParseConfig(cfg.Log.Level, cfg.Log.Format))

	cont, err := container.NewContainer(ctx, appLogger, cfg)
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		if err := ac.Container.Close(); err != nil {
			ac.Logger().Warn("failed to close container", "error", err)
		}
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}

// userMessage は回答時のエラーを利用者向けの文言に変換する
// 上流APIのエラー内容は表示しない
func userMessage(err error) string {
	var answerErr *answer.AnswerError
	switch {
	case errors.Is(err, answer.ErrEmptyQuestion):
		return "Please enter a question."
	case errors.Is(err, assistant.ErrNotFound):
		return "This chatbot has not been trained yet. Please upload the portfolio again."
	case errors.As(err, &answerErr):
		return answerErr.UserMessage()
	default:
		return "Sorry, something went wrong while answering your question."
	}
}
