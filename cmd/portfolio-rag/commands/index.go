package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/portfolio-rag/internal/core/assistant"
	"github.com/jinford/portfolio-rag/internal/core/ingestion"
)

// statusPollInterval は非同期ビルドの状態確認間隔
const statusPollInterval = 500 * time.Millisecond

// IndexBuildAction はポートフォリオのインデックスを構築するコマンドのアクション
func IndexBuildAction(ctx context.Context, cmd *cli.Command) error {
	portfolioID := cmd.String("portfolio")
	envFile := cmd.String("env")

	input, err := readInput(cmd.String("resume"), cmd.String("details"), cmd.String("text"))
	if err != nil {
		return err
	}
	if input.IsEmpty() {
		return errors.New("--resume, --details, --text のいずれかを指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	log := appCtx.Logger()
	service := appCtx.Container.Service

	if !cmd.Bool("async") {
		report, err := service.BuildIndex(ctx, portfolioID, input)
		if err != nil {
			return fmt.Errorf("インデックス構築に失敗しました: %w", err)
		}
		printReport(cmd.Root().Writer, report)
		return nil
	}

	jobID, err := service.BuildIndexAsync(portfolioID, input)
	if err != nil {
		return fmt.Errorf("インデックス構築の開始に失敗しました: %w", err)
	}
	log.Info("index build started", "portfolio_id", portfolioID, "job_id", jobID)

	status, err := waitForBuild(ctx, service, portfolioID, statusPollInterval)
	if err != nil {
		return err
	}
	if status.State == assistant.StateFailed {
		return fmt.Errorf("インデックス構築に失敗しました: %s", status.Error)
	}
	printReport(cmd.Root().Writer, status.Report)
	return nil
}

// IndexDeleteAction はポートフォリオのインデックスを削除するコマンドのアクション
func IndexDeleteAction(ctx context.Context, cmd *cli.Command) error {
	portfolioID := cmd.String("portfolio")
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.Service.Delete(ctx, portfolioID); err != nil {
		return fmt.Errorf("インデックス削除に失敗しました: %w", err)
	}
	fmt.Fprintf(cmd.Root().Writer, "deleted index for %s\n", portfolioID)
	return nil
}

// statusSource はビルド状況を取得できるサービス
type statusSource interface {
	Status(portfolioID string) assistant.BuildStatus
}

// waitForBuild は processing 以外の状態になるまで待つ
func waitForBuild(ctx context.Context, service statusSource, portfolioID string, interval time.Duration) (assistant.BuildStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status := service.Status(portfolioID)
		if status.State != assistant.StateProcessing {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

// readInput はコマンドライン引数からビルド入力を組み立てる
func readInput(resumePath, detailsPath, text string) (ingestion.Input, error) {
	input := ingestion.Input{FreeText: text}

	if resumePath != "" {
		data, err := os.ReadFile(resumePath)
		if err != nil {
			return input, fmt.Errorf("履歴書ファイルの読み込みに失敗: %w", err)
		}
		input.Resume = data
		input.ResumeFilename = filepath.Base(resumePath)
		input.ResumeKind = ingestion.DetectResumeKind(input.ResumeFilename, data)
	}

	if detailsPath != "" {
		data, err := os.ReadFile(detailsPath)
		if err != nil {
			return input, fmt.Errorf("補足情報ファイルの読み込みに失敗: %w", err)
		}
		input.Details = string(data)
	}

	return input, nil
}

func printReport(w io.Writer, report *assistant.BuildReport) {
	if report == nil {
		return
	}
	fmt.Fprintf(w, "portfolio: %s\n", report.PortfolioID)
	fmt.Fprintf(w, "documents: %d\n", report.Documents)
	fmt.Fprintf(w, "chunks:    %d\n", report.Chunks)
	fmt.Fprintf(w, "tokens:    %d\n", report.Tokens)
	fmt.Fprintf(w, "dimension: %d\n", report.Dimension)
	fmt.Fprintf(w, "duration:  %s\n", report.Duration.Round(time.Millisecond))
}
