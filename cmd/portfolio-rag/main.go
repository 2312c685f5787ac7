package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/portfolio-rag/cmd/portfolio-rag/commands"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func portfolioFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "portfolio",
		Usage:    "ポートフォリオID",
		Required: true,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "portfolio-rag",
		Usage: "ポートフォリオの内容に基づいて質問に回答するチャットボット",
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "インデックス管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "build",
						Usage: "履歴書・補足情報・自由記述からインデックスを構築",
						Flags: []cli.Flag{
							envFlag(),
							portfolioFlag(),
							&cli.StringFlag{
								Name:  "resume",
								Usage: "履歴書ファイル（PDF またはテキスト）",
							},
							&cli.StringFlag{
								Name:  "details",
								Usage: "補足情報のテキストファイル",
							},
							&cli.StringFlag{
								Name:  "text",
								Usage: "自由記述テキスト",
							},
							&cli.BoolFlag{
								Name:  "async",
								Usage: "バックグラウンドジョブとして構築し、完了まで状態を確認する",
							},
						},
						Action: commands.IndexBuildAction,
					},
					{
						Name:  "delete",
						Usage: "保存済みインデックスを削除",
						Flags: []cli.Flag{
							envFlag(),
							portfolioFlag(),
						},
						Action: commands.IndexDeleteAction,
					},
				},
			},
			{
				Name:  "ask",
				Usage: "質問に1回回答",
				Flags: []cli.Flag{
					envFlag(),
					portfolioFlag(),
					&cli.StringFlag{
						Name:     "question",
						Usage:    "質問文",
						Required: true,
					},
				},
				Action: commands.AskAction,
			},
			{
				Name:  "chat",
				Usage: "標準入力から対話形式で質問",
				Flags: []cli.Flag{
					envFlag(),
					portfolioFlag(),
				},
				Action: commands.ChatAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
