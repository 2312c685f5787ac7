package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"
)

// answerer は質問に回答できるサービス
type answerer interface {
	Answer(ctx context.Context, portfolioID, question string) (string, error)
}

// AskAction は単一の質問に回答するコマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	portfolioID := cmd.String("portfolio")
	question := cmd.String("question")
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	reply, err := appCtx.Container.Service.Answer(ctx, portfolioID, question)
	if err != nil {
		appCtx.Logger().Error("failed to answer question", "portfolio_id", portfolioID, "error", err)
		fmt.Fprintln(cmd.Root().Writer, userMessage(err))
		return cli.Exit("", 1)
	}
	fmt.Fprintln(cmd.Root().Writer, reply)
	return nil
}

// ChatAction は標準入力から質問を読み続ける対話モードのアクション
func ChatAction(ctx context.Context, cmd *cli.Command) error {
	portfolioID := cmd.String("portfolio")
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	fmt.Fprintf(cmd.Root().Writer, "Chatting with %s. Type \"exit\" to quit.\n", portfolioID)
	return runChat(ctx, appCtx.Container.Service, portfolioID, cmd.Root().Reader, cmd.Root().Writer)
}

// runChat は1行1質問で回答を書き出す。exit/quit または入力終端で終了する
func runChat(ctx context.Context, service answerer, portfolioID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply, err := service.Answer(ctx, portfolioID, question)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out, userMessage(err))
			continue
		}
		fmt.Fprintln(out, reply)
	}
}
