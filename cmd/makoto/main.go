package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"makoto/cmd/makoto/analyze"
	"makoto/cmd/makoto/chat"
	"makoto/cmd/makoto/chats"
	"makoto/cmd/makoto/crawl"
	"makoto/cmd/makoto/history"
	"makoto/cmd/makoto/serve"
	"makoto/cmd/makoto/templates"
	"makoto/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	logger.Init()
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "makoto",
		Short:         "Makoto is a multi-mode AI chat client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(chat.Cmd)
	rootCmd.AddCommand(chats.Cmd)
	rootCmd.AddCommand(history.Cmd)
	rootCmd.AddCommand(templates.Cmd)
	rootCmd.AddCommand(analyze.Cmd)
	rootCmd.AddCommand(crawl.Cmd)
	rootCmd.AddCommand(serve.Cmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
