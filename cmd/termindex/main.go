package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/cli"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/directory"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/service"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	loadPath := flag.String("load", "", "term file to load before the menu starts")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// the menu owns stdout
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := service.New(directory.New())
	if *loadPath != "" {
		stats, err := svc.LoadFile(ctx, *loadPath)
		if err != nil {
			slog.Error("failed to preload term file", "path", *loadPath, "error", err)
			os.Exit(1)
		}
		slog.Info("term file preloaded", "path", *loadPath, "terms", stats.Terms, "dropped", stats.Dropped)
	}

	app := cli.New(svc, os.Stdin, os.Stdout, cli.Config{
		DataDir: cfg.Index.DataDir,
		SaveDir: cfg.Index.SaveDir,
		Pause:   term.IsTerminal(int(os.Stdin.Fd())),
		Color:   term.IsTerminal(int(os.Stdout.Fd())),
	})
	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("menu stopped", "error", err)
		os.Exit(1)
	}
}
