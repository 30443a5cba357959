// Command escribo-web serves the Escribo garment and profile pages and the
// admin QR batch download.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/escribo/escribo-web/app"
	"github.com/escribo/escribo-web/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "escribo-web: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	return a.Run(ctx)
}
