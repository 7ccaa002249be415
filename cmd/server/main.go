// Command server serves the collection and its backup over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/Waypoint/internal/api"
	"github.com/dharsanguruparan/Waypoint/internal/app"
	"github.com/dharsanguruparan/Waypoint/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	var q api.Queue
	if a.Queue != nil {
		q = a.Queue
	}
	srv := api.New(cfg.Address, a.Records, a.Backup, q, a.Log.With("component", "api"),
		api.WithPhotoLinks(a.Signer, cfg.SignedURLTTL),
	)
	return srv.Run(ctx)
}
