// Command worker runs queued backup and restore tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/Waypoint/internal/app"
	"github.com/dharsanguruparan/Waypoint/internal/config"
	"github.com/dharsanguruparan/Waypoint/internal/queue"
	"github.com/dharsanguruparan/Waypoint/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.RedisAddr == "" {
		return errors.New("worker requires WAYPOINT_REDIS_ADDR")
	}
	a, err := app.New(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	// One task at a time: the orchestrator rejects overlapping operations.
	server := asynq.NewServer(a.RedisOpt(), asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{queue.QueueName: 1},
	})
	processor := worker.NewProcessor(a.Backup, a.Log.With("component", "worker"))

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	a.Log.Info(ctx, "worker started", "redis", cfg.RedisAddr)
	return server.Run(processor.Handler())
}
