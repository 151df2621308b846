package main

import (
	"context"
	"flag"
	"time"

	"salesops_backend/internal/scheduler"
	"salesops_backend/platform/config"
	"salesops_backend/platform/logger"
)

// Queues an immediate replay of failed inbound events, ahead of the
// periodic schedule. The scheduler worker picks the task up and runs it.
func main() {
	limit := flag.Int("limit", 0, "maximum events to replay in this batch (0 uses REPLAY_BATCH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.EnqueueReplay(ctx, *limit); err != nil {
		log.Error("failed to enqueue replay task", "error", err)
		panic("failed to enqueue replay task: " + err.Error())
	}

	log.Info("replay task enqueued", "limit", *limit)
}
