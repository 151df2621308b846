package scheduler

import (
	"context"
	"fmt"

	"salesops_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues one-shot cycle runs outside the periodic schedule. Used
// by the replay CLI to kick a replay immediately after an outage instead of
// waiting for the next scheduled cycle.
type Client struct {
	client *asynq.Client
	queue  string
}

// NewClient creates an enqueue-only client against the task broker.
func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

// Close releases the broker connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueReplay schedules an immediate replay of failed inbound events.
func (c *Client) EnqueueReplay(ctx context.Context, limit int) error {
	task, err := NewReplayFailedTask(ReplayFailedPayload{Limit: limit})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

func queueName(cfg config.WorkerConfig) string {
	if q := cfg.GetAsynqQueue(); q != "" {
		return q
	}
	return "default"
}

// redisClientOpt parses the redis URL into asynq connection options.
// rediss:// URLs carry their TLS config through redis.ParseURL.
func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
	if redisURL == "" {
		return asynq.RedisClientOpt{}, fmt.Errorf("redis url not configured")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
