package scheduler

import (
	"fmt"

	"netimob_lead_router/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues routing tasks onto the asynq queue.
type Client struct {
	client *asynq.Client
	queue  string
}

// NewClient creates an asynq client from the redis URL.
func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

// Close releases the underlying asynq client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueSweep schedules a sweep for asynchronous execution and returns the
// task id and queue name for the API response.
func (c *Client) EnqueueSweep(triggeredBy string) (string, string, error) {
	if c == nil || c.client == nil {
		return "", "", fmt.Errorf("scheduler client not configured")
	}

	task, err := NewSweepTask(SweepPayload{TriggeredBy: triggeredBy})
	if err != nil {
		return "", "", err
	}

	info, err := c.client.Enqueue(task, asynq.Queue(c.queue))
	if err != nil {
		return "", "", err
	}
	return info.ID, info.Queue, nil
}

func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
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
