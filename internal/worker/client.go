package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer 提交异步填充任务
type Enqueuer interface {
	EnqueuePopulation(ctx context.Context, payload PopulationPayload) (string, error)
}

// ClientOptions 客户端选项
type ClientOptions struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

// Client 异步任务客户端
type Client struct {
	client *asynq.Client
	opts   ClientOptions
}

// NewClient 创建异步任务客户端
func NewClient(redisOpt asynq.RedisClientOpt, opts ClientOptions) *Client {
	if opts.Queue == "" {
		opts.Queue = "default"
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	return &Client{
		client: asynq.NewClient(redisOpt),
		opts:   opts,
	}
}

// EnqueuePopulation 提交填充任务,返回异步任务 ID
func (c *Client) EnqueuePopulation(ctx context.Context, payload PopulationPayload) (string, error) {
	task, err := NewPopulationTask(payload)
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.opts.Queue),
		asynq.MaxRetry(c.opts.MaxRetry),
		asynq.Timeout(c.opts.Timeout),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue population for %s: %w", payload.ProcessInstanceID, err)
	}
	return info.ID, nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
