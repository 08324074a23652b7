package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/mautops/casework-gin/internal/service"
	"github.com/sirupsen/logrus"
)

// ProcessorConfig 处理器配置
type ProcessorConfig struct {
	Concurrency int
	Queue       string
}

// Processor 消费异步填充任务
type Processor struct {
	server     *asynq.Server
	population service.PopulationService
	logger     *logrus.Logger
}

// NewProcessor 创建异步任务处理器
func NewProcessor(redisOpt asynq.RedisClientOpt, population service.PopulationService, cfg ProcessorConfig, logger *logrus.Logger) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
		Logger:      logger,
	})
	return &Processor{server: server, population: population, logger: logger}
}

// Mux 返回注册了所有处理函数的 ServeMux
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(p.loggingMiddleware)
	mux.HandleFunc(TypePopulateInstance, p.HandlePopulation)
	return mux
}

// Start 在后台启动处理器
func (p *Processor) Start() error {
	return p.server.Start(p.Mux())
}

// Shutdown 停止处理器并等待正在执行的任务
func (p *Processor) Shutdown() {
	p.server.Shutdown()
}

// HandlePopulation 处理填充任务
// 负载无效或参数错误不重试
func (p *Processor) HandlePopulation(ctx context.Context, task *asynq.Task) error {
	var payload PopulationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid population payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	result, err := p.population.PopulateQueueTasksForProcessInstance(ctx, payload.ProcessInstanceID, payload.ProcessDefinitionKey)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	// 部分任务写入失败时重试,已写入的任务不会重复创建
	if len(result.Failed) > 0 {
		return fmt.Errorf("population of %s failed for %d tasks", payload.ProcessInstanceID, len(result.Failed))
	}
	return nil
}

// loggingMiddleware 记录任务执行
func (p *Processor) loggingMiddleware(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		fields := logrus.Fields{"type": t.Type()}
		if id, ok := asynq.GetTaskID(ctx); ok {
			fields["task_id"] = id
		}
		if retried, ok := asynq.GetRetryCount(ctx); ok {
			fields["retry"] = retried
		}

		err := next.ProcessTask(ctx, t)
		fields["duration"] = time.Since(start).String()
		if err != nil {
			p.logger.WithFields(fields).WithError(err).Warn("async task failed")
			return err
		}
		p.logger.WithFields(fields).Info("async task completed")
		return nil
	})
}
