package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// QueueSnapshot 队列快照
type QueueSnapshot struct {
	Queue       string
	Open        int64
	Claimed     int64
	Completed   int64
	HealthLevel int
}

// SnapshotFunc 采集所有队列快照
type SnapshotFunc func(ctx context.Context) ([]QueueSnapshot, error)

// Collector 指标收集器,按 cron 表达式定期刷新队列与连接池指标
type Collector struct {
	db       *gorm.DB
	snapshot SnapshotFunc
	schedule string
	cron     *cron.Cron
	logger   *logrus.Logger
	timeout  time.Duration
	mu       sync.Mutex
	runs     int
}

// NewCollector 创建指标收集器
func NewCollector(db *gorm.DB, snapshot SnapshotFunc, schedule string, logger *logrus.Logger) *Collector {
	if schedule == "" {
		schedule = "@every 30s"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Collector{
		db:       db,
		snapshot: snapshot,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
		timeout:  10 * time.Second,
	}
}

// Start 启动指标收集器
func (c *Collector) Start() error {
	if _, err := c.cron.AddFunc(c.schedule, c.Collect); err != nil {
		return fmt.Errorf("invalid metrics collect schedule %q: %w", c.schedule, err)
	}
	c.cron.Start()
	return nil
}

// Stop 停止指标收集器并等待正在执行的采集结束
func (c *Collector) Stop() {
	<-c.cron.Stop().Done()
}

// Collect 立即采集一次
func (c *Collector) Collect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if c.db != nil {
		if err := UpdateDatabaseConnections(c.db); err != nil {
			c.logger.WithError(err).Warn("failed to collect database metrics")
		}
	}

	if c.snapshot != nil {
		snapshots, err := c.snapshot(ctx)
		if err != nil {
			c.logger.WithError(err).Warn("failed to collect queue metrics")
		} else {
			for _, s := range snapshots {
				SetQueueSnapshot(s)
			}
		}
	}

	c.mu.Lock()
	c.runs++
	c.mu.Unlock()
}

// Runs 返回已完成的采集次数
func (c *Collector) Runs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}
