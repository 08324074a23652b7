package service

import (
	"context"
	"sort"
	"time"

	"github.com/mautops/casework-gin/internal/metrics"
	"github.com/mautops/casework-gin/internal/repository"
	"github.com/mautops/casework-gin/internal/routing"
	"github.com/sirupsen/logrus"
)

// HealthStatus 队列健康状态
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthWarning  HealthStatus = "WARNING"
	HealthCritical HealthStatus = "CRITICAL"
)

// Level 返回健康等级,数值越大越严重
func (h HealthStatus) Level() int {
	switch h {
	case HealthWarning:
		return 1
	case HealthCritical:
		return 2
	}
	return 0
}

// HealthThresholds 健康判定阈值
type HealthThresholds struct {
	WarningAge    time.Duration `json:"warning_age"`
	CriticalAge   time.Duration `json:"critical_age"`
	VolumeCeiling int64         `json:"volume_ceiling"` // <= 0 表示不限制
}

// QueueStats 单个队列的统计
type QueueStats struct {
	QueueName         string             `json:"queue_name"`
	Department        routing.Department `json:"department,omitempty"`
	Open              int64              `json:"open"`
	Claimed           int64              `json:"claimed"`
	Completed         int64              `json:"completed"`
	OpenOlderThanHour int64              `json:"open_older_than_hour"`
	OpenOlderThanDay  int64              `json:"open_older_than_day"`
	OpenOlderThanWeek int64              `json:"open_older_than_week"`
	CompletedLast24h  int64              `json:"completed_last_24h"`
	CompletedLast7d   int64              `json:"completed_last_7d"`
	Backlog           int64              `json:"backlog"`

	olderThanWarning  int64
	olderThanCritical int64
}

// AnalyticsSummary 全局汇总
type AnalyticsSummary struct {
	TotalOpen                   int64         `json:"total_open"`
	TotalClaimed                int64         `json:"total_claimed"`
	TotalCompleted              int64         `json:"total_completed"`
	Backlog                     int64         `json:"backlog"`
	CompletedLast24h            int64         `json:"completed_last_24h"`
	CompletedLast7d             int64         `json:"completed_last_7d"`
	EstimatedDaysToClearBacklog *float64      `json:"estimated_days_to_clear_backlog"` // 完成速率为 0 时为空
	Queues                      []*QueueStats `json:"queues"`
	GeneratedAt                 time.Time     `json:"generated_at"`
}

// QueueHealth 单个队列的健康状况
type QueueHealth struct {
	QueueName             string       `json:"queue_name"`
	Status                HealthStatus `json:"status"`
	Open                  int64        `json:"open"`
	OpenOlderThanWarning  int64        `json:"open_older_than_warning"`
	OpenOlderThanCritical int64        `json:"open_older_than_critical"`
	Reasons               []string     `json:"reasons"`
}

// HealthReport 健康报告
type HealthReport struct {
	Overall    HealthStatus     `json:"overall"`
	Queues     []*QueueHealth   `json:"queues"`
	Thresholds HealthThresholds `json:"thresholds"`
	CheckedAt  time.Time        `json:"checked_at"`
}

// AnalyticsService 队列分析与健康监控服务接口
type AnalyticsService interface {
	QueueStatistics(ctx context.Context) ([]*QueueStats, error)
	Summary(ctx context.Context) (*AnalyticsSummary, error)
	Health(ctx context.Context) (*HealthReport, error)
	Snapshot(ctx context.Context) ([]metrics.QueueSnapshot, error)
}

// analyticsService 队列分析服务实现
type analyticsService struct {
	taskRepo   repository.QueueTaskRepository
	tables     *routing.Tables
	thresholds func() HealthThresholds
	now        func() time.Time
	logger     *logrus.Logger
}

// NewAnalyticsService 创建队列分析服务
// thresholds 每次调用时读取,支持配置热更新; now 为 nil 时使用当前时间
func NewAnalyticsService(
	taskRepo repository.QueueTaskRepository,
	tables *routing.Tables,
	thresholds func() HealthThresholds,
	now func() time.Time,
	logger *logrus.Logger,
) AnalyticsService {
	if tables == nil {
		tables = routing.DefaultTables()
	}
	if thresholds == nil {
		thresholds = func() HealthThresholds {
			return HealthThresholds{WarningAge: 24 * time.Hour, CriticalAge: 7 * 24 * time.Hour, VolumeCeiling: 50}
		}
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &analyticsService{
		taskRepo:   taskRepo,
		tables:     tables,
		thresholds: thresholds,
		now:        now,
		logger:     logger,
	}
}

// QueueStatistics 每个队列的计数、积压时长分布与吞吐量
// 路由表中的队列即使没有任务也会出现
func (s *analyticsService) QueueStatistics(ctx context.Context) ([]*QueueStats, error) {
	stats, _, err := s.collect(ctx)
	return stats, err
}

// Summary 汇总统计与积压清理天数预估
func (s *analyticsService) Summary(ctx context.Context) (*AnalyticsSummary, error) {
	stats, at, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}

	summary := &AnalyticsSummary{Queues: stats, GeneratedAt: at}
	for _, q := range stats {
		summary.TotalOpen += q.Open
		summary.TotalClaimed += q.Claimed
		summary.TotalCompleted += q.Completed
		summary.CompletedLast24h += q.CompletedLast24h
		summary.CompletedLast7d += q.CompletedLast7d
	}
	summary.Backlog = summary.TotalOpen + summary.TotalClaimed
	summary.EstimatedDaysToClearBacklog = EstimateDaysToClear(summary.Backlog, summary.CompletedLast7d)
	return summary, nil
}

// EstimateDaysToClear 积压 / (最近 7 天完成数 / 7),完成数为 0 时返回 nil
func EstimateDaysToClear(backlog, completedLastWeek int64) *float64 {
	if completedLastWeek <= 0 {
		return nil
	}
	days := float64(backlog) / (float64(completedLastWeek) / 7)
	return &days
}

// Health 按阈值判定每个队列的健康状态,整体取最差
func (s *analyticsService) Health(ctx context.Context) (*HealthReport, error) {
	thresholds := s.thresholds()
	stats, at, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{
		Overall:    HealthHealthy,
		Queues:     make([]*QueueHealth, 0, len(stats)),
		Thresholds: thresholds,
		CheckedAt:  at,
	}
	for _, q := range stats {
		health := classifyHealth(q, thresholds)
		if health.Status.Level() > report.Overall.Level() {
			report.Overall = health.Status
		}
		report.Queues = append(report.Queues, health)
	}
	return report, nil
}

// Snapshot 为指标收集器提供队列快照
func (s *analyticsService) Snapshot(ctx context.Context) ([]metrics.QueueSnapshot, error) {
	thresholds := s.thresholds()
	stats, _, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}

	snapshots := make([]metrics.QueueSnapshot, 0, len(stats))
	for _, q := range stats {
		snapshots = append(snapshots, metrics.QueueSnapshot{
			Queue:       q.QueueName,
			Open:        q.Open,
			Claimed:     q.Claimed,
			Completed:   q.Completed,
			HealthLevel: classifyHealth(q, thresholds).Status.Level(),
		})
	}
	return snapshots, nil
}

// collect 读取聚合结果并补齐路由表中的空队列
func (s *analyticsService) collect(ctx context.Context) ([]*QueueStats, time.Time, error) {
	now := s.now()
	thresholds := s.thresholds()
	aggregates, err := s.taskRepo.AggregateByQueue(ctx, repository.AggregateCutoffs{
		HourAgo:     now.Add(-time.Hour),
		DayAgo:      now.Add(-24 * time.Hour),
		WeekAgo:     now.Add(-7 * 24 * time.Hour),
		WarningAgo:  now.Add(-thresholds.WarningAge),
		CriticalAgo: now.Add(-thresholds.CriticalAge),
	})
	if err != nil {
		s.logger.WithError(err).Error("failed to aggregate queue tasks")
		return nil, now, err
	}

	byQueue := make(map[string]*QueueStats, len(aggregates)+len(s.tables.Queues))
	for queue, dept := range s.tables.Queues {
		byQueue[queue] = &QueueStats{QueueName: queue, Department: dept}
	}
	for _, agg := range aggregates {
		q, ok := byQueue[agg.QueueName]
		if !ok {
			q = &QueueStats{QueueName: agg.QueueName}
			byQueue[agg.QueueName] = q
		}
		q.Open = agg.OpenCount
		q.Claimed = agg.ClaimedCount
		q.Completed = agg.CompletedCount
		q.OpenOlderThanHour = agg.OpenOlderThanHour
		q.OpenOlderThanDay = agg.OpenOlderThanDay
		q.OpenOlderThanWeek = agg.OpenOlderThanWeek
		q.CompletedLast24h = agg.CompletedLastDay
		q.CompletedLast7d = agg.CompletedLastWeek
		q.olderThanWarning = agg.OpenOlderThanWarning
		q.olderThanCritical = agg.OpenOlderThanCritical
	}

	stats := make([]*QueueStats, 0, len(byQueue))
	for _, q := range byQueue {
		q.Backlog = q.Open + q.Claimed
		stats = append(stats, q)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].QueueName < stats[j].QueueName
	})
	return stats, now, nil
}

// classifyHealth 判定单个队列的健康状态
func classifyHealth(q *QueueStats, thresholds HealthThresholds) *QueueHealth {
	health := &QueueHealth{
		QueueName:             q.QueueName,
		Status:                HealthHealthy,
		Open:                  q.Open,
		OpenOlderThanWarning:  q.olderThanWarning,
		OpenOlderThanCritical: q.olderThanCritical,
		Reasons:               []string{},
	}

	if q.olderThanWarning > 0 {
		health.Status = HealthWarning
		health.Reasons = append(health.Reasons, "open tasks older than warning age")
	}
	if thresholds.VolumeCeiling > 0 && q.Open >= thresholds.VolumeCeiling {
		health.Status = HealthWarning
		health.Reasons = append(health.Reasons, "open tasks at or above volume ceiling")
	}
	if q.olderThanCritical > 0 {
		health.Status = HealthCritical
		health.Reasons = append(health.Reasons, "open tasks older than critical age")
	}
	return health
}
