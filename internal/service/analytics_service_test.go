package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/mautops/casework-gin/internal/model"
	"github.com/mautops/casework-gin/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// analyticsNow 分析测试使用的固定时间
var analyticsNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

// newAnalytics 创建使用固定时钟的分析服务
func newAnalytics(env *testEnv, thresholds service.HealthThresholds) service.AnalyticsService {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return service.NewAnalyticsService(
		env.taskRepo,
		env.tables,
		func() service.HealthThresholds { return thresholds },
		func() time.Time { return analyticsNow },
		log,
	)
}

// completedTask 创建已完成任务
func completedTask(id, queue string, completedAt time.Time) *model.QueueTaskModel {
	by := "closer"
	return &model.QueueTaskModel{
		TaskID:      id,
		QueueName:   queue,
		Status:      model.QueueTaskStatusCompleted,
		CreatedAt:   completedAt.Add(-time.Hour),
		CompletedAt: &completedAt,
		CompletedBy: &by,
	}
}

// claimedTask 创建已认领任务
func claimedTask(id, queue, assignee string, createdAt time.Time) *model.QueueTaskModel {
	claimedAt := createdAt.Add(time.Minute)
	return &model.QueueTaskModel{
		TaskID:    id,
		QueueName: queue,
		Status:    model.QueueTaskStatusClaimed,
		Assignee:  &assignee,
		ClaimedAt: &claimedAt,
		CreatedAt: createdAt,
	}
}

// TestSummary_EstimatedDaysToClearBacklog 测试积压清理天数预估
func TestSummary_EstimatedDaysToClearBacklog(t *testing.T) {
	env := newTestEnv(t)
	day := 24 * time.Hour

	// 积压 10: 7 个 OPEN + 3 个 CLAIMED
	for i, id := range []string{"o1", "o2", "o3", "o4", "o5", "o6", "o7"} {
		env.insertTask(t, openTask(id, "hr-intake-queue", 50, analyticsNow.Add(-time.Duration(i+1)*time.Minute)))
	}
	for _, id := range []string{"c1", "c2", "c3"} {
		env.insertTask(t, claimedTask(id, "legal-review-queue", "carol", analyticsNow.Add(-time.Hour)))
	}
	// 最近 7 天完成 3 个,今天没有
	env.insertTask(t, completedTask("d1", "hr-intake-queue", analyticsNow.Add(-2*day)))
	env.insertTask(t, completedTask("d2", "hr-intake-queue", analyticsNow.Add(-3*day)))
	env.insertTask(t, completedTask("d3", "legal-review-queue", analyticsNow.Add(-5*day)))
	// 超过 7 天的不计入
	env.insertTask(t, completedTask("d4", "legal-review-queue", analyticsNow.Add(-10*day)))

	summary, err := newAnalytics(env, service.HealthThresholds{WarningAge: day, CriticalAge: 7 * day}).Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(7), summary.TotalOpen)
	assert.Equal(t, int64(3), summary.TotalClaimed)
	assert.Equal(t, int64(4), summary.TotalCompleted)
	assert.Equal(t, int64(10), summary.Backlog)
	assert.Equal(t, int64(0), summary.CompletedLast24h)
	assert.Equal(t, int64(3), summary.CompletedLast7d)
	require.NotNil(t, summary.EstimatedDaysToClearBacklog)
	assert.InDelta(t, 23.33, *summary.EstimatedDaysToClearBacklog, 0.01)
	assert.Equal(t, analyticsNow, summary.GeneratedAt)
}

// TestSummary_NoCompletions 测试没有完成任务时预估为空
func TestSummary_NoCompletions(t *testing.T) {
	env := newTestEnv(t)
	env.insertTask(t, openTask("o1", "hr-intake-queue", 50, analyticsNow.Add(-time.Hour)))

	summary, err := newAnalytics(env, service.HealthThresholds{}).Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Backlog)
	assert.Nil(t, summary.EstimatedDaysToClearBacklog)
}

// TestEstimateDaysToClear 测试积压预估公式
func TestEstimateDaysToClear(t *testing.T) {
	assert.Nil(t, service.EstimateDaysToClear(10, 0))
	days := service.EstimateDaysToClear(14, 7)
	require.NotNil(t, days)
	assert.Equal(t, 14.0, *days)
	zero := service.EstimateDaysToClear(0, 3)
	require.NotNil(t, zero)
	assert.Equal(t, 0.0, *zero)
}

// TestQueueStatistics_AgeBuckets 测试积压时长分布
func TestQueueStatistics_AgeBuckets(t *testing.T) {
	env := newTestEnv(t)
	env.insertTask(t, openTask("fresh", "investigation-queue", 50, analyticsNow.Add(-10*time.Minute)))
	env.insertTask(t, openTask("hours", "investigation-queue", 50, analyticsNow.Add(-3*time.Hour)))
	env.insertTask(t, openTask("days", "investigation-queue", 50, analyticsNow.Add(-50*time.Hour)))
	env.insertTask(t, openTask("weeks", "investigation-queue", 50, analyticsNow.Add(-200*time.Hour)))

	stats, err := newAnalytics(env, service.HealthThresholds{WarningAge: 24 * time.Hour, CriticalAge: 168 * time.Hour}).QueueStatistics(context.Background())
	require.NoError(t, err)

	var investigation *service.QueueStats
	for _, q := range stats {
		if q.QueueName == "investigation-queue" {
			investigation = q
		}
	}
	require.NotNil(t, investigation)
	assert.Equal(t, int64(4), investigation.Open)
	assert.Equal(t, int64(3), investigation.OpenOlderThanHour)
	assert.Equal(t, int64(2), investigation.OpenOlderThanDay)
	assert.Equal(t, int64(1), investigation.OpenOlderThanWeek)
	assert.Equal(t, int64(4), investigation.Backlog)

	// 路由表中的空队列也会出现
	assert.Len(t, stats, len(env.tables.Queues))
}

// TestHealth_Classification 测试队列健康判定
func TestHealth_Classification(t *testing.T) {
	env := newTestEnv(t)
	env.insertTask(t, openTask("healthy", "hr-intake-queue", 50, analyticsNow.Add(-2*time.Hour)))
	env.insertTask(t, openTask("aging", "legal-review-queue", 50, analyticsNow.Add(-48*time.Hour)))
	env.insertTask(t, openTask("stale", "investigation-queue", 50, analyticsNow.Add(-8*24*time.Hour)))
	for _, id := range []string{"v1", "v2", "v3"} {
		env.insertTask(t, openTask(id, "intake-queue", 50, analyticsNow.Add(-time.Minute)))
	}

	thresholds := service.HealthThresholds{WarningAge: 24 * time.Hour, CriticalAge: 7 * 24 * time.Hour, VolumeCeiling: 3}
	report, err := newAnalytics(env, thresholds).Health(context.Background())
	require.NoError(t, err)

	byQueue := make(map[string]service.HealthStatus)
	for _, q := range report.Queues {
		byQueue[q.QueueName] = q.Status
	}
	assert.Equal(t, service.HealthHealthy, byQueue["hr-intake-queue"])
	assert.Equal(t, service.HealthWarning, byQueue["legal-review-queue"])
	assert.Equal(t, service.HealthCritical, byQueue["investigation-queue"])
	assert.Equal(t, service.HealthWarning, byQueue["intake-queue"])
	assert.Equal(t, service.HealthHealthy, byQueue["oversight-queue"])
	assert.Equal(t, service.HealthCritical, report.Overall)
	assert.Equal(t, thresholds, report.Thresholds)
}

// TestHealth_AllHealthy 测试全部健康
func TestHealth_AllHealthy(t *testing.T) {
	env := newTestEnv(t)
	env.insertTask(t, openTask("o1", "hr-intake-queue", 50, analyticsNow.Add(-time.Hour)))

	report, err := newAnalytics(env, service.HealthThresholds{WarningAge: 24 * time.Hour, CriticalAge: 48 * time.Hour, VolumeCeiling: 10}).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, service.HealthHealthy, report.Overall)
}

// TestSnapshot 测试指标快照
func TestSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.insertTask(t, openTask("stale", "investigation-queue", 50, analyticsNow.Add(-8*24*time.Hour)))

	snapshots, err := newAnalytics(env, service.HealthThresholds{WarningAge: 24 * time.Hour, CriticalAge: 7 * 24 * time.Hour}).Snapshot(context.Background())
	require.NoError(t, err)

	found := false
	for _, s := range snapshots {
		if s.Queue == "investigation-queue" {
			found = true
			assert.Equal(t, int64(1), s.Open)
			assert.Equal(t, service.HealthCritical.Level(), s.HealthLevel)
		}
	}
	assert.True(t, found)
}
