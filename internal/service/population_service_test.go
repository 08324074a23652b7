package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mautops/casework-gin/internal/engine"
	"github.com/mautops/casework-gin/internal/events"
	"github.com/mautops/casework-gin/internal/model"
	"github.com/mautops/casework-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPopulate_ResolvesQueuesFromMetadata 测试按元数据解析队列
func TestPopulate_ResolvesQueuesFromMetadata(t *testing.T) {
	env := newTestEnv(t)
	env.registerCaseWorkflow(t)
	ctx := context.Background()

	due := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.engine.AddTask(&engine.ActiveTask{
		ID: "t-hr", ProcessInstanceID: "pi-1", ProcessDefinitionKey: "case-intake",
		TaskDefinitionKey: "review", CandidateGroups: []string{"hr-managers"}, DueDate: &due,
	})
	env.engine.AddTask(&engine.ActiveTask{
		ID: "t-unknown", ProcessInstanceID: "pi-1", ProcessDefinitionKey: "case-intake",
		TaskDefinitionKey: "review", CandidateGroups: []string{"unmapped-group"}, Priority: 80,
	})
	env.engine.AddTask(&engine.ActiveTask{
		ID: "t-oversight", ProcessInstanceID: "pi-1", ProcessDefinitionKey: "case-intake",
		TaskDefinitionKey: "oversight-review", CandidateGroups: []string{"hr-managers"},
	})

	result, err := env.population.PopulateQueueTasksForProcessInstance(ctx, "pi-1", "case-intake")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t-hr", "t-unknown", "t-oversight"}, result.Created)
	assert.Empty(t, result.Existing)
	assert.Empty(t, result.Failed)

	hr, err := env.taskRepo.FindByID(ctx, "t-hr")
	require.NoError(t, err)
	assert.Equal(t, "hr-intake-queue", hr.QueueName)
	assert.Equal(t, model.QueueTaskStatusOpen, hr.Status)
	assert.Nil(t, hr.Assignee)
	assert.Equal(t, model.DefaultPriority, hr.Priority)
	assert.Equal(t, "2026-03-01T09:00:00Z", hr.TaskData["due_date"])

	fallback, err := env.taskRepo.FindByID(ctx, "t-unknown")
	require.NoError(t, err)
	assert.Equal(t, "default-queue", fallback.QueueName)
	assert.Equal(t, 80, fallback.Priority)

	// 任务定义覆盖优先于候选组
	override, err := env.taskRepo.FindByID(ctx, "t-oversight")
	require.NoError(t, err)
	assert.Equal(t, "oversight-queue", override.QueueName)

	assert.Len(t, env.publisher.types(), 3)
	for _, typ := range env.publisher.types() {
		assert.Equal(t, events.EventTaskCreated, typ)
	}
}

// TestPopulate_Idempotent 测试重复填充不重复创建也不改变已有任务
func TestPopulate_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.registerCaseWorkflow(t)
	ctx := context.Background()

	task := env.seedTask(t, "t-1", "pi-1", "hr-managers")
	_, err := env.tasks.Claim(ctx, actor("alice", "hr-intake"), task.TaskID)
	require.NoError(t, err)

	result, err := env.population.PopulateQueueTasksForProcessInstance(ctx, "pi-1", "case-intake")
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Equal(t, []string{"t-1"}, result.Existing)

	stored, err := env.taskRepo.FindByID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, model.QueueTaskStatusClaimed, stored.Status)
	assert.Equal(t, "alice", stored.AssigneeOrEmpty())

	var count int64
	require.NoError(t, env.db.Model(&model.QueueTaskModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// TestPopulate_UnregisteredDefinition 测试未注册流程定义返回空结果
func TestPopulate_UnregisteredDefinition(t *testing.T) {
	env := newTestEnv(t)
	env.engine.AddTask(&engine.ActiveTask{ID: "t-1", ProcessInstanceID: "pi-1", ProcessDefinitionKey: "other"})

	result, err := env.population.PopulateQueueTasksForProcessInstance(context.Background(), "pi-1", "other")
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Empty(t, result.Skipped)
}

// TestPopulate_InactiveDefinition 测试停用的流程定义不填充
func TestPopulate_InactiveDefinition(t *testing.T) {
	env := newTestEnv(t)
	env.registerCaseWorkflow(t)
	ctx := context.Background()

	_, err := env.metadataSvc.SetActive(ctx, "admin", "case-intake", false)
	require.NoError(t, err)
	env.engine.AddTask(&engine.ActiveTask{ID: "t-1", ProcessInstanceID: "pi-1", ProcessDefinitionKey: "case-intake"})

	result, err := env.population.PopulateQueueTasksForProcessInstance(ctx, "pi-1", "case-intake")
	require.NoError(t, err)
	assert.Empty(t, result.Created)

	_, err = env.taskRepo.FindByID(ctx, "t-1")
	assert.Error(t, err)
}

// TestPopulate_EngineUnavailable 测试引擎不可用
func TestPopulate_EngineUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.registerCaseWorkflow(t)
	env.engine.FailNext(errors.New("connection refused"))

	_, err := env.population.PopulateQueueTasksForProcessInstance(context.Background(), "pi-1", "case-intake")
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrUpstreamUnavailable))
}

// TestPopulate_Validation 测试参数校验
func TestPopulate_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.population.PopulateQueueTasksForProcessInstance(context.Background(), "", "case-intake")
	assert.True(t, errors.Is(err, service.ErrValidation))

	_, err = env.population.PopulateQueueTasksForProcessInstance(context.Background(), "pi-1", " ")
	assert.True(t, errors.Is(err, service.ErrValidation))
}
