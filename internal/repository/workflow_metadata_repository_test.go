package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/mautops/casework-gin/internal/model"
	"github.com/mautops/casework-gin/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// newMetadata 构造流程元数据
func newMetadata(key string, version int, defaultQueue string) *model.WorkflowMetadataModel {
	now := time.Now().UTC()
	return &model.WorkflowMetadataModel{
		ProcessDefinitionKey: key,
		ProcessName:          "Case intake",
		Version:              version,
		CandidateGroupMappings: datatypes.NewJSONType(map[string]string{
			"default":   defaultQueue,
			"hr-intake": "hr-intake-queue",
		}),
		TaskQueueMappings: datatypes.NewJSONType([]model.TaskQueueMapping{
			{TaskDefinitionKey: "legal-review", QueueName: "legal-queue"},
		}),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TestWorkflowMetadataRepository_Upsert 测试插入与覆盖
func TestWorkflowMetadataRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewWorkflowMetadataRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, newMetadata("case-intake", 1, "intake-queue")))

	saved, err := repo.FindByKey(ctx, "case-intake")
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)
	assert.Equal(t, "intake-queue", saved.CandidateGroupMappings.Data()["default"])
	require.Len(t, saved.TaskQueueMappings.Data(), 1)
	assert.Equal(t, "legal-queue", saved.TaskQueueMappings.Data()[0].QueueName)

	require.NoError(t, repo.Upsert(ctx, newMetadata("case-intake", 2, "general-queue")))

	saved, err = repo.FindByKey(ctx, "case-intake")
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)
	assert.Equal(t, "general-queue", saved.CandidateGroupMappings.Data()["default"])

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// TestWorkflowMetadataRepository_Lifecycle 测试部署与启用状态更新
func TestWorkflowMetadataRepository_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewWorkflowMetadataRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Upsert(ctx, newMetadata("case-intake", 1, "intake-queue")))

	ok, err := repo.UpdateDeployment(ctx, "case-intake", "dep-42", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateActive(ctx, "case-intake", false, now)
	require.NoError(t, err)
	assert.True(t, ok)

	saved, err := repo.FindByKey(ctx, "case-intake")
	require.NoError(t, err)
	assert.True(t, saved.Deployed)
	assert.Equal(t, "dep-42", saved.DeploymentID)
	assert.False(t, saved.Active)

	ok, err = repo.UpdateDeployment(ctx, "missing", "dep-1", now)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.FindByKey(ctx, "missing")
	assert.Error(t, err)
}
