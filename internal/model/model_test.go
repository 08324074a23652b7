package model_test

import (
	"testing"
	"time"

	"github.com/mautops/casework-gin/internal/model"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

// TestQueueTaskModelTableName 测试表名
func TestQueueTaskModelTableName(t *testing.T) {
	assert.Equal(t, "queue_tasks", model.QueueTaskModel{}.TableName())
	assert.Equal(t, "workflow_metadata", model.WorkflowMetadataModel{}.TableName())
	assert.Equal(t, "state_history", model.StateHistoryModel{}.TableName())
	assert.Equal(t, "audit_logs", model.AuditLogModel{}.TableName())
}

// TestQueueTaskModelValidation 测试队列任务验证
func TestQueueTaskModelValidation(t *testing.T) {
	task := &model.QueueTaskModel{
		TaskID:            "t-1",
		ProcessInstanceID: "pi-1",
		QueueName:         "hr-intake-queue",
		Status:            model.QueueTaskStatusOpen,
	}
	assert.NoError(t, task.Validate())

	task.QueueName = ""
	assert.Error(t, task.Validate())

	task.QueueName = "hr-intake-queue"
	task.TaskID = ""
	assert.Error(t, task.Validate())
}

// TestQueueTaskModelInvariants 测试状态与字段一致性
func TestQueueTaskModelInvariants(t *testing.T) {
	now := time.Now().UTC()
	alice := "alice"

	open := &model.QueueTaskModel{Status: model.QueueTaskStatusOpen}
	assert.NoError(t, open.CheckInvariants())
	assert.Equal(t, "", open.AssigneeOrEmpty())

	claimed := &model.QueueTaskModel{Status: model.QueueTaskStatusClaimed, Assignee: &alice, ClaimedAt: &now}
	assert.NoError(t, claimed.CheckInvariants())
	assert.Equal(t, "alice", claimed.AssigneeOrEmpty())

	// CLAIMED 但没有 assignee
	broken := &model.QueueTaskModel{Status: model.QueueTaskStatusClaimed, ClaimedAt: &now}
	assert.Error(t, broken.CheckInvariants())

	// OPEN 但有 assignee
	broken = &model.QueueTaskModel{Status: model.QueueTaskStatusOpen, Assignee: &alice, ClaimedAt: &now}
	assert.Error(t, broken.CheckInvariants())

	completed := &model.QueueTaskModel{Status: model.QueueTaskStatusCompleted, CompletedAt: &now}
	assert.NoError(t, completed.CheckInvariants())

	broken = &model.QueueTaskModel{Status: model.QueueTaskStatusCompleted}
	assert.Error(t, broken.CheckInvariants())
}

// TestWorkflowMetadataModelValidation 测试流程元数据验证
func TestWorkflowMetadataModelValidation(t *testing.T) {
	metadata := &model.WorkflowMetadataModel{
		ProcessDefinitionKey:   "case-intake",
		CandidateGroupMappings: datatypes.NewJSONType(map[string]string{"default": "intake-queue"}),
	}
	assert.NoError(t, metadata.Validate())

	metadata.CandidateGroupMappings = datatypes.NewJSONType(map[string]string{"hr": "hr-intake-queue"})
	assert.Error(t, metadata.Validate())

	metadata.CandidateGroupMappings = datatypes.NewJSONType(map[string]string{"default": "intake-queue", "hr": ""})
	assert.Error(t, metadata.Validate())

	metadata.CandidateGroupMappings = datatypes.NewJSONType(map[string]string{"default": "intake-queue"})
	metadata.TaskQueueMappings = datatypes.NewJSONType([]model.TaskQueueMapping{{TaskDefinitionKey: "review"}})
	assert.Error(t, metadata.Validate())

	metadata.TaskQueueMappings = datatypes.NewJSONType([]model.TaskQueueMapping{})
	metadata.ProcessDefinitionKey = ""
	assert.Error(t, metadata.Validate())
}

// TestStateHistoryAndAuditValidation 测试历史与审计记录验证
func TestStateHistoryAndAuditValidation(t *testing.T) {
	history := &model.StateHistoryModel{ID: "h-1", TaskID: "t-1", ToState: "CLAIMED", Operator: "alice"}
	assert.NoError(t, history.Validate())
	history.Operator = ""
	assert.Error(t, history.Validate())

	audit := &model.AuditLogModel{ID: "a-1", UserID: "alice", Action: "claim", ResourceType: model.AuditResourceQueueTask, ResourceID: "t-1"}
	assert.NoError(t, audit.Validate())
	audit.ResourceType = "template"
	assert.Error(t, audit.Validate())
	audit.ResourceType = model.AuditResourceWorkflowMetadata
	assert.NoError(t, audit.Validate())
	audit.ResourceID = ""
	assert.Error(t, audit.Validate())
}
