package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// DefaultCandidateGroup 候选组映射中必需的兜底键
const DefaultCandidateGroup = "default"

// TaskQueueMapping 任务定义到队列的显式映射
type TaskQueueMapping struct {
	TaskDefinitionKey string `json:"task_definition_key" yaml:"task_definition_key"`
	QueueName         string `json:"queue_name" yaml:"queue_name"`
}

// WorkflowMetadataModel 流程元数据模型
// 每个流程定义 key 一行,记录候选组/任务定义到队列的映射以及部署信息
type WorkflowMetadataModel struct {
	ProcessDefinitionKey   string                                 `gorm:"primaryKey;type:varchar(128)" json:"process_definition_key"`
	ProcessName            string                                 `gorm:"type:varchar(255)" json:"process_name"`
	Version                int                                    `gorm:"not null;default:1" json:"version"`
	CandidateGroupMappings datatypes.JSONType[map[string]string]  `gorm:"type:json;not null" json:"candidate_group_mappings"`
	TaskQueueMappings      datatypes.JSONType[[]TaskQueueMapping] `gorm:"type:json;not null" json:"task_queue_mappings"`
	Active                 bool                                   `gorm:"not null;default:true" json:"active"`
	Deployed               bool                                   `gorm:"not null;default:false" json:"deployed"`
	DeploymentID           string                                 `gorm:"type:varchar(128)" json:"deployment_id"`
	CreatedAt              time.Time                              `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time                              `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (WorkflowMetadataModel) TableName() string {
	return "workflow_metadata"
}

// Validate 验证流程元数据模型
func (m *WorkflowMetadataModel) Validate() error {
	if m.ProcessDefinitionKey == "" {
		return errors.New("process definition key is required")
	}
	groups := m.CandidateGroupMappings.Data()
	if groups[DefaultCandidateGroup] == "" {
		return errors.New("candidate group mappings must contain a default queue")
	}
	for group, queue := range groups {
		if group == "" || queue == "" {
			return errors.New("candidate group mappings must not contain blank entries")
		}
	}
	for _, mapping := range m.TaskQueueMappings.Data() {
		if mapping.TaskDefinitionKey == "" || mapping.QueueName == "" {
			return errors.New("task queue mappings must not contain blank entries")
		}
	}
	return nil
}
