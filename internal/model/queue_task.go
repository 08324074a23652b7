package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// QueueTaskStatus 队列任务状态
type QueueTaskStatus string

const (
	QueueTaskStatusOpen      QueueTaskStatus = "OPEN"
	QueueTaskStatusClaimed   QueueTaskStatus = "CLAIMED"
	QueueTaskStatusCompleted QueueTaskStatus = "COMPLETED"
)

// DefaultPriority 默认优先级（越大越紧急）
const DefaultPriority = 50

// QueueTaskModel 队列任务数据模型
// 每个可分发的工作单元一行,TaskID 由流程引擎分配
type QueueTaskModel struct {
	TaskID               string            `gorm:"primaryKey;type:varchar(64)" json:"task_id"`
	ProcessInstanceID    string            `gorm:"type:varchar(64);not null;index" json:"process_instance_id"`
	ProcessDefinitionKey string            `gorm:"type:varchar(128);not null;index" json:"process_definition_key"`
	TaskDefinitionKey    string            `gorm:"type:varchar(128)" json:"task_definition_key"`
	TaskName             string            `gorm:"type:varchar(255)" json:"task_name"`
	QueueName            string            `gorm:"type:varchar(128);not null;index" json:"queue_name"`
	Assignee             *string           `gorm:"type:varchar(64);index" json:"assignee"`
	Status               QueueTaskStatus   `gorm:"type:varchar(16);not null;index" json:"status"`
	Priority             int               `gorm:"not null;default:50" json:"priority"`
	EscalationCount      int               `gorm:"not null;default:0" json:"escalation_count"`
	TaskData             datatypes.JSONMap `gorm:"type:json" json:"task_data,omitempty"` // 仅用于展示
	CreatedAt            time.Time         `gorm:"not null;index" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"not null" json:"updated_at"`
	ClaimedAt            *time.Time        `json:"claimed_at"`
	CompletedAt          *time.Time        `gorm:"index" json:"completed_at"`
	CompletedBy          *string           `gorm:"type:varchar(64)" json:"completed_by"`

	// BusinessKey 从流程引擎按需查询,不持久化
	BusinessKey string `gorm:"-" json:"business_key,omitempty"`
}

// TableName 指定表名
func (QueueTaskModel) TableName() string {
	return "queue_tasks"
}

// Validate 验证队列任务模型
func (m *QueueTaskModel) Validate() error {
	if m.TaskID == "" {
		return errors.New("task ID is required")
	}
	if m.ProcessInstanceID == "" {
		return errors.New("process instance ID is required")
	}
	if m.QueueName == "" {
		return errors.New("queue name is required")
	}
	if m.Status == "" {
		return errors.New("task status is required")
	}
	return nil
}

// CheckInvariants 检查状态与 assignee/claimedAt/completedAt 的一致性
func (m *QueueTaskModel) CheckInvariants() error {
	claimed := m.Status == QueueTaskStatusClaimed
	if claimed != (m.Assignee != nil) {
		return errors.New("assignee must be set iff status is CLAIMED")
	}
	if claimed != (m.ClaimedAt != nil) {
		return errors.New("claimedAt must be set iff status is CLAIMED")
	}
	if (m.Status == QueueTaskStatusCompleted) != (m.CompletedAt != nil) {
		return errors.New("completedAt must be set iff status is COMPLETED")
	}
	return nil
}

// AssigneeOrEmpty 返回 assignee,未分配时返回空字符串
func (m *QueueTaskModel) AssigneeOrEmpty() string {
	if m.Assignee == nil {
		return ""
	}
	return *m.Assignee
}
