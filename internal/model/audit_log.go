package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// AuditResourceType 审计对象类型
type AuditResourceType string

const (
	AuditResourceQueueTask        AuditResourceType = "queue_task"
	AuditResourceWorkflowMetadata AuditResourceType = "workflow_metadata"
)

// AuditLogModel 审计日志数据模型
// 每次队列任务迁移或流程元数据变更写一行; Queue 记录操作发生时任务所在的队列
type AuditLogModel struct {
	ID           string            `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID       string            `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Action       string            `gorm:"type:varchar(64);not null;index" json:"action"`
	ResourceType AuditResourceType `gorm:"type:varchar(32);not null;index:idx_audit_resource" json:"resource_type"`
	ResourceID   string            `gorm:"type:varchar(128);not null;index:idx_audit_resource" json:"resource_id"`
	Queue        string            `gorm:"type:varchar(128);index" json:"queue,omitempty"`
	RequestID    string            `gorm:"type:varchar(64);index" json:"request_id,omitempty"`
	IP           string            `gorm:"type:varchar(45)" json:"ip,omitempty"`
	UserAgent    string            `gorm:"type:text" json:"user_agent,omitempty"`
	Details      datatypes.JSON    `gorm:"type:json" json:"details,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// Validate 验证审计日志模型
func (m *AuditLogModel) Validate() error {
	switch {
	case m.ID == "":
		return errors.New("audit log ID is required")
	case m.UserID == "":
		return errors.New("user ID is required")
	case m.Action == "":
		return errors.New("action is required")
	case m.ResourceID == "":
		return errors.New("resource ID is required")
	}
	switch m.ResourceType {
	case AuditResourceQueueTask, AuditResourceWorkflowMetadata:
		return nil
	case "":
		return errors.New("resource type is required")
	default:
		return errors.New("unknown audit resource type " + string(m.ResourceType))
	}
}
