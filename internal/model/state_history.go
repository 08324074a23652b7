package model

import (
	"errors"
	"time"
)

// StateHistoryModel 队列任务状态变更历史数据模型
type StateHistoryModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TaskID    string    `gorm:"type:varchar(64);not null;index" json:"task_id"`
	Action    string    `gorm:"type:varchar(32);not null" json:"action"` // claim/unclaim/complete/escalate
	FromState string    `gorm:"type:varchar(16)" json:"from_state"`
	ToState   string    `gorm:"type:varchar(16);not null" json:"to_state"`
	FromQueue string    `gorm:"type:varchar(128)" json:"from_queue"`
	ToQueue   string    `gorm:"type:varchar(128)" json:"to_queue"`
	Reason    string    `gorm:"type:text" json:"reason"`
	Operator  string    `gorm:"type:varchar(64);not null" json:"operator"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (StateHistoryModel) TableName() string {
	return "state_history"
}

// Validate 验证状态历史模型
func (shm *StateHistoryModel) Validate() error {
	if shm.ID == "" {
		return errors.New("history ID is required")
	}
	if shm.TaskID == "" {
		return errors.New("task ID is required")
	}
	if shm.ToState == "" {
		return errors.New("to state is required")
	}
	if shm.Operator == "" {
		return errors.New("operator is required")
	}
	return nil
}
