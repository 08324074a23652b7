package repository

import (
	"context"

	"github.com/mautops/casework-gin/internal/model"
	"gorm.io/gorm"
)

// StateHistoryRepository 状态历史仓储接口
type StateHistoryRepository interface {
	Save(ctx context.Context, history *model.StateHistoryModel) error
	FindByTaskID(ctx context.Context, taskID string) ([]*model.StateHistoryModel, error)
}

// stateHistoryRepository 状态历史仓储实现
type stateHistoryRepository struct {
	db *gorm.DB
}

// NewStateHistoryRepository 创建状态历史仓储
func NewStateHistoryRepository(db *gorm.DB) StateHistoryRepository {
	return &stateHistoryRepository{db: db}
}

// Save 保存状态历史
func (r *stateHistoryRepository) Save(ctx context.Context, history *model.StateHistoryModel) error {
	return r.db.WithContext(ctx).Create(history).Error
}

// FindByTaskID 根据任务 ID 查找状态历史
func (r *stateHistoryRepository) FindByTaskID(ctx context.Context, taskID string) ([]*model.StateHistoryModel, error) {
	var histories []*model.StateHistoryModel
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("created_at ASC").Find(&histories).Error
	return histories, err
}
