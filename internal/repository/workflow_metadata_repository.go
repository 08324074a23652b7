package repository

import (
	"context"
	"time"

	"github.com/mautops/casework-gin/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkflowMetadataRepository 流程元数据仓储接口
type WorkflowMetadataRepository interface {
	Upsert(ctx context.Context, metadata *model.WorkflowMetadataModel) error
	FindByKey(ctx context.Context, processDefinitionKey string) (*model.WorkflowMetadataModel, error)
	FindAll(ctx context.Context) ([]*model.WorkflowMetadataModel, error)
	UpdateDeployment(ctx context.Context, processDefinitionKey, deploymentID string, now time.Time) (bool, error)
	UpdateActive(ctx context.Context, processDefinitionKey string, active bool, now time.Time) (bool, error)
}

// workflowMetadataRepository 流程元数据仓储实现
type workflowMetadataRepository struct {
	db *gorm.DB
}

// NewWorkflowMetadataRepository 创建流程元数据仓储
func NewWorkflowMetadataRepository(db *gorm.DB) WorkflowMetadataRepository {
	return &workflowMetadataRepository{db: db}
}

// Upsert 按流程定义 key 插入或覆盖元数据
func (r *workflowMetadataRepository) Upsert(ctx context.Context, metadata *model.WorkflowMetadataModel) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "process_definition_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"process_name", "version", "candidate_group_mappings", "task_queue_mappings",
				"active", "updated_at",
			}),
		}).
		Create(metadata).Error
}

// FindByKey 根据流程定义 key 查找元数据
func (r *workflowMetadataRepository) FindByKey(ctx context.Context, processDefinitionKey string) (*model.WorkflowMetadataModel, error) {
	var metadata model.WorkflowMetadataModel
	if err := r.db.WithContext(ctx).Where("process_definition_key = ?", processDefinitionKey).First(&metadata).Error; err != nil {
		return nil, err
	}
	return &metadata, nil
}

// FindAll 查找所有元数据
func (r *workflowMetadataRepository) FindAll(ctx context.Context) ([]*model.WorkflowMetadataModel, error) {
	var list []*model.WorkflowMetadataModel
	err := r.db.WithContext(ctx).Order("process_definition_key ASC").Find(&list).Error
	return list, err
}

// UpdateDeployment 记录部署信息
func (r *workflowMetadataRepository) UpdateDeployment(ctx context.Context, processDefinitionKey, deploymentID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.WorkflowMetadataModel{}).
		Where("process_definition_key = ?", processDefinitionKey).
		Updates(map[string]interface{}{
			"deployed":      true,
			"deployment_id": deploymentID,
			"updated_at":    now,
		})
	return result.RowsAffected == 1, result.Error
}

// UpdateActive 更新启用状态
func (r *workflowMetadataRepository) UpdateActive(ctx context.Context, processDefinitionKey string, active bool, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.WorkflowMetadataModel{}).
		Where("process_definition_key = ?", processDefinitionKey).
		Updates(map[string]interface{}{
			"active":     active,
			"updated_at": now,
		})
	return result.RowsAffected == 1, result.Error
}
