package repository

import (
	"context"

	"github.com/mautops/casework-gin/internal/model"
	"gorm.io/gorm"
)

// AuditLogRepository 审计日志仓储接口
type AuditLogRepository interface {
	Save(ctx context.Context, log *model.AuditLogModel) error
	FindByResource(ctx context.Context, resourceType model.AuditResourceType, resourceID string) ([]*model.AuditLogModel, error)
	FindByQueue(ctx context.Context, queue string, limit int) ([]*model.AuditLogModel, error)
}

// auditLogRepository 审计日志仓储实现
type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Save 验证并保存审计日志
func (r *auditLogRepository) Save(ctx context.Context, log *model.AuditLogModel) error {
	if err := log.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByResource 按资源查找审计日志,按时间正序
func (r *auditLogRepository) FindByResource(ctx context.Context, resourceType model.AuditResourceType, resourceID string) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	err := r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

// FindByQueue 查找队列上最近的审计日志,limit <= 0 时不限制
func (r *auditLogRepository) FindByQueue(ctx context.Context, queue string, limit int) ([]*model.AuditLogModel, error) {
	query := r.db.WithContext(ctx).Where("queue = ?", queue).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var logs []*model.AuditLogModel
	err := query.Find(&logs).Error
	return logs, err
}
