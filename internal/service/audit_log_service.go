package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/casework-gin/internal/model"
	"github.com/mautops/casework-gin/internal/repository"
)

// AuditEntry 一条待记录的审计日志
type AuditEntry struct {
	UserID       string
	Action       string
	ResourceType model.AuditResourceType
	ResourceID   string
	Queue        string
	Details      interface{}
}

// AuditLogService 审计日志服务
type AuditLogService interface {
	Record(ctx context.Context, entry *AuditEntry) error
	ListByResource(ctx context.Context, resourceType model.AuditResourceType, resourceID string) ([]*model.AuditLogModel, error)
	ListByQueue(ctx context.Context, queue string, limit int) ([]*model.AuditLogModel, error)
}

// auditLogService 审计日志服务实现
type auditLogService struct {
	auditRepo repository.AuditLogRepository
	now       func() time.Time
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(auditRepo repository.AuditLogRepository) AuditLogService {
	return &auditLogService{
		auditRepo: auditRepo,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Record 记录审计日志,请求 ID、IP 与 User-Agent 取自 ctx
func (s *auditLogService) Record(ctx context.Context, entry *AuditEntry) error {
	var details []byte
	if entry.Details != nil {
		encoded, err := json.Marshal(entry.Details)
		if err != nil {
			return err
		}
		details = encoded
	}

	info := requestInfoFrom(ctx)
	return s.auditRepo.Save(ctx, &model.AuditLogModel{
		ID:           uuid.New().String(),
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Queue:        entry.Queue,
		RequestID:    info.RequestID,
		IP:           info.IP,
		UserAgent:    info.UserAgent,
		Details:      details,
		CreatedAt:    s.now(),
	})
}

// ListByResource 查询资源的审计日志
func (s *auditLogService) ListByResource(ctx context.Context, resourceType model.AuditResourceType, resourceID string) ([]*model.AuditLogModel, error) {
	return s.auditRepo.FindByResource(ctx, resourceType, resourceID)
}

// ListByQueue 查询队列上最近的操作
func (s *auditLogService) ListByQueue(ctx context.Context, queue string, limit int) ([]*model.AuditLogModel, error) {
	return s.auditRepo.FindByQueue(ctx, queue, limit)
}
