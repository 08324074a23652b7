package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mautops/casework-gin/internal/engine"
	"github.com/mautops/casework-gin/internal/model"
	"github.com/mautops/casework-gin/internal/repository"
	"github.com/mautops/casework-gin/internal/routing"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MetadataService 流程元数据注册服务接口
type MetadataService interface {
	Register(ctx context.Context, operator string, req *RegisterMetadataRequest) (*model.WorkflowMetadataModel, error)
	Get(ctx context.Context, processDefinitionKey string) (*model.WorkflowMetadataModel, error)
	List(ctx context.Context) ([]*model.WorkflowMetadataModel, error)
	MarkDeployed(ctx context.Context, operator, processDefinitionKey, deploymentID string) (*model.WorkflowMetadataModel, error)
	SetActive(ctx context.Context, operator, processDefinitionKey string, active bool) (*model.WorkflowMetadataModel, error)
	ResolveQueue(ctx context.Context, task *engine.ActiveTask) (string, bool, error)
}

// RegisterMetadataRequest 注册流程元数据请求
type RegisterMetadataRequest struct {
	ProcessDefinitionKey   string                   `json:"process_definition_key" yaml:"process_definition_key" binding:"required"`
	ProcessName            string                   `json:"process_name" yaml:"process_name"`
	Version                int                      `json:"version" yaml:"version"` // 0 表示自动递增
	CandidateGroupMappings map[string]string        `json:"candidate_group_mappings" yaml:"candidate_group_mappings"`
	TaskQueueMappings      []model.TaskQueueMapping `json:"task_queue_mappings" yaml:"task_queue_mappings"`
	Active                 *bool                    `json:"active" yaml:"active"`
}

// DeployRequest 部署请求
type DeployRequest struct {
	DeploymentID string `json:"deployment_id" binding:"required"`
}

// metadataService 流程元数据注册服务实现
type metadataService struct {
	repo        repository.WorkflowMetadataRepository
	tables      *routing.Tables
	cache       *MetadataCache
	auditLogSvc AuditLogService
	logger      *logrus.Logger
	now         func() time.Time
}

// NewMetadataService 创建流程元数据注册服务
// tables 不为空时,注册的队列名必须出现在路由表中
func NewMetadataService(repo repository.WorkflowMetadataRepository, tables *routing.Tables, cache *MetadataCache, auditLogSvc AuditLogService, logger *logrus.Logger) MetadataService {
	if cache == nil {
		cache = NewMetadataCache(5 * time.Minute)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &metadataService{
		repo:        repo,
		tables:      tables,
		cache:       cache,
		auditLogSvc: auditLogSvc,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// checkQueues 检查映射中的队列都在路由表中
func (s *metadataService) checkQueues(req *RegisterMetadataRequest) error {
	if s.tables == nil {
		return nil
	}
	queues := make([]string, 0, len(req.CandidateGroupMappings)+len(req.TaskQueueMappings))
	for _, queue := range req.CandidateGroupMappings {
		queues = append(queues, queue)
	}
	for _, mapping := range req.TaskQueueMappings {
		queues = append(queues, mapping.QueueName)
	}
	for _, queue := range queues {
		if _, ok := s.tables.DepartmentOf(queue); !ok {
			return newError(KindValidation, "queue %s is not defined in the routing tables", queue)
		}
	}
	return nil
}

// Register 注册或更新流程元数据
func (s *metadataService) Register(ctx context.Context, operator string, req *RegisterMetadataRequest) (*model.WorkflowMetadataModel, error) {
	if req == nil || strings.TrimSpace(req.ProcessDefinitionKey) == "" {
		return nil, newError(KindValidation, "process definition key is required")
	}
	key := strings.TrimSpace(req.ProcessDefinitionKey)

	now := s.now()
	metadata := &model.WorkflowMetadataModel{
		ProcessDefinitionKey:   key,
		ProcessName:            req.ProcessName,
		Version:                1,
		CandidateGroupMappings: datatypes.NewJSONType(req.CandidateGroupMappings),
		TaskQueueMappings:      datatypes.NewJSONType(req.TaskQueueMappings),
		Active:                 true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if req.TaskQueueMappings == nil {
		metadata.TaskQueueMappings = datatypes.NewJSONType([]model.TaskQueueMapping{})
	}
	if req.Active != nil {
		metadata.Active = *req.Active
	}
	if err := metadata.Validate(); err != nil {
		return nil, wrapError(KindValidation, err, "invalid workflow metadata for %s", key)
	}
	if err := s.checkQueues(req); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByKey(ctx, key)
	switch {
	case err == nil:
		// 重新注册时版本递增,显式给出更高版本时使用该版本
		metadata.Version = existing.Version + 1
		if req.Version > existing.Version {
			metadata.Version = req.Version
		}
		metadata.CreatedAt = existing.CreatedAt
		metadata.Deployed = existing.Deployed
		metadata.DeploymentID = existing.DeploymentID
	case errors.Is(err, gorm.ErrRecordNotFound):
		if req.Version > 0 {
			metadata.Version = req.Version
		}
	default:
		return nil, err
	}

	if err := s.repo.Upsert(ctx, metadata); err != nil {
		return nil, err
	}
	s.cache.Invalidate(key)

	s.logger.WithFields(logrus.Fields{
		"process_definition_key": key,
		"version":                metadata.Version,
		"operator":               operator,
	}).Info("workflow metadata registered")
	s.recordAudit(ctx, operator, "register", key, map[string]interface{}{
		"version":                  metadata.Version,
		"candidate_group_mappings": req.CandidateGroupMappings,
		"task_queue_mappings":      req.TaskQueueMappings,
	})

	return metadata, nil
}

// Get 获取流程元数据（走缓存）
func (s *metadataService) Get(ctx context.Context, processDefinitionKey string) (*model.WorkflowMetadataModel, error) {
	if processDefinitionKey == "" {
		return nil, newError(KindValidation, "process definition key is required")
	}
	if cached, ok := s.cache.Get(processDefinitionKey); ok {
		return cached, nil
	}

	metadata, err := s.repo.FindByKey(ctx, processDefinitionKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "workflow metadata %s not found", processDefinitionKey)
		}
		return nil, err
	}
	s.cache.Set(processDefinitionKey, metadata)
	return metadata, nil
}

// List 列出所有流程元数据
func (s *metadataService) List(ctx context.Context) ([]*model.WorkflowMetadataModel, error) {
	return s.repo.FindAll(ctx)
}

// MarkDeployed 记录流程部署
func (s *metadataService) MarkDeployed(ctx context.Context, operator, processDefinitionKey, deploymentID string) (*model.WorkflowMetadataModel, error) {
	if strings.TrimSpace(deploymentID) == "" {
		return nil, newError(KindValidation, "deployment ID is required")
	}
	ok, err := s.repo.UpdateDeployment(ctx, processDefinitionKey, deploymentID, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(KindNotFound, "workflow metadata %s not found", processDefinitionKey)
	}
	s.cache.Invalidate(processDefinitionKey)
	s.recordAudit(ctx, operator, "deploy", processDefinitionKey, map[string]string{"deployment_id": deploymentID})
	return s.Get(ctx, processDefinitionKey)
}

// SetActive 启用或停用流程元数据
func (s *metadataService) SetActive(ctx context.Context, operator, processDefinitionKey string, active bool) (*model.WorkflowMetadataModel, error) {
	ok, err := s.repo.UpdateActive(ctx, processDefinitionKey, active, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(KindNotFound, "workflow metadata %s not found", processDefinitionKey)
	}
	s.cache.Invalidate(processDefinitionKey)
	s.recordAudit(ctx, operator, "set_active", processDefinitionKey, map[string]bool{"active": active})
	return s.Get(ctx, processDefinitionKey)
}

// ResolveQueue 解析任务的目标队列
// 未注册（或已停用）的流程定义返回 ("", false, nil)
func (s *metadataService) ResolveQueue(ctx context.Context, task *engine.ActiveTask) (string, bool, error) {
	metadata, err := s.Get(ctx, task.ProcessDefinitionKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if !metadata.Active {
		return "", false, nil
	}
	return resolveQueue(metadata, task.TaskDefinitionKey, task.CandidateGroups), true, nil
}

// resolveQueue 按 任务定义覆盖 > 候选组映射 > default 的顺序解析队列
func resolveQueue(metadata *model.WorkflowMetadataModel, taskDefinitionKey string, candidateGroups []string) string {
	for _, mapping := range metadata.TaskQueueMappings.Data() {
		if mapping.TaskDefinitionKey == taskDefinitionKey {
			return mapping.QueueName
		}
	}
	groups := metadata.CandidateGroupMappings.Data()
	for _, group := range candidateGroups {
		if queue, ok := groups[group]; ok && group != model.DefaultCandidateGroup {
			return queue
		}
	}
	return groups[model.DefaultCandidateGroup]
}

// recordAudit 记录审计日志,失败只记录警告
func (s *metadataService) recordAudit(ctx context.Context, operator, action, key string, details interface{}) {
	if s.auditLogSvc == nil || operator == "" {
		return
	}
	entry := &AuditEntry{
		UserID:       operator,
		Action:       action,
		ResourceType: model.AuditResourceWorkflowMetadata,
		ResourceID:   key,
		Details:      details,
	}
	if err := s.auditLogSvc.Record(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("process_definition_key", key).Warn("failed to record audit log")
	}
}
