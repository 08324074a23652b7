package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/casework-gin/internal/engine"
	"github.com/mautops/casework-gin/internal/events"
	"github.com/mautops/casework-gin/internal/metrics"
	"github.com/mautops/casework-gin/internal/model"
	"github.com/mautops/casework-gin/internal/repository"
	"github.com/mautops/casework-gin/internal/routing"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 状态迁移动作
const (
	ActionClaim    = "claim"
	ActionUnclaim  = "unclaim"
	ActionComplete = "complete"
	ActionEscalate = "escalate"
)

// EngineOperator 引擎侧完成信号的操作者
const EngineOperator = "process-engine"

// QueueTaskService 队列任务状态机接口
// 所有对队列任务的修改都经过这里
type QueueTaskService interface {
	Get(ctx context.Context, actor *Actor, taskID string) (*model.QueueTaskModel, error)
	ListQueue(ctx context.Context, actor *Actor, queue string, query *ListQueueQuery) ([]*model.QueueTaskModel, int64, error)
	Claim(ctx context.Context, actor *Actor, taskID string) (*model.QueueTaskModel, error)
	Unclaim(ctx context.Context, actor *Actor, taskID string) (*model.QueueTaskModel, error)
	Complete(ctx context.Context, actor *Actor, taskID string, variables map[string]interface{}) (*model.QueueTaskModel, error)
	HandleEngineCompletion(ctx context.Context, taskID string) (*model.QueueTaskModel, error)
	Escalate(ctx context.Context, actor *Actor, taskID string, reason string) (*model.QueueTaskModel, error)
	History(ctx context.Context, actor *Actor, taskID string) ([]*model.StateHistoryModel, error)
	QueueActivity(ctx context.Context, actor *Actor, queue string, limit int) ([]*model.AuditLogModel, error)
}

// ListQueueQuery 队列列表查询参数
type ListQueueQuery struct {
	Status   *model.QueueTaskStatus
	Page     int
	PageSize int
}

// CompleteRequest 完成任务请求
type CompleteRequest struct {
	Variables map[string]interface{} `json:"variables"`
}

// EscalateRequest 升级任务请求
type EscalateRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// queueTaskService 队列任务状态机实现
type queueTaskService struct {
	taskRepo    repository.QueueTaskRepository
	historyRepo repository.StateHistoryRepository
	auditLogSvc AuditLogService
	engine      engine.ProcessEngine
	tables      *routing.Tables
	publisher   events.Publisher
	logger      *logrus.Logger
	now         func() time.Time
}

// NewQueueTaskService 创建队列任务状态机
func NewQueueTaskService(
	taskRepo repository.QueueTaskRepository,
	historyRepo repository.StateHistoryRepository,
	auditLogSvc AuditLogService,
	processEngine engine.ProcessEngine,
	tables *routing.Tables,
	publisher events.Publisher,
	logger *logrus.Logger,
) QueueTaskService {
	if tables == nil {
		tables = routing.DefaultTables()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &queueTaskService{
		taskRepo:    taskRepo,
		historyRepo: historyRepo,
		auditLogSvc: auditLogSvc,
		engine:      processEngine,
		tables:      tables,
		publisher:   publisher,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Get 获取任务,业务 key 从引擎按需查询
func (s *queueTaskService) Get(ctx context.Context, actor *Actor, taskID string) (*model.QueueTaskModel, error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, task); err != nil {
		return nil, err
	}

	if s.engine != nil {
		key, err := s.engine.GetBusinessKey(ctx, task.ProcessInstanceID)
		if err != nil {
			s.logger.WithError(err).WithField("process_instance_id", task.ProcessInstanceID).Warn("failed to look up business key")
		} else {
			task.BusinessKey = key
		}
	}
	return task, nil
}

// ListQueue 分页列出队列中的任务
func (s *queueTaskService) ListQueue(ctx context.Context, actor *Actor, queue string, query *ListQueueQuery) ([]*model.QueueTaskModel, int64, error) {
	if strings.TrimSpace(queue) == "" {
		return nil, 0, newError(KindValidation, "queue name is required")
	}
	if actor == nil || !s.tables.CanAccess(actor.Roles, queue) {
		return nil, 0, newError(KindUnauthorized, "no access to queue %s", queue)
	}

	filter := &repository.QueueTaskFilter{Queues: []string{queue}}
	if query != nil {
		filter.Status = query.Status
		page, pageSize := NormalizePage(query.Page, query.PageSize)
		filter.Offset = (page - 1) * pageSize
		filter.Limit = pageSize
	}
	return s.taskRepo.FindByFilter(ctx, filter)
}

// QueueActivity 返回队列上最近的操作记录
func (s *queueTaskService) QueueActivity(ctx context.Context, actor *Actor, queue string, limit int) ([]*model.AuditLogModel, error) {
	if strings.TrimSpace(queue) == "" {
		return nil, newError(KindValidation, "queue name is required")
	}
	if actor == nil || !s.tables.CanAccess(actor.Roles, queue) {
		return nil, newError(KindUnauthorized, "no access to queue %s", queue)
	}
	if s.auditLogSvc == nil {
		return []*model.AuditLogModel{}, nil
	}
	_, limit = NormalizePage(1, limit)
	return s.auditLogSvc.ListByQueue(ctx, queue, limit)
}

// Claim 认领任务
func (s *queueTaskService) Claim(ctx context.Context, actor *Actor, taskID string) (*model.QueueTaskModel, error) {
	if actor == nil || actor.UserID == "" {
		return nil, s.fail(ActionClaim, newError(KindValidation, "user ID is required"))
	}
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, s.fail(ActionClaim, err)
	}
	if err := s.authorize(actor, task); err != nil {
		return nil, s.fail(ActionClaim, err)
	}

	ok, err := s.taskRepo.ClaimIfOpen(ctx, taskID, actor.UserID, s.now())
	if err != nil {
		return nil, s.fail(ActionClaim, err)
	}
	if !ok {
		// 条件更新未命中,重新读取判断原因
		current, err := s.load(ctx, taskID)
		if err != nil {
			return nil, s.fail(ActionClaim, err)
		}
		if current.Assignee != nil && *current.Assignee != actor.UserID {
			return nil, s.fail(ActionClaim, newError(KindConflict, "task %s is already claimed by another user", taskID))
		}
		return nil, s.fail(ActionClaim, newError(KindInvalidState, "task %s is %s, expected OPEN", taskID, current.Status))
	}

	return s.afterTransition(ctx, ActionClaim, task, actor.UserID, "")
}

// Unclaim 释放任务回队列
func (s *queueTaskService) Unclaim(ctx context.Context, actor *Actor, taskID string) (*model.QueueTaskModel, error) {
	if actor == nil || actor.UserID == "" {
		return nil, s.fail(ActionUnclaim, newError(KindValidation, "user ID is required"))
	}
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, s.fail(ActionUnclaim, err)
	}
	if err := s.authorize(actor, task); err != nil {
		return nil, s.fail(ActionUnclaim, err)
	}
	if task.Status != model.QueueTaskStatusClaimed {
		return nil, s.fail(ActionUnclaim, newError(KindInvalidState, "task %s is %s, expected CLAIMED", taskID, task.Status))
	}
	if task.AssigneeOrEmpty() != actor.UserID && !s.tables.IsBypass(actor.Roles) {
		return nil, s.fail(ActionUnclaim, newError(KindConflict, "task %s is claimed by another user", taskID))
	}

	ok, err := s.taskRepo.UnclaimIfClaimed(ctx, taskID, s.now())
	if err != nil {
		return nil, s.fail(ActionUnclaim, err)
	}
	if !ok {
		current, err := s.load(ctx, taskID)
		if err != nil {
			return nil, s.fail(ActionUnclaim, err)
		}
		return nil, s.fail(ActionUnclaim, newError(KindInvalidState, "task %s is %s, expected CLAIMED", taskID, current.Status))
	}

	return s.afterTransition(ctx, ActionUnclaim, task, actor.UserID, "")
}

// Complete 完成任务
// 已完成的任务直接返回成功; 先调用引擎完成任务,再做条件更新
func (s *queueTaskService) Complete(ctx context.Context, actor *Actor, taskID string, variables map[string]interface{}) (*model.QueueTaskModel, error) {
	if actor == nil || actor.UserID == "" {
		return nil, s.fail(ActionComplete, newError(KindValidation, "user ID is required"))
	}
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, s.fail(ActionComplete, err)
	}
	if err := s.authorize(actor, task); err != nil {
		return nil, s.fail(ActionComplete, err)
	}

	switch task.Status {
	case model.QueueTaskStatusCompleted:
		return task, nil
	case model.QueueTaskStatusOpen:
		return nil, s.fail(ActionComplete, newError(KindInvalidState, "task %s must be claimed before completion", taskID))
	}
	if task.AssigneeOrEmpty() != actor.UserID && !s.tables.IsBypass(actor.Roles) {
		return nil, s.fail(ActionComplete, newError(KindConflict, "task %s is claimed by another user", taskID))
	}

	if s.engine != nil {
		err := s.engine.CompleteTask(ctx, taskID, variables)
		switch {
		case errors.Is(err, engine.ErrNotFound):
			// 引擎中已不存在该任务: 已被并发请求或引擎自身完成
			s.logger.WithField("task_id", taskID).Info("task already completed in process engine")
		case err != nil:
			return nil, s.fail(ActionComplete, wrapError(KindUpstreamUnavailable, err, "process engine failed to complete task %s", taskID))
		}
	}

	ok, err := s.taskRepo.CompleteIfClaimed(ctx, taskID, actor.UserID, s.now())
	if err != nil {
		return nil, s.fail(ActionComplete, err)
	}
	if !ok {
		current, err := s.load(ctx, taskID)
		if err != nil {
			return nil, s.fail(ActionComplete, err)
		}
		// 并发完成（如引擎回调先到）视为成功
		if current.Status == model.QueueTaskStatusCompleted {
			return current, nil
		}
		return nil, s.fail(ActionComplete, newError(KindInvalidState, "task %s is %s, expected CLAIMED", taskID, current.Status))
	}

	return s.afterTransition(ctx, ActionComplete, task, actor.UserID, "")
}

// HandleEngineCompletion 处理引擎侧的任务完成信号,不回调引擎
func (s *queueTaskService) HandleEngineCompletion(ctx context.Context, taskID string) (*model.QueueTaskModel, error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == model.QueueTaskStatusCompleted {
		return task, nil
	}

	ok, err := s.taskRepo.CompleteIfActive(ctx, taskID, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.load(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if current.Status == model.QueueTaskStatusCompleted {
			return current, nil
		}
		return nil, newError(KindInvalidState, "task %s could not be completed from %s", taskID, current.Status)
	}

	return s.afterTransition(ctx, ActionComplete, task, EngineOperator, "completed in process engine")
}

// Escalate 升级任务到上级队列
func (s *queueTaskService) Escalate(ctx context.Context, actor *Actor, taskID string, reason string) (*model.QueueTaskModel, error) {
	if actor == nil || actor.UserID == "" {
		return nil, s.fail(ActionEscalate, newError(KindValidation, "user ID is required"))
	}
	if strings.TrimSpace(reason) == "" {
		return nil, s.fail(ActionEscalate, newError(KindValidation, "escalation reason is required"))
	}
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, s.fail(ActionEscalate, err)
	}
	if err := s.authorize(actor, task); err != nil {
		return nil, s.fail(ActionEscalate, err)
	}
	if task.Status == model.QueueTaskStatusCompleted {
		return nil, s.fail(ActionEscalate, newError(KindInvalidState, "task %s is already completed", taskID))
	}

	target, ok := s.tables.EscalationTarget(task.QueueName)
	if !ok {
		return nil, s.fail(ActionEscalate, newError(KindInvalidState, "no escalation path from queue %s", task.QueueName))
	}

	ok, err = s.taskRepo.ReassignQueue(ctx, taskID, task.QueueName, target, s.now())
	if err != nil {
		return nil, s.fail(ActionEscalate, err)
	}
	if !ok {
		current, err := s.load(ctx, taskID)
		if err != nil {
			return nil, s.fail(ActionEscalate, err)
		}
		if current.Status != model.QueueTaskStatusCompleted && current.QueueName != task.QueueName {
			return nil, s.fail(ActionEscalate, newError(KindConflict, "task %s was moved to %s concurrently", taskID, current.QueueName))
		}
		return nil, s.fail(ActionEscalate, newError(KindInvalidState, "task %s is %s", taskID, current.Status))
	}

	return s.afterTransition(ctx, ActionEscalate, task, actor.UserID, reason)
}

// History 查询任务的状态历史
func (s *queueTaskService) History(ctx context.Context, actor *Actor, taskID string) ([]*model.StateHistoryModel, error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, task); err != nil {
		return nil, err
	}
	return s.historyRepo.FindByTaskID(ctx, taskID)
}

// load 读取任务
func (s *queueTaskService) load(ctx context.Context, taskID string) (*model.QueueTaskModel, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, newError(KindValidation, "task ID is required")
	}
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "task %s not found", taskID)
		}
		return nil, err
	}
	return task, nil
}

// authorize 检查角色对任务所在队列的访问权限
func (s *queueTaskService) authorize(actor *Actor, task *model.QueueTaskModel) error {
	if actor == nil || !s.tables.CanAccess(actor.Roles, task.QueueName) {
		return newError(KindUnauthorized, "no access to queue %s", task.QueueName)
	}
	return nil
}

// fail 记录失败指标并返回错误
func (s *queueTaskService) fail(action string, err error) error {
	metrics.RecordTransitionFailure(action, string(KindOf(err)))
	return err
}

// afterTransition 记录历史、审计、指标并发布事件,返回最新任务
func (s *queueTaskService) afterTransition(ctx context.Context, action string, before *model.QueueTaskModel, operator, reason string) (*model.QueueTaskModel, error) {
	after, err := s.load(ctx, before.TaskID)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"task_id":  after.TaskID,
		"action":   action,
		"operator": operator,
		"queue":    after.QueueName,
	})
	if err := after.CheckInvariants(); err != nil {
		log.WithError(err).Error("queue task invariant violated")
	}

	history := &model.StateHistoryModel{
		ID:        uuid.New().String(),
		TaskID:    after.TaskID,
		Action:    action,
		FromState: string(before.Status),
		ToState:   string(after.Status),
		FromQueue: before.QueueName,
		ToQueue:   after.QueueName,
		Reason:    reason,
		Operator:  operator,
		CreatedAt: s.now(),
	}
	if s.historyRepo != nil {
		if err := s.historyRepo.Save(ctx, history); err != nil {
			log.WithError(err).Warn("failed to save state history")
		}
	}

	if s.auditLogSvc != nil {
		details := map[string]interface{}{
			"from_state": before.Status,
			"to_state":   after.Status,
			"queue":      after.QueueName,
		}
		if before.QueueName != after.QueueName {
			details["from_queue"] = before.QueueName
		}
		if reason != "" {
			details["reason"] = reason
		}
		entry := &AuditEntry{
			UserID:       operator,
			Action:       action,
			ResourceType: model.AuditResourceQueueTask,
			ResourceID:   after.TaskID,
			Queue:        before.QueueName,
			Details:      details,
		}
		if err := s.auditLogSvc.Record(ctx, entry); err != nil {
			log.WithError(err).Warn("failed to record audit log")
		}
	}

	metrics.RecordTransition(action, after.QueueName)

	event := &events.QueueTaskEvent{
		Type:      eventTypeFor(action),
		TaskID:    after.TaskID,
		QueueName: after.QueueName,
		Assignee:  after.AssigneeOrEmpty(),
		Actor:     operator,
	}
	if before.QueueName != after.QueueName {
		event.FromQueue = before.QueueName
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.WithError(err).Warn("failed to publish queue event")
	}

	log.Info("queue task transition")
	return after, nil
}

// eventTypeFor 动作对应的事件类型
func eventTypeFor(action string) events.EventType {
	switch action {
	case ActionClaim:
		return events.EventTaskClaimed
	case ActionUnclaim:
		return events.EventTaskUnclaimed
	case ActionEscalate:
		return events.EventTaskEscalated
	}
	return events.EventTaskCompleted
}

// NormalizePage 规范化分页参数
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
