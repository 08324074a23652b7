package service

import (
	"context"
	"errors"
	"strings"

	"github.com/mautops/casework-gin/internal/model"
	"github.com/mautops/casework-gin/internal/repository"
	"github.com/mautops/casework-gin/internal/routing"
	"github.com/sirupsen/logrus"
)

const (
	// dashboardQueueLimit 仪表盘每个队列展示的开放任务数
	dashboardQueueLimit = 20
	// claimNextBatchSize 领取下一个任务时每次读取的候选数
	claimNextBatchSize = 10
)

// Allegation 案件中的单条指控
type Allegation struct {
	ID            string           `json:"id"`
	Type          string           `json:"type" binding:"required"`
	Severity      string           `json:"severity"`
	Category      routing.Category `json:"category,omitempty"`
	Priority      routing.Severity `json:"priority,omitempty"`
	AssignedGroup string           `json:"assigned_group,omitempty"`
}

// RoutingDecision 案件级别的部门路由结果
type RoutingDecision struct {
	Departments     []routing.Department `json:"departments"`
	Priority        routing.Severity     `json:"priority"`
	Allegations     []*Allegation        `json:"allegations"`
	NeedsHR         bool                 `json:"needs_hr"`
	NeedsLegal      bool                 `json:"needs_legal"`
	NeedsSecurity   bool                 `json:"needs_security"`
	NeedsCompliance bool                 `json:"needs_compliance"`
	NeedsGeneral    bool                 `json:"needs_general"`
}

// QueueView 单个队列的视图
type QueueView struct {
	QueueName  string                  `json:"queue_name"`
	Department routing.Department      `json:"department"`
	OpenCount  int64                   `json:"open_count"`
	OpenTasks  []*model.QueueTaskModel `json:"open_tasks"`
}

// UserDashboard 用户仪表盘
type UserDashboard struct {
	UserID       string                  `json:"user_id"`
	Queues       []*QueueView            `json:"queues"`
	MyTasks      []*model.QueueTaskModel `json:"my_tasks"`
	TotalOpen    int64                   `json:"total_open"`
	TotalClaimed int64                   `json:"total_claimed"`
}

// DepartmentTasks 部门的开放任务
type DepartmentTasks struct {
	Department routing.Department      `json:"department,omitempty"`
	Queues     []string                `json:"queues"`
	Tasks      []*model.QueueTaskModel `json:"tasks"`
	Total      int64                   `json:"total"`
}

// RoutingService 部门路由编排服务接口
type RoutingService interface {
	DetermineRouting(ctx context.Context, allegations []*Allegation) *RoutingDecision
	GetUserDashboard(ctx context.Context, actor *Actor) (*UserDashboard, error)
	GetTasksForUserByDepartment(ctx context.Context, actor *Actor, department routing.Department, requestedQueues []string) (*DepartmentTasks, error)
	ClaimNextTaskForUser(ctx context.Context, actor *Actor, preferredDepartment routing.Department) (*model.QueueTaskModel, error)
}

// routingService 部门路由编排服务实现
type routingService struct {
	classifier routing.Classifier
	tables     *routing.Tables
	taskRepo   repository.QueueTaskRepository
	taskSvc    QueueTaskService
	logger     *logrus.Logger
}

// NewRoutingService 创建部门路由编排服务
func NewRoutingService(
	classifier routing.Classifier,
	tables *routing.Tables,
	taskRepo repository.QueueTaskRepository,
	taskSvc QueueTaskService,
	logger *logrus.Logger,
) RoutingService {
	if classifier == nil {
		classifier = routing.PolicyClassifier{Policy: routing.NewClassificationPolicy()}
	}
	if tables == nil {
		tables = routing.DefaultTables()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &routingService{
		classifier: classifier,
		tables:     tables,
		taskRepo:   taskRepo,
		taskSvc:    taskSvc,
		logger:     logger,
	}
}

// DetermineRouting 计算案件需要哪些部门参与以及案件优先级
// 单条指控分类失败时按 HR/MEDIUM 处理,不中断整个案件; 没有指控时优先级为 MEDIUM
func (s *routingService) DetermineRouting(ctx context.Context, allegations []*Allegation) *RoutingDecision {
	decision := &RoutingDecision{
		Departments: []routing.Department{},
		Allegations: allegations,
	}
	if decision.Allegations == nil {
		decision.Allegations = []*Allegation{}
	}

	seen := make(map[routing.Department]bool)
	for _, allegation := range allegations {
		if allegation == nil {
			continue
		}
		severity := routing.Severity(strings.ToUpper(strings.TrimSpace(allegation.Severity)))
		classification, err := s.classifier.Classify(ctx, allegation.Type, severity)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"allegation_id":   allegation.ID,
				"allegation_type": allegation.Type,
			}).Warn("classification failed, routing allegation to HR")
			classification = routing.FailureClassification
		}

		allegation.Category = classification.Category
		allegation.Priority = classification.Priority
		allegation.AssignedGroup = classification.AssignedGroup

		dept := classification.Category.Department()
		if !seen[dept] {
			seen[dept] = true
			decision.Departments = append(decision.Departments, dept)
		}
		decision.Priority = routing.MaxSeverity(decision.Priority, classification.Priority)
	}

	if decision.Priority == "" {
		decision.Priority = routing.SeverityMedium
	}

	decision.NeedsHR = seen[routing.DepartmentHR]
	decision.NeedsLegal = seen[routing.DepartmentLegal]
	decision.NeedsSecurity = seen[routing.DepartmentSecurity]
	decision.NeedsCompliance = seen[routing.DepartmentCompliance]
	decision.NeedsGeneral = seen[routing.DepartmentGeneral]
	return decision
}

// GetUserDashboard 返回用户可访问队列的开放任务和自己认领的任务
func (s *routingService) GetUserDashboard(ctx context.Context, actor *Actor) (*UserDashboard, error) {
	if actor == nil || actor.UserID == "" {
		return nil, newError(KindValidation, "user ID is required")
	}

	dashboard := &UserDashboard{
		UserID:  actor.UserID,
		Queues:  []*QueueView{},
		MyTasks: []*model.QueueTaskModel{},
	}
	accessible := s.tables.QueuesByDepartmentOrder(s.tables.AccessibleQueues(actor.Roles))
	if len(accessible) == 0 {
		return dashboard, nil
	}

	open := model.QueueTaskStatusOpen
	for _, queue := range accessible {
		tasks, total, err := s.taskRepo.FindByFilter(ctx, &repository.QueueTaskFilter{
			Queues: []string{queue},
			Status: &open,
			Limit:  dashboardQueueLimit,
		})
		if err != nil {
			return nil, err
		}
		dept, _ := s.tables.DepartmentOf(queue)
		dashboard.Queues = append(dashboard.Queues, &QueueView{
			QueueName:  queue,
			Department: dept,
			OpenCount:  total,
			OpenTasks:  tasks,
		})
		dashboard.TotalOpen += total
	}

	claimed := model.QueueTaskStatusClaimed
	userID := actor.UserID
	mine, total, err := s.taskRepo.FindByFilter(ctx, &repository.QueueTaskFilter{
		Queues:   accessible,
		Status:   &claimed,
		Assignee: &userID,
	})
	if err != nil {
		return nil, err
	}
	dashboard.MyTasks = mine
	dashboard.TotalClaimed = total
	return dashboard, nil
}

// GetTasksForUserByDepartment 返回部门内用户可访问队列的开放任务
// 请求了但无权访问的队列会被丢弃
func (s *routingService) GetTasksForUserByDepartment(ctx context.Context, actor *Actor, department routing.Department, requestedQueues []string) (*DepartmentTasks, error) {
	if actor == nil || actor.UserID == "" {
		return nil, newError(KindValidation, "user ID is required")
	}

	candidates := s.tables.AccessibleQueues(actor.Roles)
	if department != "" {
		candidates = intersect(candidates, s.tables.QueuesForDepartment(department))
	}
	if len(requestedQueues) > 0 {
		candidates = intersect(candidates, requestedQueues)
	}

	result := &DepartmentTasks{
		Department: department,
		Queues:     s.tables.QueuesByDepartmentOrder(candidates),
		Tasks:      []*model.QueueTaskModel{},
	}
	if len(candidates) == 0 {
		return result, nil
	}

	open := model.QueueTaskStatusOpen
	tasks, total, err := s.taskRepo.FindByFilter(ctx, &repository.QueueTaskFilter{
		Queues: candidates,
		Status: &open,
	})
	if err != nil {
		return nil, err
	}
	result.Tasks = tasks
	result.Total = total
	return result, nil
}

// ClaimNextTaskForUser 为用户认领下一个可用任务
// 优先部门的可访问队列优先,其余按固定部门顺序; 没有可用任务时返回 (nil, nil)
func (s *routingService) ClaimNextTaskForUser(ctx context.Context, actor *Actor, preferredDepartment routing.Department) (*model.QueueTaskModel, error) {
	if actor == nil || actor.UserID == "" {
		return nil, newError(KindValidation, "user ID is required")
	}

	accessible := s.tables.AccessibleQueues(actor.Roles)
	if len(accessible) == 0 {
		return nil, nil
	}

	var preferred []string
	if preferredDepartment != "" {
		preferred = intersect(accessible, s.tables.QueuesForDepartment(preferredDepartment))
		if len(preferred) > 0 {
			task, err := s.claimFrom(ctx, actor, preferred)
			if err != nil || task != nil {
				return task, err
			}
		}
	}

	for _, queue := range s.tables.QueuesByDepartmentOrder(subtract(accessible, preferred)) {
		task, err := s.claimFrom(ctx, actor, []string{queue})
		if err != nil || task != nil {
			return task, err
		}
	}
	return nil, nil
}

// claimFrom 按 (优先级降序, 创建时间升序) 尝试认领队列集合中的任务
// 抢占失败的候选直接跳过
func (s *routingService) claimFrom(ctx context.Context, actor *Actor, queues []string) (*model.QueueTaskModel, error) {
	for {
		candidates, err := s.taskRepo.FindAvailable(ctx, queues, claimNextBatchSize)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, nil
		}

		for _, candidate := range candidates {
			task, err := s.taskSvc.Claim(ctx, actor, candidate.TaskID)
			if err == nil {
				return task, nil
			}
			// 候选在查询后被认领、完成或升级出可访问队列
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidState) ||
				errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
				s.logger.WithFields(logrus.Fields{
					"task_id": candidate.TaskID,
					"user_id": actor.UserID,
				}).Debug("lost claim race, trying next candidate")
				continue
			}
			return nil, err
		}

		// 整批都被抢走时,不足一批说明已经没有更多候选
		if len(candidates) < claimNextBatchSize {
			return nil, nil
		}
	}
}

// intersect 返回同时出现在 a 和 b 中的元素,保持 a 的顺序
func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(a))
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// subtract 返回 a 中不在 b 中的元素
func subtract(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(a))
	for _, v := range a {
		if _, ok := set[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
