package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mautops/casework-gin/internal/engine"
	"github.com/mautops/casework-gin/internal/events"
	"github.com/mautops/casework-gin/internal/metrics"
	"github.com/mautops/casework-gin/internal/model"
	"github.com/mautops/casework-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// PopulationService 队列任务填充服务接口
type PopulationService interface {
	PopulateQueueTasksForProcessInstance(ctx context.Context, processInstanceID, processDefinitionKey string) (*PopulationResult, error)
}

// PopulationResult 单次填充的结果（任务 ID 列表）
type PopulationResult struct {
	ProcessInstanceID string   `json:"process_instance_id"`
	Created           []string `json:"created"`
	Existing          []string `json:"existing"`
	Skipped           []string `json:"skipped"`
	Failed            []string `json:"failed"`
}

// populationService 队列任务填充服务实现
type populationService struct {
	engine      engine.ProcessEngine
	metadataSvc MetadataService
	taskRepo    repository.QueueTaskRepository
	publisher   events.Publisher
	logger      *logrus.Logger
	now         func() time.Time
}

// NewPopulationService 创建队列任务填充服务
func NewPopulationService(
	processEngine engine.ProcessEngine,
	metadataSvc MetadataService,
	taskRepo repository.QueueTaskRepository,
	publisher events.Publisher,
	logger *logrus.Logger,
) PopulationService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &populationService{
		engine:      processEngine,
		metadataSvc: metadataSvc,
		taskRepo:    taskRepo,
		publisher:   publisher,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// PopulateQueueTasksForProcessInstance 将流程实例的活动任务写入队列
// 可重复调用; 单个任务失败不影响其余任务
func (s *populationService) PopulateQueueTasksForProcessInstance(ctx context.Context, processInstanceID, processDefinitionKey string) (*PopulationResult, error) {
	if strings.TrimSpace(processInstanceID) == "" {
		return nil, newError(KindValidation, "process instance ID is required")
	}
	if strings.TrimSpace(processDefinitionKey) == "" {
		return nil, newError(KindValidation, "process definition key is required")
	}

	result := &PopulationResult{
		ProcessInstanceID: processInstanceID,
		Created:           []string{},
		Existing:          []string{},
		Skipped:           []string{},
		Failed:            []string{},
	}
	log := s.logger.WithFields(logrus.Fields{
		"process_instance_id":    processInstanceID,
		"process_definition_key": processDefinitionKey,
	})

	// 未注册元数据时不阻塞流程,只记录警告
	metadata, err := s.metadataSvc.Get(ctx, processDefinitionKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("no workflow metadata registered, skipping queue population")
			return result, nil
		}
		return nil, err
	}
	if !metadata.Active {
		log.Warn("workflow metadata is inactive, skipping queue population")
		return result, nil
	}

	tasks, err := s.engine.ListActiveTasks(ctx, processInstanceID)
	if err != nil {
		return nil, wrapError(KindUpstreamUnavailable, err, "failed to list active tasks for %s", processInstanceID)
	}

	for _, task := range tasks {
		if task.ProcessDefinitionKey == "" {
			task.ProcessDefinitionKey = processDefinitionKey
		}
		if task.ProcessInstanceID == "" {
			task.ProcessInstanceID = processInstanceID
		}
		s.populateOne(ctx, log, task, result)
	}

	metrics.RecordPopulation("created", len(result.Created))
	metrics.RecordPopulation("existing", len(result.Existing))
	metrics.RecordPopulation("skipped", len(result.Skipped))
	metrics.RecordPopulation("failed", len(result.Failed))

	log.WithFields(logrus.Fields{
		"created":  len(result.Created),
		"existing": len(result.Existing),
		"skipped":  len(result.Skipped),
		"failed":   len(result.Failed),
	}).Info("queue population finished")

	return result, nil
}

// populateOne 处理单个活动任务
func (s *populationService) populateOne(ctx context.Context, log *logrus.Entry, task *engine.ActiveTask, result *PopulationResult) {
	taskLog := log.WithFields(logrus.Fields{"task_id": task.ID, "task_definition_key": task.TaskDefinitionKey})

	queue, ok, err := s.metadataSvc.ResolveQueue(ctx, task)
	if err != nil {
		taskLog.WithError(err).Error("failed to resolve queue")
		result.Failed = append(result.Failed, task.ID)
		return
	}
	if !ok || queue == "" {
		taskLog.Warn("no queue resolved for task, skipping")
		result.Skipped = append(result.Skipped, task.ID)
		return
	}

	row := newQueueTaskRow(task, queue, s.now())
	if err := row.Validate(); err != nil {
		taskLog.WithError(err).Error("invalid engine task")
		result.Failed = append(result.Failed, task.ID)
		return
	}

	created, err := s.taskRepo.InsertIfAbsent(ctx, row)
	if err != nil {
		taskLog.WithError(err).Error("failed to insert queue task")
		result.Failed = append(result.Failed, task.ID)
		return
	}
	if !created {
		result.Existing = append(result.Existing, task.ID)
		return
	}

	result.Created = append(result.Created, task.ID)
	taskLog.WithField("queue", queue).Debug("queue task created")
	if err := s.publisher.Publish(ctx, &events.QueueTaskEvent{
		Type:      events.EventTaskCreated,
		TaskID:    task.ID,
		QueueName: queue,
	}); err != nil {
		taskLog.WithError(err).Warn("failed to publish task created event")
	}
}

// newQueueTaskRow 由引擎任务构造 OPEN 状态的队列任务
func newQueueTaskRow(task *engine.ActiveTask, queue string, now time.Time) *model.QueueTaskModel {
	priority := model.DefaultPriority
	if task.Priority > 0 {
		priority = task.Priority
	}

	data := datatypes.JSONMap{}
	if task.DueDate != nil {
		data["due_date"] = task.DueDate.UTC().Format(time.RFC3339)
	}
	if task.FormKey != "" {
		data["form_key"] = task.FormKey
	}
	if task.Description != "" {
		data["description"] = task.Description
	}
	if len(task.CandidateGroups) > 0 {
		data["candidate_groups"] = task.CandidateGroups
	}

	return &model.QueueTaskModel{
		TaskID:               task.ID,
		ProcessInstanceID:    task.ProcessInstanceID,
		ProcessDefinitionKey: task.ProcessDefinitionKey,
		TaskDefinitionKey:    task.TaskDefinitionKey,
		TaskName:             task.Name,
		QueueName:            queue,
		Status:               model.QueueTaskStatusOpen,
		Priority:             priority,
		TaskData:             data,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}
