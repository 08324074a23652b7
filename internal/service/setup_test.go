package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mautops/casework-gin/internal/engine"
	"github.com/mautops/casework-gin/internal/events"
	"github.com/mautops/casework-gin/internal/model"
	"github.com/mautops/casework-gin/internal/repository"
	"github.com/mautops/casework-gin/internal/routing"
	"github.com/mautops/casework-gin/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 创建内存测试数据库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.QueueTaskModel{},
		&model.WorkflowMetadataModel{},
		&model.StateHistoryModel{},
		&model.AuditLogModel{},
	))
	return db
}

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.QueueTaskEvent
}

// Publish 记录事件
func (p *recordingPublisher) Publish(_ context.Context, event *events.QueueTaskEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// types 返回已发布事件的类型
func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// testEnv 服务测试环境
type testEnv struct {
	db          *gorm.DB
	engine      *engine.MemoryEngine
	tables      *routing.Tables
	publisher   *recordingPublisher
	taskRepo    repository.QueueTaskRepository
	historyRepo repository.StateHistoryRepository
	auditRepo   repository.AuditLogRepository
	auditLogSvc service.AuditLogService
	metadataSvc service.MetadataService
	population  service.PopulationService
	tasks       service.QueueTaskService
	routing     service.RoutingService
}

// newTestEnv 组装完整的服务依赖
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	env := &testEnv{
		db:        setupTestDB(t),
		engine:    engine.NewMemoryEngine(),
		tables:    routing.DefaultTables(),
		publisher: &recordingPublisher{},
	}
	env.taskRepo = repository.NewQueueTaskRepository(env.db)
	env.historyRepo = repository.NewStateHistoryRepository(env.db)
	env.auditRepo = repository.NewAuditLogRepository(env.db)
	env.auditLogSvc = service.NewAuditLogService(env.auditRepo)
	env.metadataSvc = service.NewMetadataService(
		repository.NewWorkflowMetadataRepository(env.db),
		env.tables,
		service.NewMetadataCache(time.Minute),
		env.auditLogSvc,
		log,
	)
	env.population = service.NewPopulationService(env.engine, env.metadataSvc, env.taskRepo, env.publisher, log)
	env.tasks = service.NewQueueTaskService(env.taskRepo, env.historyRepo, env.auditLogSvc, env.engine, env.tables, env.publisher, log)
	env.routing = service.NewRoutingService(nil, env.tables, env.taskRepo, env.tasks, log)
	return env
}

// registerCaseWorkflow 注册测试用流程元数据
func (env *testEnv) registerCaseWorkflow(t *testing.T) {
	t.Helper()
	_, err := env.metadataSvc.Register(context.Background(), "admin", &service.RegisterMetadataRequest{
		ProcessDefinitionKey: "case-intake",
		ProcessName:          "Case Intake",
		CandidateGroupMappings: map[string]string{
			"hr-managers":   "hr-intake-queue",
			"legal-counsel": "legal-review-queue",
			"investigators": "investigation-queue",
			"default":       "default-queue",
		},
		TaskQueueMappings: []model.TaskQueueMapping{
			{TaskDefinitionKey: "oversight-review", QueueName: "oversight-queue"},
		},
	})
	require.NoError(t, err)
}

// seedTask 在引擎中创建任务并填充到队列
func (env *testEnv) seedTask(t *testing.T, taskID, instanceID string, groups ...string) *model.QueueTaskModel {
	t.Helper()
	env.engine.AddTask(&engine.ActiveTask{
		ID:                   taskID,
		ProcessInstanceID:    instanceID,
		ProcessDefinitionKey: "case-intake",
		TaskDefinitionKey:    "review",
		Name:                 "Review " + taskID,
		CandidateGroups:      groups,
	})
	_, err := env.population.PopulateQueueTasksForProcessInstance(context.Background(), instanceID, "case-intake")
	require.NoError(t, err)

	task, err := env.taskRepo.FindByID(context.Background(), taskID)
	require.NoError(t, err)
	return task
}

// actor 创建操作者
func actor(userID string, roles ...string) *service.Actor {
	return &service.Actor{UserID: userID, Roles: roles}
}

// insertTask 直接写入队列任务,用于控制时间和状态
func (env *testEnv) insertTask(t *testing.T, task *model.QueueTaskModel) *model.QueueTaskModel {
	t.Helper()
	if task.ProcessInstanceID == "" {
		task.ProcessInstanceID = "pi-" + task.TaskID
	}
	if task.ProcessDefinitionKey == "" {
		task.ProcessDefinitionKey = "case-intake"
	}
	if task.Status == "" {
		task.Status = model.QueueTaskStatusOpen
	}
	if task.Priority == 0 {
		task.Priority = model.DefaultPriority
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, env.db.Create(task).Error)
	return task
}

// openTask 创建 OPEN 任务
func openTask(id, queue string, priority int, createdAt time.Time) *model.QueueTaskModel {
	return &model.QueueTaskModel{
		TaskID:    id,
		QueueName: queue,
		Status:    model.QueueTaskStatusOpen,
		Priority:  priority,
		CreatedAt: createdAt,
	}
}
