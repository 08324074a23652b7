package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/casework-gin/internal/api"
	"github.com/mautops/casework-gin/internal/auth"
	"github.com/mautops/casework-gin/internal/config"
	"github.com/mautops/casework-gin/internal/engine"
	"github.com/mautops/casework-gin/internal/events"
	"github.com/mautops/casework-gin/internal/model"
	"github.com/mautops/casework-gin/internal/repository"
	"github.com/mautops/casework-gin/internal/routing"
	"github.com/mautops/casework-gin/internal/service"
	"github.com/mautops/casework-gin/internal/worker"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	silent := logrus.New()
	silent.SetLevel(logrus.PanicLevel)
	api.SetLogger(silent)
}

// apiResponse 通用响应解码结构
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

// testServer API 测试环境
type testServer struct {
	router     *gin.Engine
	db         *gorm.DB
	engine     *engine.MemoryEngine
	metadata   service.MetadataService
	population service.PopulationService
}

// fakeEnqueuer 记录入队请求
type fakeEnqueuer struct {
	payloads []worker.PopulationPayload
	err      error
}

// EnqueuePopulation 记录负载
func (f *fakeEnqueuer) EnqueuePopulation(_ context.Context, payload worker.PopulationPayload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, payload)
	return "job-1", nil
}

// newTestServer 组装完整的路由与服务
func newTestServer(t *testing.T, enqueuer worker.Enqueuer) *testServer {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

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

	mem := engine.NewMemoryEngine()
	tables := routing.DefaultTables()
	taskRepo := repository.NewQueueTaskRepository(db)
	auditLogSvc := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	metadataSvc := service.NewMetadataService(
		repository.NewWorkflowMetadataRepository(db),
		tables,
		service.NewMetadataCache(time.Minute),
		auditLogSvc,
		log,
	)
	population := service.NewPopulationService(mem, metadataSvc, taskRepo, events.NopPublisher{}, log)
	tasks := service.NewQueueTaskService(taskRepo, repository.NewStateHistoryRepository(db), auditLogSvc, mem, tables, nil, log)
	routingSvc := service.NewRoutingService(nil, tables, taskRepo, tasks, log)
	analytics := service.NewAnalyticsService(taskRepo, tables, func() service.HealthThresholds {
		return service.HealthThresholds{WarningAge: 24 * time.Hour, CriticalAge: 168 * time.Hour}
	}, nil, log)

	cfg := config.Default()
	cfg.RateLimit.RPS = 0

	router := api.SetupRoutes(&api.RouterDeps{
		Config:     cfg,
		DB:         db,
		Tables:     tables,
		Tasks:      tasks,
		Routing:    routingSvc,
		Analytics:  analytics,
		Metadata:   metadataSvc,
		Population: population,
		Enqueuer:   enqueuer,
	})

	_, err = metadataSvc.Register(context.Background(), "admin", &service.RegisterMetadataRequest{
		ProcessDefinitionKey: "case-intake",
		CandidateGroupMappings: map[string]string{
			"hr-managers":   "hr-intake-queue",
			"legal-counsel": "legal-review-queue",
			"default":       "default-queue",
		},
	})
	require.NoError(t, err)

	return &testServer{router: router, db: db, engine: mem, metadata: metadataSvc, population: population}
}

// seed 在引擎中创建任务并填充
func (s *testServer) seed(t *testing.T, taskID, instanceID string, groups ...string) {
	t.Helper()
	s.engine.AddTask(&engine.ActiveTask{
		ID:                   taskID,
		ProcessInstanceID:    instanceID,
		ProcessDefinitionKey: "case-intake",
		TaskDefinitionKey:    "review",
		CandidateGroups:      groups,
	})
	_, err := s.population.PopulateQueueTasksForProcessInstance(context.Background(), instanceID, "case-intake")
	require.NoError(t, err)
}

// do 以指定身份发送请求
// userID 为空时不携带身份头
func (s *testServer) do(t *testing.T, method, path, userID, roles string, body interface{}) (*httptest.ResponseRecorder, *apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(auth.HeaderUserID, userID)
		req.Header.Set(auth.HeaderUserRoles, roles)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp apiResponse
	if w.Code != http.StatusNoContent && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, &resp
}

// decodeTask 解码响应中的队列任务
func decodeTask(t *testing.T, resp *apiResponse) *model.QueueTaskModel {
	t.Helper()
	var task model.QueueTaskModel
	require.NoError(t, json.Unmarshal(resp.Data, &task))
	return &task
}
