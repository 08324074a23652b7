package container_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mautops/casework-gin/internal/api"
	"github.com/mautops/casework-gin/internal/config"
	"github.com/mautops/casework-gin/internal/container"
	"github.com/mautops/casework-gin/internal/engine"
	"github.com/mautops/casework-gin/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
database:
  driver: sqlite
  sqlite_path: ":memory:"
queue:
  volume_ceiling: %d
metrics:
  collect_schedule: "@every 1h"
`

// writeConfig 写入测试配置
func writeConfig(t *testing.T, path string, ceiling int) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(testConfig, ceiling)), 0644))
}

// newContainer 创建使用内存引擎和内存数据库的容器
func newContainer(t *testing.T, path string) (*container.Container, *engine.MemoryEngine) {
	t.Helper()
	cfg, err := config.Load(path)
	require.NoError(t, err)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	mem := engine.NewMemoryEngine()

	ctr, err := container.NewContainer(cfg, path, container.WithEngine(mem), container.WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Close() })
	return ctr, mem
}

// TestContainer_ServesRoutes 测试容器组装出可用的路由
func TestContainer_ServesRoutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, 10)
	ctr, mem := newContainer(t, path)
	require.NoError(t, ctr.Start(context.Background()))

	router := api.SetupRoutes(ctr.RouterDeps())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	ctx := context.Background()
	_, err := ctr.MetadataService().Register(ctx, "admin", &service.RegisterMetadataRequest{
		ProcessDefinitionKey:   "case-intake",
		CandidateGroupMappings: map[string]string{"default": "default-queue"},
	})
	require.NoError(t, err)

	mem.AddTask(&engine.ActiveTask{ID: "task-1", ProcessInstanceID: "pi-1", ProcessDefinitionKey: "case-intake"})
	result, err := ctr.PopulationService().PopulateQueueTasksForProcessInstance(ctx, "pi-1", "case-intake")
	require.NoError(t, err)
	assert.Equal(t, []string{"task-1"}, result.Created)

	snapshot, err := ctr.AnalyticsService().Snapshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, snapshot)
}

// TestContainer_ReloadsThresholds 测试配置变更热更新健康阈值
func TestContainer_ReloadsThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, 10)
	ctr, _ := newContainer(t, path)
	require.NoError(t, ctr.Start(context.Background()))
	assert.Equal(t, int64(10), ctr.Thresholds().VolumeCeiling)

	time.Sleep(100 * time.Millisecond)
	writeConfig(t, path, 25)

	assert.Eventually(t, func() bool {
		return ctr.Thresholds().VolumeCeiling == 25
	}, 3*time.Second, 50*time.Millisecond)
}

// TestContainer_ProductionRequiresKeycloak 测试生产环境必须配置 Keycloak
func TestContainer_ProductionRequiresKeycloak(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, 10)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.Env = "production"

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	_, err = container.NewContainer(cfg, "", container.WithEngine(engine.NewMemoryEngine()), container.WithLogger(log))
	assert.Error(t, err)
}
