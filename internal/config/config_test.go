package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mautops/casework-gin/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig 写入临时配置文件
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoadConfigFromFile 测试从配置文件加载配置
func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
database:
  driver: sqlite
  sqlite_path: "/tmp/casework.db"
queue:
  warning_age: 2h
  critical_age: 48h
  volume_ceiling: 10
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 2*time.Hour, cfg.Queue.WarningAge)
	assert.Equal(t, 48*time.Hour, cfg.Queue.CriticalAge)
	assert.Equal(t, int64(10), cfg.Queue.VolumeCeiling)
	// 未配置的字段使用默认值
	assert.Equal(t, 50, cfg.Queue.DefaultPriority)
}

// TestLoadConfigFromEnv 测试从环境变量加载配置
func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("APP_SERVER_PORT", "9191")
	t.Setenv("APP_WORKER_REDIS_ADDR", "redis:6380")

	cfg, err := config.Load(writeConfig(t, "server:\n  host: 0.0.0.0\n"))
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "redis:6380", cfg.Worker.RedisAddr)
}

// TestLoadConfig_MissingFile 测试配置文件不存在
func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestDefaultConfig 测试默认配置
func TestDefaultConfig(t *testing.T) {
	cfg := config.Default()
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Queue.WarningAge)
	assert.Equal(t, 168*time.Hour, cfg.Queue.CriticalAge)
	assert.Equal(t, int64(50), cfg.Queue.VolumeCeiling)
	assert.Equal(t, 10*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, "@every 30s", cfg.Metrics.CollectSchedule)
	assert.False(t, config.IsProduction(cfg))
}

// TestProductionDefaults 测试生产环境默认值
func TestProductionDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	cfg := config.Default()
	assert.True(t, config.IsProduction(cfg))
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 200, cfg.Database.MaxOpenConns)
}

// TestConfigWatcher_ReloadsQueueThresholds 测试配置热更新
func TestConfigWatcher_ReloadsQueueThresholds(t *testing.T) {
	path := writeConfig(t, "queue:\n  volume_ceiling: 10\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	watcher := config.NewConfigWatcher(cfg, path)
	var mu sync.Mutex
	var reloaded *config.Config
	watcher.OnConfigChange(func(c *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		reloaded = c
	})
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  volume_ceiling: 25\n"), 0644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloaded != nil && reloaded.Queue.VolumeCeiling == 25
	}, 3*time.Second, 50*time.Millisecond)
	assert.Eventually(t, func() bool {
		return watcher.GetConfig().Queue.VolumeCeiling == 25
	}, time.Second, 20*time.Millisecond)
}
