package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 队列任务填充结果
	queueTasksPopulatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tasks_populated_total",
			Help: "Total number of engine tasks processed by population, by result",
		},
		[]string{"result"}, // created, existing, skipped, failed
	)

	// 队列任务状态迁移
	queueTaskTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_task_transitions_total",
			Help: "Total number of successful queue task transitions",
		},
		[]string{"action", "queue"},
	)

	// 队列任务状态迁移失败
	queueTaskTransitionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_task_transition_failures_total",
			Help: "Total number of rejected queue task transitions, by error kind",
		},
		[]string{"action", "kind"},
	)

	// 队列任务数
	queueTasks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_tasks",
			Help: "Number of queue tasks by queue and status",
		},
		[]string{"queue", "status"},
	)

	// 队列健康度: 0 HEALTHY, 1 WARNING, 2 CRITICAL
	queueHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_health",
			Help: "Queue health level (0 healthy, 1 warning, 2 critical)",
		},
		[]string{"queue"},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(queueTasksPopulatedTotal)
	prometheus.MustRegister(queueTaskTransitionsTotal)
	prometheus.MustRegister(queueTaskTransitionFailuresTotal)
	prometheus.MustRegister(queueTasks)
	prometheus.MustRegister(queueHealth)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		// 尝试注册 Go 运行时指标，如果已注册则忽略错误
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordPopulation 记录填充结果
func RecordPopulation(result string, count int) {
	if count <= 0 {
		return
	}
	queueTasksPopulatedTotal.WithLabelValues(result).Add(float64(count))
}

// RecordTransition 记录成功的状态迁移
func RecordTransition(action, queue string) {
	queueTaskTransitionsTotal.WithLabelValues(action, queue).Inc()
}

// RecordTransitionFailure 记录被拒绝的状态迁移
func RecordTransitionFailure(action, kind string) {
	if kind == "" {
		kind = "internal"
	}
	queueTaskTransitionFailuresTotal.WithLabelValues(action, kind).Inc()
}

// SetQueueSnapshot 更新单个队列的任务数与健康度
func SetQueueSnapshot(snapshot QueueSnapshot) {
	queueTasks.WithLabelValues(snapshot.Queue, "OPEN").Set(float64(snapshot.Open))
	queueTasks.WithLabelValues(snapshot.Queue, "CLAIMED").Set(float64(snapshot.Claimed))
	queueTasks.WithLabelValues(snapshot.Queue, "COMPLETED").Set(float64(snapshot.Completed))
	queueHealth.WithLabelValues(snapshot.Queue).Set(float64(snapshot.HealthLevel))
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}
