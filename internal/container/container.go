package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/mautops/casework-gin/internal/api"
	"github.com/mautops/casework-gin/internal/auth"
	"github.com/mautops/casework-gin/internal/config"
	"github.com/mautops/casework-gin/internal/database"
	"github.com/mautops/casework-gin/internal/engine"
	"github.com/mautops/casework-gin/internal/events"
	"github.com/mautops/casework-gin/internal/metrics"
	"github.com/mautops/casework-gin/internal/repository"
	"github.com/mautops/casework-gin/internal/routing"
	"github.com/mautops/casework-gin/internal/service"
	"github.com/mautops/casework-gin/internal/websocket"
	"github.com/mautops/casework-gin/internal/worker"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// metadataCacheTTL 流程元数据缓存时间
const metadataCacheTTL = 5 * time.Minute

// Option 容器选项
type Option func(*Container)

// WithEngine 使用指定的流程引擎客户端
func WithEngine(e engine.ProcessEngine) Option {
	return func(c *Container) { c.engine = e }
}

// WithLogger 使用指定的日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、服务、事件总线与后台组件
type Container struct {
	cfg        *config.Config
	configPath string
	logger     *logrus.Logger

	db        *gorm.DB
	tables    *routing.Tables
	engine    engine.ProcessEngine
	validator auth.TokenValidator
	bus       *events.Bus
	hub       *websocket.Hub

	metadataSvc service.MetadataService
	population  service.PopulationService
	tasks       service.QueueTaskService
	routingSvc  service.RoutingService
	analytics   service.AnalyticsService

	collector *metrics.Collector
	enqueuer  *worker.Client
	processor *worker.Processor
	watcher   *config.ConfigWatcher

	thresholdsMu sync.RWMutex
	thresholds   service.HealthThresholds

	cancel context.CancelFunc
}

// NewContainer 创建依赖注入容器
// configPath 非空时监听配置文件,热更新队列健康阈值
func NewContainer(cfg *config.Config, configPath string, opts ...Option) (*Container, error) {
	c := &Container{cfg: cfg, configPath: configPath}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		logger, err := api.NewLoggerFromConfig(&cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		c.logger = logger
	}
	api.SetLogger(c.logger)
	c.setThresholds(cfg.Queue)

	// 1. 初始化数据库（带重试机制）
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	c.db = db

	// 2. 路由表与分类器
	if err := c.initRouting(); err != nil {
		return nil, err
	}

	// 3. 流程引擎与认证
	if c.engine == nil {
		c.engine = engine.NewRESTClient(cfg.Engine.BaseURL, cfg.Engine.Timeout)
	}
	if cfg.Keycloak.Issuer != "" {
		c.validator = auth.NewKeycloakTokenValidator(cfg.Keycloak.Issuer, cfg.Keycloak.JWKSURL)
	} else if config.IsProduction(cfg) {
		return nil, fmt.Errorf("keycloak issuer is required in production")
	}

	// 4. 事件总线与 WebSocket hub
	c.bus = events.NewBus(c.logger)
	c.hub = websocket.NewHub(c.logger)

	// 5. 服务
	if err := c.initServices(); err != nil {
		return nil, err
	}

	// 6. 后台组件
	c.collector = metrics.NewCollector(db, c.analytics.Snapshot, cfg.Metrics.CollectSchedule, c.logger)
	if cfg.Worker.Enabled {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.Worker.RedisAddr}
		c.enqueuer = worker.NewClient(redisOpt, worker.ClientOptions{Queue: cfg.Worker.Queue})
		c.processor = worker.NewProcessor(redisOpt, c.population, worker.ProcessorConfig{
			Concurrency: cfg.Worker.Concurrency,
			Queue:       cfg.Worker.Queue,
		}, c.logger)
	}
	if configPath != "" {
		c.watcher = config.NewConfigWatcher(cfg, configPath)
		c.watcher.OnConfigChange(func(updated *config.Config) {
			c.setThresholds(updated.Queue)
			c.logger.WithFields(logrus.Fields{
				"warning_age":    updated.Queue.WarningAge.String(),
				"critical_age":   updated.Queue.CriticalAge.String(),
				"volume_ceiling": updated.Queue.VolumeCeiling,
			}).Info("queue health thresholds reloaded")
		})
	}

	return c, nil
}

// initRouting 加载路由表,按配置启用 CEL 决策表
func (c *Container) initRouting() error {
	tables := routing.DefaultTables()
	if c.cfg.Routing.TablesFile != "" {
		loaded, err := routing.LoadTables(c.cfg.Routing.TablesFile)
		if err != nil {
			return err
		}
		tables = loaded
	}
	c.tables = tables
	return nil
}

// classifier 构建分类器: 决策表失败时回退到内置策略
func (c *Container) classifier() (routing.Classifier, error) {
	if !c.cfg.Routing.DecisionTableEnabled || len(c.tables.DecisionRules) == 0 {
		return routing.PolicyClassifier{Policy: routing.NewClassificationPolicy()}, nil
	}
	table, err := routing.NewCELDecisionTable(c.tables.DecisionRules)
	if err != nil {
		return nil, err
	}
	return routing.NewFallbackClassifier(table, routing.NewClassificationPolicy(), c.logger), nil
}

// initServices 组装服务层
func (c *Container) initServices() error {
	classifier, err := c.classifier()
	if err != nil {
		return fmt.Errorf("failed to build classifier: %w", err)
	}

	taskRepo := repository.NewQueueTaskRepository(c.db)
	auditLogSvc := service.NewAuditLogService(repository.NewAuditLogRepository(c.db))

	c.metadataSvc = service.NewMetadataService(
		repository.NewWorkflowMetadataRepository(c.db),
		c.tables,
		service.NewMetadataCache(metadataCacheTTL),
		auditLogSvc,
		c.logger,
	)
	c.population = service.NewPopulationService(c.engine, c.metadataSvc, taskRepo, c.bus, c.logger)
	c.tasks = service.NewQueueTaskService(
		taskRepo,
		repository.NewStateHistoryRepository(c.db),
		auditLogSvc,
		c.engine,
		c.tables,
		c.bus,
		c.logger,
	)
	c.routingSvc = service.NewRoutingService(classifier, c.tables, taskRepo, c.tasks, c.logger)
	c.analytics = service.NewAnalyticsService(taskRepo, c.tables, c.Thresholds, nil, c.logger)
	return nil
}

// Start 启动后台组件: hub、事件转发、指标收集、异步 worker、配置监听
func (c *Container) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	go c.hub.Run(ctx)
	source, err := c.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	go c.hub.Forward(ctx, source)

	if err := c.collector.Start(); err != nil {
		return err
	}
	if c.processor != nil {
		if err := c.processor.Start(); err != nil {
			return fmt.Errorf("failed to start population worker: %w", err)
		}
	}
	if c.watcher != nil {
		if err := c.watcher.Start(); err != nil {
			return err
		}
	}
	return nil
}

// RouterDeps 返回 HTTP 路由依赖
func (c *Container) RouterDeps() *api.RouterDeps {
	deps := &api.RouterDeps{
		Config:     c.cfg,
		DB:         c.db,
		Tables:     c.tables,
		Validator:  c.validator,
		Hub:        c.hub,
		Tasks:      c.tasks,
		Routing:    c.routingSvc,
		Analytics:  c.analytics,
		Metadata:   c.metadataSvc,
		Population: c.population,
	}
	if c.enqueuer != nil {
		deps.Enqueuer = c.enqueuer
	}
	return deps
}

// setThresholds 更新队列健康阈值
func (c *Container) setThresholds(q config.QueueConfig) {
	c.thresholdsMu.Lock()
	defer c.thresholdsMu.Unlock()
	c.thresholds = service.HealthThresholds{
		WarningAge:    q.WarningAge,
		CriticalAge:   q.CriticalAge,
		VolumeCeiling: q.VolumeCeiling,
	}
}

// Thresholds 当前队列健康阈值
func (c *Container) Thresholds() service.HealthThresholds {
	c.thresholdsMu.RLock()
	defer c.thresholdsMu.RUnlock()
	return c.thresholds
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Logger 获取日志记录器
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// MetadataService 获取流程元数据服务
func (c *Container) MetadataService() service.MetadataService {
	return c.metadataSvc
}

// PopulationService 获取队列任务填充服务
func (c *Container) PopulationService() service.PopulationService {
	return c.population
}

// QueueTaskService 获取队列任务服务
func (c *Container) QueueTaskService() service.QueueTaskService {
	return c.tasks
}

// AnalyticsService 获取分析服务
func (c *Container) AnalyticsService() service.AnalyticsService {
	return c.analytics
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.watcher != nil {
		c.watcher.Stop()
	}
	if c.cancel != nil {
		c.cancel()
		c.collector.Stop()
	}
	if c.processor != nil {
		c.processor.Shutdown()
	}
	if c.enqueuer != nil {
		if err := c.enqueuer.Close(); err != nil {
			c.logger.WithError(err).Warn("failed to close population client")
		}
	}
	if c.bus != nil {
		if err := c.bus.Close(); err != nil {
			c.logger.WithError(err).Warn("failed to close event bus")
		}
	}
	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}
