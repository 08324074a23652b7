package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/casework-gin/internal/auth"
	"github.com/mautops/casework-gin/internal/config"
	"github.com/mautops/casework-gin/internal/metrics"
	"github.com/mautops/casework-gin/internal/routing"
	"github.com/mautops/casework-gin/internal/service"
	"github.com/mautops/casework-gin/internal/websocket"
	"github.com/mautops/casework-gin/internal/worker"
	"gorm.io/gorm"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config     *config.Config
	DB         *gorm.DB
	Tables     *routing.Tables
	Validator  auth.TokenValidator // 为 nil 时使用请求头认证
	Hub        *websocket.Hub
	Tasks      service.QueueTaskService
	Routing    service.RoutingService
	Analytics  service.AnalyticsService
	Metadata   service.MetadataService
	Population service.PopulationService
	Enqueuer   worker.Enqueuer // 为 nil 时同步填充
}

// SetupRoutes 配置路由
func SetupRoutes(deps *RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if config.IsProduction(cfg) {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	router.Use(CORSMiddleware(cfg.CORS))
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware(), SpanAttributesMiddleware())
	}
	router.Use(ErrorHandlerMiddleware())

	// 健康检查
	healthController := NewHealthController(deps.DB, deps.Analytics)
	router.GET("/health", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// WebSocket 队列事件推送
	if deps.Hub != nil {
		router.GET("/ws/queues", websocket.WebSocketHandler(deps.Hub, deps.Validator, deps.Tables))
	}

	queueController := NewQueueController(deps.Tasks, deps.Routing)
	dashboardController := NewDashboardController(deps.Routing)
	routingController := NewRoutingController(deps.Routing)
	analyticsController := NewAnalyticsController(deps.Analytics)
	metadataController := NewMetadataController(deps.Metadata)
	engineController := NewEngineEventController(deps.Population, deps.Tasks, deps.Enqueuer)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	if deps.Validator != nil {
		v1.Use(auth.KeycloakAuthMiddleware(deps.Validator))
	} else {
		v1.Use(auth.HeaderAuthMiddleware())
	}
	v1.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	{
		v1.GET("/queues/:queue/tasks", queueController.ListQueue)
		v1.GET("/queues/:queue/activity", queueController.Activity)

		tasks := v1.Group("/tasks")
		{
			tasks.POST("/claim-next", queueController.ClaimNext)
			tasks.GET("/:id", queueController.Get)
			tasks.POST("/:id/claim", queueController.Claim)
			tasks.POST("/:id/unclaim", queueController.Unclaim)
			tasks.POST("/:id/complete", queueController.Complete)
			tasks.POST("/:id/escalate", queueController.Escalate)
			tasks.GET("/:id/history", queueController.History)
		}

		v1.GET("/dashboard", dashboardController.Dashboard)
		v1.GET("/departments/:department/tasks", dashboardController.DepartmentTasks)
		v1.POST("/routing/determine", routingController.Determine)

		analytics := v1.Group("/analytics")
		{
			analytics.GET("/queues", analyticsController.Queues)
			analytics.GET("/summary", analyticsController.Summary)
			analytics.GET("/health", analyticsController.Health)
		}

		metadata := v1.Group("/metadata")
		{
			metadata.POST("", metadataController.Register)
			metadata.GET("", metadataController.List)
			metadata.GET("/:key", metadataController.Get)
			metadata.POST("/:key/deploy", metadataController.Deploy)
			metadata.PUT("/:key/active", metadataController.SetActive)
		}

		v1.POST("/engine/events", engineController.Handle)
	}

	// 未匹配的路由返回 JSON 格式的 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
	})

	return router
}
