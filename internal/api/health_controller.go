package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/casework-gin/internal/service"
	"gorm.io/gorm"
)

// HealthController 健康检查控制器
type HealthController struct {
	db        *gorm.DB
	analytics service.AnalyticsService
}

// NewHealthController 创建健康检查控制器
func NewHealthController(db *gorm.DB, analytics service.AnalyticsService) *HealthController {
	return &HealthController{
		db:        db,
		analytics: analytics,
	}
}

// Check 健康检查
// 数据库不可用时返回 503,队列健康等级只作为信息返回
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	checks := make(map[string]string)

	if c.db != nil {
		if err := c.checkDatabase(ctx.Request.Context()); err != nil {
			status = "unhealthy"
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	if c.analytics != nil && status == "healthy" {
		report, err := c.analytics.Health(ctx.Request.Context())
		if err != nil {
			checks["queues"] = "unknown: " + err.Error()
		} else {
			checks["queues"] = string(report.Overall)
		}
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// checkDatabase 检查数据库连接
func (c *HealthController) checkDatabase(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}
