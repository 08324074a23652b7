package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/casework-gin/internal/service"
)

// AnalyticsController 队列分析控制器
type AnalyticsController struct {
	analytics service.AnalyticsService
}

// NewAnalyticsController 创建分析控制器
func NewAnalyticsController(analytics service.AnalyticsService) *AnalyticsController {
	return &AnalyticsController{analytics: analytics}
}

// Queues 每个队列的统计
// @Summary      队列统计
// @Tags         分析
// @Produce      json
// @Success      200  {object}  Response
// @Router       /analytics/queues [get]
func (c *AnalyticsController) Queues(ctx *gin.Context) {
	stats, err := c.analytics.QueueStatistics(ctx.Request.Context())
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, stats)
}

// Summary 全局汇总
// @Summary      汇总统计
// @Tags         分析
// @Produce      json
// @Success      200  {object}  Response
// @Router       /analytics/summary [get]
func (c *AnalyticsController) Summary(ctx *gin.Context) {
	summary, err := c.analytics.Summary(ctx.Request.Context())
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, summary)
}

// Health 队列健康报告
// @Summary      队列健康
// @Tags         分析
// @Produce      json
// @Success      200  {object}  Response
// @Router       /analytics/health [get]
func (c *AnalyticsController) Health(ctx *gin.Context) {
	report, err := c.analytics.Health(ctx.Request.Context())
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, report)
}
