package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mautops/casework-gin/internal/auth"
	"github.com/mautops/casework-gin/internal/routing"
	"github.com/mautops/casework-gin/internal/service"
)

// allDepartments 路径参数中表示不限部门
const allDepartments = "all"

// DashboardController 用户仪表盘控制器
type DashboardController struct {
	routingService service.RoutingService
}

// NewDashboardController 创建仪表盘控制器
func NewDashboardController(routingService service.RoutingService) *DashboardController {
	return &DashboardController{routingService: routingService}
}

// Dashboard 当前用户的仪表盘
// @Summary      用户仪表盘
// @Tags         仪表盘
// @Produce      json
// @Success      200  {object}  Response
// @Router       /dashboard [get]
func (c *DashboardController) Dashboard(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	dashboard, err := c.routingService.GetUserDashboard(ctx.Request.Context(), actor)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, dashboard)
}

// DepartmentTasks 部门内可访问队列的开放任务
// @Summary      部门任务
// @Tags         仪表盘
// @Produce      json
// @Param        department path   string true  "部门, all 表示全部"
// @Param        queues     query  string false "逗号分隔的队列名"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Router       /departments/{department}/tasks [get]
func (c *DashboardController) DepartmentTasks(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	department := routing.Department(strings.ToLower(ctx.Param("department")))
	if department == allDepartments {
		department = ""
	} else if !knownDepartment(department) {
		Error(ctx, http.StatusBadRequest, "unknown department", string(department))
		return
	}

	var queues []string
	if raw := ctx.Query("queues"); raw != "" {
		queues = auth.ParseRoles(raw)
	}

	result, err := c.routingService.GetTasksForUserByDepartment(ctx.Request.Context(), actor, department, queues)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, result)
}

// knownDepartment 判断部门是否在固定部门顺序中
func knownDepartment(dept routing.Department) bool {
	for _, d := range routing.DefaultDepartmentOrder {
		if d == dept {
			return true
		}
	}
	return false
}
