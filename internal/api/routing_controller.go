package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/casework-gin/internal/service"
)

// RoutingController 案件路由控制器
type RoutingController struct {
	routingService service.RoutingService
}

// NewRoutingController 创建路由控制器
func NewRoutingController(routingService service.RoutingService) *RoutingController {
	return &RoutingController{routingService: routingService}
}

// DetermineRoutingRequest 路由判定请求
type DetermineRoutingRequest struct {
	Allegations []*service.Allegation `json:"allegations" binding:"required,min=1,dive"`
}

// Determine 根据指控列表判定部门和优先级
// @Summary      判定案件路由
// @Tags         路由
// @Accept       json
// @Produce      json
// @Param        request body DetermineRoutingRequest true "指控列表"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Router       /routing/determine [post]
func (c *RoutingController) Determine(ctx *gin.Context) {
	if _, ok := requireActor(ctx); !ok {
		return
	}

	var req DetermineRoutingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	Success(ctx, c.routingService.DetermineRouting(ctx.Request.Context(), req.Allegations))
}
