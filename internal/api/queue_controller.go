package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/casework-gin/internal/auth"
	"github.com/mautops/casework-gin/internal/model"
	"github.com/mautops/casework-gin/internal/routing"
	"github.com/mautops/casework-gin/internal/service"
	"github.com/mautops/casework-gin/internal/utils"
)

const maxReasonLength = 1000

// QueueController 队列任务控制器
type QueueController struct {
	taskService    service.QueueTaskService
	routingService service.RoutingService
}

// NewQueueController 创建队列任务控制器
func NewQueueController(taskService service.QueueTaskService, routingService service.RoutingService) *QueueController {
	return &QueueController{
		taskService:    taskService,
		routingService: routingService,
	}
}

// ClaimNextRequest 认领下一个任务请求
type ClaimNextRequest struct {
	PreferredDepartment routing.Department `json:"preferred_department"`
}

// requireActor 读取当前操作者,未认证时写 401
func requireActor(ctx *gin.Context) (*service.Actor, bool) {
	actor := auth.CurrentActor(ctx)
	if actor == nil {
		Error(ctx, http.StatusUnauthorized, "unauthorized", "no authenticated user")
		return nil, false
	}
	return actor, true
}

// validateTaskID 验证任务 ID 并返回错误响应（如果无效）
func validateTaskID(ctx *gin.Context, id string) bool {
	if err := utils.ValidateTaskID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid task ID", err.Error())
		return false
	}
	return true
}

// ListQueue 列出队列中的任务
// @Summary      队列任务列表
// @Tags         队列任务
// @Produce      json
// @Param        queue     path   string  true   "队列名称"
// @Param        status    query  string  false  "OPEN / CLAIMED / COMPLETED"
// @Param        page      query  int     false  "页码"
// @Param        page_size query  int     false  "每页数量"
// @Success      200  {object}  PaginatedResponse
// @Failure      403  {object}  ErrorResponse
// @Router       /queues/{queue}/tasks [get]
func (c *QueueController) ListQueue(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}
	queue := ctx.Param("queue")
	if err := utils.ValidateQueueName(queue); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid queue name", err.Error())
		return
	}

	query := &service.ListQueueQuery{}
	if raw := ctx.Query("status"); raw != "" {
		status := model.QueueTaskStatus(raw)
		switch status {
		case model.QueueTaskStatusOpen, model.QueueTaskStatusClaimed, model.QueueTaskStatusCompleted:
			query.Status = &status
		default:
			Error(ctx, http.StatusBadRequest, "invalid status", raw)
			return
		}
	}
	query.Page, _ = strconv.Atoi(ctx.DefaultQuery("page", "1"))
	query.PageSize, _ = strconv.Atoi(ctx.DefaultQuery("page_size", "20"))
	query.Page, query.PageSize = service.NormalizePage(query.Page, query.PageSize)

	tasks, total, err := c.taskService.ListQueue(ctx.Request.Context(), actor, queue, query)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Paginated(ctx, tasks, query.Page, query.PageSize, total)
}

// Activity 队列最近的操作记录
// @Summary      队列操作记录
// @Tags         队列任务
// @Produce      json
// @Param        queue  path   string  true   "队列名"
// @Param        limit  query  int     false  "条数"
// @Success      200  {object}  Response
// @Failure      403  {object}  ErrorResponse
// @Router       /queues/{queue}/activity [get]
func (c *QueueController) Activity(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}
	queue := ctx.Param("queue")
	if err := utils.ValidateQueueName(queue); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid queue name", err.Error())
		return
	}
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	logs, err := c.taskService.QueueActivity(ctx.Request.Context(), actor, queue, limit)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, logs)
}

// Get 获取任务详情
// @Summary      获取队列任务
// @Tags         队列任务
// @Produce      json
// @Param        id path string true "任务 ID"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id} [get]
func (c *QueueController) Get(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}
	id := ctx.Param("id")
	if !validateTaskID(ctx, id) {
		return
	}

	task, err := c.taskService.Get(ctx.Request.Context(), actor, id)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, task)
}

// Claim 认领任务
// @Summary      认领任务
// @Tags         队列任务
// @Produce      json
// @Param        id path string true "任务 ID"
// @Success      200  {object}  Response
// @Failure      403  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /tasks/{id}/claim [post]
func (c *QueueController) Claim(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}
	id := ctx.Param("id")
	if !validateTaskID(ctx, id) {
		return
	}

	task, err := c.taskService.Claim(ctx.Request.Context(), actor, id)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, task)
}

// Unclaim 释放任务
// @Summary      释放任务回队列
// @Tags         队列任务
// @Produce      json
// @Param        id path string true "任务 ID"
// @Success      200  {object}  Response
// @Failure      409  {object}  ErrorResponse
// @Router       /tasks/{id}/unclaim [post]
func (c *QueueController) Unclaim(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}
	id := ctx.Param("id")
	if !validateTaskID(ctx, id) {
		return
	}

	task, err := c.taskService.Unclaim(ctx.Request.Context(), actor, id)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, task)
}

// Complete 完成任务
// @Summary      完成任务
// @Description  先在流程引擎完成任务,再更新本地状态; 对已完成任务重复调用直接返回
// @Tags         队列任务
// @Accept       json
// @Produce      json
// @Param        id      path  string                   true   "任务 ID"
// @Param        request body  service.CompleteRequest  false  "流程变量"
// @Success      200  {object}  Response
// @Failure      409  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Router       /tasks/{id}/complete [post]
func (c *QueueController) Complete(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}
	id := ctx.Param("id")
	if !validateTaskID(ctx, id) {
		return
	}

	var req service.CompleteRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
			return
		}
	}

	task, err := c.taskService.Complete(ctx.Request.Context(), actor, id, req.Variables)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, task)
}

// Escalate 升级任务
// @Summary      升级任务到上级队列
// @Tags         队列任务
// @Accept       json
// @Produce      json
// @Param        id      path  string                   true  "任务 ID"
// @Param        request body  service.EscalateRequest  true  "升级原因"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /tasks/{id}/escalate [post]
func (c *QueueController) Escalate(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}
	id := ctx.Param("id")
	if !validateTaskID(ctx, id) {
		return
	}

	var req service.EscalateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	reason, err := utils.TrimAndValidate(req.Reason, maxReasonLength)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid escalation reason", err.Error())
		return
	}

	task, err := c.taskService.Escalate(ctx.Request.Context(), actor, id, reason)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, task)
}

// History 获取任务状态历史
// @Summary      任务状态历史
// @Tags         队列任务
// @Produce      json
// @Param        id path string true "任务 ID"
// @Success      200  {object}  Response
// @Router       /tasks/{id}/history [get]
func (c *QueueController) History(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}
	id := ctx.Param("id")
	if !validateTaskID(ctx, id) {
		return
	}

	history, err := c.taskService.History(ctx.Request.Context(), actor, id)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, history)
}

// ClaimNext 认领下一个可用任务
// @Summary      认领下一个任务
// @Description  没有可用任务时返回 data=null
// @Tags         队列任务
// @Accept       json
// @Produce      json
// @Param        request body ClaimNextRequest false "优先部门"
// @Success      200  {object}  Response
// @Router       /tasks/claim-next [post]
func (c *QueueController) ClaimNext(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	var req ClaimNextRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
			return
		}
	}

	task, err := c.routingService.ClaimNextTaskForUser(ctx.Request.Context(), actor, req.PreferredDepartment)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, task)
}
