package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/casework-gin/internal/service"
	"github.com/mautops/casework-gin/internal/worker"
	"github.com/sirupsen/logrus"
)

// 流程引擎回调事件类型
const (
	EngineEventTaskCreated   = "task-created"
	EngineEventTaskCompleted = "task-completed"
)

// EngineEvent 流程引擎回调
type EngineEvent struct {
	Type                 string `json:"type" binding:"required"`
	TaskID               string `json:"task_id"`
	ProcessInstanceID    string `json:"process_instance_id"`
	ProcessDefinitionKey string `json:"process_definition_key"`
}

// EngineEventController 流程引擎回调控制器
type EngineEventController struct {
	population  service.PopulationService
	taskService service.QueueTaskService
	enqueuer    worker.Enqueuer
}

// NewEngineEventController 创建流程引擎回调控制器
// enqueuer 为 nil 时同步填充
func NewEngineEventController(population service.PopulationService, taskService service.QueueTaskService, enqueuer worker.Enqueuer) *EngineEventController {
	return &EngineEventController{
		population:  population,
		taskService: taskService,
		enqueuer:    enqueuer,
	}
}

// Handle 处理流程引擎回调
// @Summary      流程引擎回调
// @Description  task-created 触发队列任务填充, task-completed 同步引擎侧完成
// @Tags         流程引擎
// @Accept       json
// @Produce      json
// @Param        request body EngineEvent true "引擎事件"
// @Success      200  {object}  Response
// @Success      202  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Router       /engine/events [post]
func (c *EngineEventController) Handle(ctx *gin.Context) {
	var event EngineEvent
	if err := ctx.ShouldBindJSON(&event); err != nil {
		_ = ctx.Error(WrapError(err, http.StatusBadRequest, "invalid engine event"))
		return
	}

	switch event.Type {
	case EngineEventTaskCreated:
		c.handleCreated(ctx, &event)
	case EngineEventTaskCompleted:
		c.handleCompleted(ctx, &event)
	default:
		Error(ctx, http.StatusBadRequest, "unsupported event type", event.Type)
	}
}

// handleCreated 填充流程实例的活跃任务
func (c *EngineEventController) handleCreated(ctx *gin.Context, event *EngineEvent) {
	payload := worker.PopulationPayload{
		ProcessInstanceID:    event.ProcessInstanceID,
		ProcessDefinitionKey: event.ProcessDefinitionKey,
	}
	if err := payload.Validate(); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid task-created event", err.Error())
		return
	}

	if c.enqueuer != nil {
		id, err := c.enqueuer.EnqueuePopulation(ctx.Request.Context(), payload)
		if err == nil {
			ctx.JSON(http.StatusAccepted, Response{
				Code:    0,
				Message: "accepted",
				Data:    gin.H{"job_id": id},
			})
			return
		}
		// 队列不可用时退化为同步填充
		GetLogger().WithError(err).WithFields(logrus.Fields{
			"process_instance_id": payload.ProcessInstanceID,
		}).Warn("failed to enqueue population, populating synchronously")
	}

	result, err := c.population.PopulateQueueTasksForProcessInstance(ctx.Request.Context(), payload.ProcessInstanceID, payload.ProcessDefinitionKey)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, result)
}

// handleCompleted 引擎侧完成的任务在本地置为 COMPLETED
func (c *EngineEventController) handleCompleted(ctx *gin.Context, event *EngineEvent) {
	if !validateTaskID(ctx, event.TaskID) {
		return
	}

	task, err := c.taskService.HandleEngineCompletion(ctx.Request.Context(), event.TaskID)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, task)
}
