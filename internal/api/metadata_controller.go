package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/casework-gin/internal/service"
	"github.com/mautops/casework-gin/internal/utils"
)

// MetadataController 流程元数据控制器
type MetadataController struct {
	metadataService service.MetadataService
}

// NewMetadataController 创建流程元数据控制器
func NewMetadataController(metadataService service.MetadataService) *MetadataController {
	return &MetadataController{metadataService: metadataService}
}

// SetActiveRequest 启用/停用请求
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// validateKey 验证流程定义 key 并返回错误响应（如果无效）
func validateKey(ctx *gin.Context, key string) bool {
	if err := utils.ValidateProcessDefinitionKey(key); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid process definition key", err.Error())
		return false
	}
	return true
}

// Register 注册流程元数据
// @Summary      注册流程元数据
// @Description  同一 key 重复注册时更新映射并递增版本
// @Tags         流程元数据
// @Accept       json
// @Produce      json
// @Param        request body service.RegisterMetadataRequest true "元数据"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Router       /metadata [post]
func (c *MetadataController) Register(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	var req service.RegisterMetadataRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if !validateKey(ctx, req.ProcessDefinitionKey) {
		return
	}

	metadata, err := c.metadataService.Register(ctx.Request.Context(), actor.UserID, &req)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, metadata)
}

// List 列出流程元数据
// @Summary      流程元数据列表
// @Tags         流程元数据
// @Produce      json
// @Success      200  {object}  Response
// @Router       /metadata [get]
func (c *MetadataController) List(ctx *gin.Context) {
	list, err := c.metadataService.List(ctx.Request.Context())
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, list)
}

// Get 获取流程元数据
// @Summary      获取流程元数据
// @Tags         流程元数据
// @Produce      json
// @Param        key path string true "流程定义 key"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Router       /metadata/{key} [get]
func (c *MetadataController) Get(ctx *gin.Context) {
	key := ctx.Param("key")
	if !validateKey(ctx, key) {
		return
	}

	metadata, err := c.metadataService.Get(ctx.Request.Context(), key)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, metadata)
}

// Deploy 标记流程已部署
// @Summary      标记部署
// @Tags         流程元数据
// @Accept       json
// @Produce      json
// @Param        key     path  string                 true "流程定义 key"
// @Param        request body  service.DeployRequest  true "部署信息"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Router       /metadata/{key}/deploy [post]
func (c *MetadataController) Deploy(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}
	key := ctx.Param("key")
	if !validateKey(ctx, key) {
		return
	}

	var req service.DeployRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	metadata, err := c.metadataService.MarkDeployed(ctx.Request.Context(), actor.UserID, key, req.DeploymentID)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, metadata)
}

// SetActive 启用或停用流程元数据
// @Summary      启用/停用
// @Tags         流程元数据
// @Accept       json
// @Produce      json
// @Param        key     path  string            true "流程定义 key"
// @Param        request body  SetActiveRequest  true "是否启用"
// @Success      200  {object}  Response
// @Router       /metadata/{key}/active [put]
func (c *MetadataController) SetActive(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}
	key := ctx.Param("key")
	if !validateKey(ctx, key) {
		return
	}

	var req SetActiveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	metadata, err := c.metadataService.SetActive(ctx.Request.Context(), actor.UserID, key, *req.Active)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}
	Success(ctx, metadata)
}
