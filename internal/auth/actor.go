package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mautops/casework-gin/internal/service"
)

// 上下文键
const (
	ContextKeyUserID = "user_id"
	ContextKeyRoles  = "roles"
	ContextKeyEmail  = "email"
	ContextKeyName   = "name"
)

// 开发模式下的身份请求头
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
)

// HeaderAuthMiddleware 从请求头读取身份,仅用于非生产环境
func HeaderAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "missing " + HeaderUserID + " header",
			})
			c.Abort()
			return
		}
		setActor(c, userID, ParseRoles(c.GetHeader(HeaderUserRoles)))
		c.Next()
	}
}

// ParseRoles 解析逗号分隔的角色列表
func ParseRoles(raw string) []string {
	roles := make([]string, 0)
	for _, role := range strings.Split(raw, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

// CurrentActor 返回当前请求的操作者,未认证时返回 nil
func CurrentActor(c *gin.Context) *service.Actor {
	userID := c.GetString(ContextKeyUserID)
	if userID == "" {
		return nil
	}
	return &service.Actor{UserID: userID, Roles: c.GetStringSlice(ContextKeyRoles)}
}

// setActor 写入操作者信息
func setActor(c *gin.Context, userID string, roles []string) {
	if roles == nil {
		roles = []string{}
	}
	c.Set(ContextKeyUserID, userID)
	c.Set(ContextKeyRoles, roles)
}
