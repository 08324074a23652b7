package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/casework-gin/internal/service"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 错误处理中间件
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
			return
		}
		HandleServiceError(c, err)
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// StatusForKind 业务错误类型到 HTTP 状态码的映射
func StatusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidState, service.KindConflict:
		return http.StatusConflict
	case service.KindUnauthorized:
		return http.StatusForbidden
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleServiceError 将服务层错误写为响应
func HandleServiceError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	status := StatusForKind(kind)
	if kind != "" {
		c.Set(contextKeyErrorKind, string(kind))
	}

	message := err.Error()
	if kind == "" {
		GetLogger().WithError(err).WithField("path", c.FullPath()).Error("unexpected service error")
		message = "internal server error"
	}

	c.JSON(status, ErrorResponse{
		Code:    status,
		Message: message,
		Kind:    string(kind),
	})
}
