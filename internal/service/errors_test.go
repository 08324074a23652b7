package service_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mautops/casework-gin/internal/service"
	"github.com/stretchr/testify/assert"
)

// TestServiceError_Is 测试按错误类型匹配
func TestServiceError_Is(t *testing.T) {
	err := &service.ServiceError{Kind: service.KindConflict, Message: "task t-1 is already claimed"}
	wrapped := fmt.Errorf("claim: %w", err)

	assert.True(t, errors.Is(wrapped, service.ErrConflict))
	assert.False(t, errors.Is(wrapped, service.ErrInvalidState))
	assert.Equal(t, service.KindConflict, service.KindOf(wrapped))
	assert.Equal(t, "task t-1 is already claimed", err.Error())
}

// TestServiceError_Unwrap 测试底层错误
func TestServiceError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &service.ServiceError{Kind: service.KindUpstreamUnavailable, Message: "engine failed", Err: cause}

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, service.ErrUpstreamUnavailable))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, service.ErrorKind(""), service.KindOf(cause))
	assert.Equal(t, "NotFound", service.ErrNotFound.Error())
}
