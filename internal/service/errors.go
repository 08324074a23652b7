package service

import (
	"errors"
	"fmt"
)

// ErrorKind 业务错误类型
type ErrorKind string

const (
	KindNotFound            ErrorKind = "NotFound"
	KindInvalidState        ErrorKind = "InvalidState"
	KindConflict            ErrorKind = "Conflict"
	KindUnauthorized        ErrorKind = "Unauthorized"
	KindValidation          ErrorKind = "ValidationError"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
)

// ServiceError 带类型的业务错误
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap 返回底层错误
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is 按错误类型匹配哨兵错误
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// 哨兵错误,配合 errors.Is 使用
var (
	ErrNotFound            = &ServiceError{Kind: KindNotFound}
	ErrInvalidState        = &ServiceError{Kind: KindInvalidState}
	ErrConflict            = &ServiceError{Kind: KindConflict}
	ErrUnauthorized        = &ServiceError{Kind: KindUnauthorized}
	ErrValidation          = &ServiceError{Kind: KindValidation}
	ErrUpstreamUnavailable = &ServiceError{Kind: KindUpstreamUnavailable}
)

// newError 创建业务错误
func newError(kind ErrorKind, format string, args ...interface{}) *ServiceError {
	return &ServiceError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrapError 包装底层错误
func wrapError(kind ErrorKind, err error, format string, args ...interface{}) *ServiceError {
	return &ServiceError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 返回错误类型,非业务错误返回空字符串
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
