package service

import (
	"context"
)

// Actor 操作者: 用户 ID 和角色
type Actor struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// contextKey context 键类型
type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyIP        contextKey = "ip"
	contextKeyUserAgent contextKey = "user_agent"
)

// RequestInfo 请求元信息,用于审计
type RequestInfo struct {
	RequestID string
	IP        string
	UserAgent string
}

// WithRequestInfo 将请求元信息写入 context
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	ctx = context.WithValue(ctx, contextKeyRequestID, info.RequestID)
	ctx = context.WithValue(ctx, contextKeyIP, info.IP)
	return context.WithValue(ctx, contextKeyUserAgent, info.UserAgent)
}

// requestInfoFrom 从 context 读取请求元信息
func requestInfoFrom(ctx context.Context) RequestInfo {
	var info RequestInfo
	if ctx == nil {
		return info
	}
	info.RequestID, _ = ctx.Value(contextKeyRequestID).(string)
	info.IP, _ = ctx.Value(contextKeyIP).(string)
	info.UserAgent, _ = ctx.Value(contextKeyUserAgent).(string)
	return info
}
