package api

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/mautops/casework-gin/internal/auth"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// 队列相关的 span 属性
const (
	AttrQueue         = attribute.Key("casework.queue")
	AttrTaskID        = attribute.Key("casework.task_id")
	AttrDepartment    = attribute.Key("casework.department")
	AttrDefinitionKey = attribute.Key("casework.process_definition_key")
	AttrUserID        = attribute.Key("casework.user_id")
	AttrErrorKind     = attribute.Key("casework.error_kind")
)

// contextKeyErrorKind gin 上下文中记录服务错误类型的 key
const contextKeyErrorKind = "error_kind"

// routeParamAttributes 路由参数到 span 属性
var routeParamAttributes = map[string]attribute.Key{
	"queue":      AttrQueue,
	"id":         AttrTaskID,
	"department": AttrDepartment,
	"key":        AttrDefinitionKey,
}

var tracerProvider *tracesdk.TracerProvider

// InitTracing 初始化 OpenTelemetry 追踪,span 通过 Jaeger collector 上报
func InitTracing(serviceName, jaegerEndpoint, environment string) error {
	if jaegerEndpoint == "" {
		return errors.New("jaeger endpoint is required when tracing is enabled")
	}
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.DeploymentEnvironmentKey.String(environment),
		),
	)
	if err != nil {
		return err
	}

	tracerProvider = tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.AlwaysSample())),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

// TracingMiddleware 为每个请求创建 span
func TracingMiddleware(opts ...otelgin.Option) gin.HandlerFunc {
	return otelgin.Middleware(ServiceName, opts...)
}

// SpanAttributesMiddleware 把队列、任务、部门和操作者写入当前 span
// 必须注册在 TracingMiddleware 之后
func SpanAttributesMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}
		for _, param := range c.Params {
			if key, ok := routeParamAttributes[param.Key]; ok {
				span.SetAttributes(key.String(param.Value))
			}
		}

		c.Next()

		// 认证在分组中间件里完成,请求结束后才能拿到操作者
		if actor := auth.CurrentActor(c); actor != nil {
			span.SetAttributes(AttrUserID.String(actor.UserID))
		}
		if kind := c.GetString(contextKeyErrorKind); kind != "" {
			span.SetAttributes(AttrErrorKind.String(kind))
		}
	}
}

// ShutdownTracing 关闭追踪,刷新未上报的 span
func ShutdownTracing(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}
	return nil
}
