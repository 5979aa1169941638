package util

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// contextKey 是一个私有类型，用于避免 context key 的冲突
type contextKey string

const traceIDKey contextKey = "traceID"

// HeaderTraceID 请求与响应中携带 Trace ID 的头
const HeaderTraceID = "X-Trace-ID"

// NewTraceID 生成一个随机的、唯一的 Trace ID
// 用于串联一次 HTTP 请求或一轮轮询产生的所有日志
func NewTraceID() string {
	return uuid.NewString()
}

// ContextWithTraceID 将 Trace ID 注入到 Context 中，并返回一个新的 Context
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext 从 Context 中提取 Trace ID
func TraceIDFromContext(ctx context.Context) (string, bool) {
	traceID, ok := ctx.Value(traceIDKey).(string)
	return traceID, ok && traceID != ""
}

// LoggerWithTrace 如果 ctx 中有 Trace ID，则返回附带 trace_id 字段的日志器
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if traceID, ok := TraceIDFromContext(ctx); ok {
		return logger.With("trace_id", traceID)
	}
	return logger
}
