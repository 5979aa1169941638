package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/util"
)

const contextKeyTraceID = "traceId"

// TraceID 读取或生成请求的 Trace ID，写入响应头并注入请求 Context
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(util.HeaderTraceID)
		if traceID == "" {
			traceID = util.NewTraceID()
		}
		c.Set(contextKeyTraceID, traceID)
		c.Header(util.HeaderTraceID, traceID)
		c.Request = c.Request.WithContext(util.ContextWithTraceID(c.Request.Context(), traceID))
		c.Next()
	}
}

// RequestLogger 记录每个请求，日志级别随状态码变化
// skip 中的路径不记录
func RequestLogger(logger *slog.Logger, skip ...string) gin.HandlerFunc {
	skipMap := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipMap[p] = true
	}
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skipMap[path] {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			attrs = append(attrs, "query", q)
		}
		log := util.LoggerWithTrace(c.Request.Context(), logger)
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("HTTP 请求", attrs...)
		case status >= http.StatusBadRequest:
			log.Warn("HTTP 请求", attrs...)
		default:
			log.Info("HTTP 请求", attrs...)
		}
	}
}

// Recovery 捕获 panic 并返回统一的内部错误响应
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				util.LoggerWithTrace(c.Request.Context(), logger).Error("panic recovered",
					"panic", r,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				abortWithError(c, errs.ErrInternal(nil))
			}
		}()
		c.Next()
	}
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	TraceID string            `json:"trace_id,omitempty"`
}

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, successEnvelope{Success: true, Data: data})
}

func abortWithError(c *gin.Context, appErr *errs.AppError) {
	traceID, _ := util.TraceIDFromContext(c.Request.Context())
	c.AbortWithStatusJSON(appErr.HTTPStatus, errorEnvelope{Error: errorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
		TraceID: traceID,
	}})
}

// respondError 将任意错误转换为 AppError 响应，5xx 记录错误链
func (s *Server) respondError(c *gin.Context, err error) {
	appErr := errs.AsAppError(err)
	log := util.LoggerWithTrace(c.Request.Context(), s.logger)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		log.Error("请求处理失败", "path", c.Request.URL.Path, "error", errs.Loggable(err))
	} else {
		log.Debug("请求被拒绝", "path", c.Request.URL.Path, "code", appErr.Code, "message", appErr.Message)
	}
	abortWithError(c, appErr)
}
