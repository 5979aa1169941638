package errs

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Wrap 追加上下文并保留错误链 (errors.Is/As 可用)
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 追加格式化上下文并保留错误链
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	args = append(args, err)
	return fmt.Errorf(format+": %w", args...)
}

type loggable struct{ err error }

// Loggable 让 slog 以结构化字段输出错误及其展开链
// 用法: logger.Error("...", "error", errs.Loggable(err))
func Loggable(err error) slog.LogValuer { return loggable{err: err} }

func (l loggable) LogValue() slog.Value {
	if l.err == nil {
		return slog.GroupValue()
	}
	return slog.GroupValue(
		slog.String("message", l.err.Error()),
		slog.Any("chain", Chain(l.err)),
	)
}

// Chain 返回由外到内的错误链文本
func Chain(err error) []string {
	var out []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		out = append(out, e.Error())
	}
	return out
}

// 标准错误码
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "RESOURCE_NOT_FOUND"
	CodeConflict   = "CONFLICT"
	CodeInternal   = "INTERNAL_ERROR"
)

// AppError 面向 HTTP 边界的错误，携带错误码和状态码
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail 附加单个细节字段
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap 关联底层错误
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

func newAppError(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// ErrValidation 参数校验失败
func ErrValidation(message string) *AppError {
	return newAppError(CodeValidation, message, http.StatusBadRequest)
}

// ErrNotFound 资源不存在
func ErrNotFound(resource string) *AppError {
	return newAppError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// ErrConflict 状态冲突
func ErrConflict(message string) *AppError {
	return newAppError(CodeConflict, message, http.StatusConflict)
}

// ErrInternal 内部错误
func ErrInternal(err error) *AppError {
	return newAppError(CodeInternal, "internal server error", http.StatusInternalServerError).Wrap(err)
}

// AsAppError 从错误链中提取 AppError，未找到时包装为内部错误
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal(err)
}
