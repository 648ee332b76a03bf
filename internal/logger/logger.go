// Package logger 提供统一的结构化日志支持
// 基于 Go 1.21+ 标准库 log/slog，不引入额外依赖
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	defaultLogger *slog.Logger
	mu            sync.RWMutex
)

// 初始化默认 logger
func init() {
	defaultLogger = newLogger(os.Stdout, slog.LevelInfo, "text")
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("app", "statuspulse")
}

// ParseLevel 解析日志级别字符串（debug/info/warn/error），未知值回退为 info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Configure 按配置重建默认 logger（format: text 或 json）
func Configure(level, format string) {
	l := newLogger(os.Stdout, ParseLevel(level), strings.ToLower(strings.TrimSpace(format)))
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

// SetOutput 将默认 logger 重定向到指定 writer（测试用）
func SetOutput(w io.Writer) {
	l := newLogger(w, slog.LevelDebug, "text")
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

// Default 返回默认 logger
func Default() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// WithComponent 创建带有组件标识的 logger
func WithComponent(component string) *slog.Logger {
	return Default().With("component", component)
}

// context key 类型（避免与其他包冲突）
type ctxKey string

const (
	// RequestIDKey 用于存储 request_id 的 context key
	RequestIDKey ctxKey = "request_id"

	// CycleIDKey 用于存储巡检周期 cycle_id 的 context key
	CycleIDKey ctxKey = "cycle_id"
)

// NewShortID 生成短 UUID（8 位），用于 request_id / cycle_id
func NewShortID() string {
	return uuid.New().String()[:8]
}

// WithRequestID 将 request_id 存入 context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithCycleID 将 cycle_id 存入 context
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, CycleIDKey, cycleID)
}

// CycleIDFrom 从 context 取出 cycle_id（不存在时返回空串）
func CycleIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(CycleIDKey).(string)
	return id
}

// FromContext 从 context 获取 logger，自动附加 request_id / cycle_id（如果存在）
func FromContext(ctx context.Context, component string) *slog.Logger {
	l := WithComponent(component)
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok && reqID != "" {
		l = l.With("request_id", reqID)
	}
	if cycleID := CycleIDFrom(ctx); cycleID != "" {
		l = l.With("cycle_id", cycleID)
	}
	return l
}

// 便捷方法：直接记录日志

// Info 记录 INFO 级别日志
func Info(component, msg string, args ...any) {
	WithComponent(component).Info(msg, args...)
}

// Warn 记录 WARN 级别日志
func Warn(component, msg string, args ...any) {
	WithComponent(component).Warn(msg, args...)
}

// Error 记录 ERROR 级别日志
func Error(component, msg string, args ...any) {
	WithComponent(component).Error(msg, args...)
}

// Debug 记录 DEBUG 级别日志
func Debug(component, msg string, args ...any) {
	WithComponent(component).Debug(msg, args...)
}
