package logger

import (
	"log/slog"
	"os"
	"strings"
)

// NewDefault 根据配置的日志级别创建默认的 slog Logger（文本输出到 stdout）。
func NewDefault(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// ParseLevel 解析日志级别字符串，无法识别时回退到 Info。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
