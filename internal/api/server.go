package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"founderhunter/internal/model"

	"github.com/gin-gonic/gin"
)

// StatusSource 状态 API 的数据来源（由 pipeline.Coordinator 实现）。
type StatusSource interface {
	State() model.State
	Progress() model.ProgressSnapshot
}

// Server 只读状态服务：暴露管道状态与进度计数器，仅供人工观察。
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer 创建状态服务。
func NewServer(addr string, source StatusSource, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"state":    source.State().String(),
			"progress": source.Progress(),
		})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: engine,
		},
		logger: logger,
	}
}

// Start 启动监听（阻塞，通常在独立 goroutine 中运行）。
func (s *Server) Start() error {
	s.logger.Info("status server started", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭。
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requestLogger 记录请求元数据。
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if logger != nil {
			logger.Info("http request",
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.Int("status", c.Writer.Status()),
				slog.String("client_ip", c.ClientIP()),
				slog.String("latency", time.Since(start).String()),
			)
		}
	}
}
