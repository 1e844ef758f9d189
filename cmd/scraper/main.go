package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"founderhunter/internal/api"
	"founderhunter/internal/browser"
	"founderhunter/internal/checkpoint"
	"founderhunter/internal/config"
	"founderhunter/internal/extract"
	"founderhunter/internal/frontier"
	"founderhunter/internal/model"
	"founderhunter/internal/pipeline"
	"founderhunter/internal/pkg/logger"
	"founderhunter/internal/pkg/notify"
	"founderhunter/internal/pkg/urlstore"
	"founderhunter/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// main 是抓取服务的入口函数。
//
// 它负责：
// 1. 加载配置与初始化日志
// 2. 启动浏览器驱动（失败即中止，等价于 Aborted）
// 3. 组装 Frontier / Worker Pool / Checkpoint Writer / Coordinator
// 4. 启动状态 API 与 Metrics 服务
// 5. 运行管道并优雅关闭
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	runStart := time.Now()

	// Redis 可选：仅在配置了地址且开启 overflow store 时使用
	var store *urlstore.Store
	var rdb *redis.Client
	if cfg.Redis.Addr != "" && cfg.App.OverflowStore {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			appLogger.Warn("redis unreachable, overflow store disabled",
				slog.String("addr", cfg.Redis.Addr),
				slog.String("error", err.Error()))
			_ = rdb.Close()
			rdb = nil
		} else {
			store = urlstore.New(rdb, 0)
			appLogger.Info("overflow store enabled", slog.String("addr", cfg.Redis.Addr))
		}
		pingCancel()
	}

	driver, err := browser.NewRodDriver(context.Background(), &cfg.Browser, appLogger)
	if err != nil {
		appLogger.Error("browser driver unavailable, aborting run",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	writer, err := checkpoint.NewWriter(cfg.App.OutputDir, cfg.App.BatchSize, appLogger)
	if err != nil {
		appLogger.Error("init checkpoint writer failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	progress := &model.Progress{}
	extractor := extract.NewCompany()

	front := frontier.New(driver, store, progress, appLogger,
		cfg.App.ListURL, cfg.App.ScrollPatience, cfg.App.ScrollWait)

	pool := worker.NewPool(driver, extractor.Extract, progress, appLogger, worker.Config{
		ConcurrencyLimit: cfg.App.ConcurrencyLimit,
		MaxRetries:       cfg.App.MaxRetries,
		RateLimit:        cfg.App.RateLimit,
		RateBurst:        cfg.App.RateBurst,
		GracePeriod:      cfg.App.GracePeriod,
	}, writer.Accept)

	coordinator := pipeline.New(front, pool, writer, progress, appLogger, cfg.App.TargetCount)

	statusServer := api.NewServer(cfg.App.HTTPAddr, coordinator, appLogger)
	go func() {
		if err := statusServer.Start(); err != nil {
			appLogger.Error("status server stopped with error", slog.String("error", err.Error()))
		}
	}()

	metricsServer := &http.Server{
		Addr:    cfg.App.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		appLogger.Info("metrics server started", slog.String("addr", cfg.App.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()

	// 协作式取消：收到信号后不再出队新任务，在途任务在宽限期内收尾
	runCtx, cancelRun := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLogger.Info("received os signal, requesting cooperative stop",
			slog.String("signal", sig.String()))
		cancelRun()
	}()

	runErr := coordinator.Run(runCtx)
	if runErr != nil {
		appLogger.Error("pipeline run failed", slog.String("error", runErr.Error()))
	}

	if cfg.App.NotifyEmail != "" {
		notifier := notify.NewEmailNotifier(&cfg.Email, appLogger)
		if err := notifier.SendRunSummary(cfg.App.NotifyEmail, progress.Snapshot(),
			coordinator.FailedURLs(), coordinator.ExportPath(), time.Since(runStart)); err != nil {
			appLogger.Warn("send run summary failed", slog.String("error", err.Error()))
		}
	}

	appLogger.Info("shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("status server shutdown error", slog.String("error", err.Error()))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics server shutdown error", slog.String("error", err.Error()))
	}
	if err := driver.Close(); err != nil {
		appLogger.Error("close browser failed", slog.String("error", err.Error()))
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			appLogger.Warn("close redis failed", slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		os.Exit(1)
	}
	appLogger.Info("scraper stopped gracefully")
}
