package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"founderhunter/internal/checkpoint"
	"founderhunter/internal/frontier"
	"founderhunter/internal/model"
	"founderhunter/internal/pkg/metrics"
	"founderhunter/internal/worker"
)

const monitorInterval = 30 * time.Second

// Coordinator 串联两个阶段并推进状态机：
//
//	Init -> Discovering -> Extracting -> Exporting -> Done
//
// Aborted 只在不可恢复的浏览器失败（启动失败或运行中丢失）
// 或零 URL 时进入。协作式取消不会进入 Aborted：在途任务在宽限期内
// 收尾，最终导出照常进行。
type Coordinator struct {
	frontier *frontier.Frontier
	pool     *worker.Pool
	writer   *checkpoint.Writer
	logger   *slog.Logger
	progress *model.Progress
	target   int

	state      atomic.Int32
	exportPath atomic.Value // string
	failed     []model.FailedURL
}

// New 创建管道协调器。
func New(f *frontier.Frontier, p *worker.Pool, w *checkpoint.Writer, progress *model.Progress, logger *slog.Logger, target int) *Coordinator {
	c := &Coordinator{
		frontier: f,
		pool:     p,
		writer:   w,
		logger:   logger,
		progress: progress,
		target:   target,
	}
	c.exportPath.Store("")
	return c
}

// Run 执行一次完整的抓取运行。
func (c *Coordinator) Run(ctx context.Context) error {
	runStart := time.Now()
	c.setState(model.StateInit)

	// 进度监控使用独立 context，Run 返回时停止
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go c.runMonitor(monitorCtx)

	c.setState(model.StateDiscovering)
	urls, err := c.frontier.Fill(ctx, c.target)
	if err != nil {
		if !errors.Is(err, frontier.ErrExhausted) {
			c.setState(model.StateAborted)
			return fmt.Errorf("discovery failed: %w", err)
		}
		// 非致命：用已发现的部分继续
		c.logger.Warn("discovery stopped short of target, continuing with partial frontier",
			slog.Int("discovered", len(urls)),
			slog.Int("target", c.target))
	}
	if len(urls) == 0 {
		c.setState(model.StateAborted)
		return errors.New("no detail urls discovered, aborting run")
	}

	c.setState(model.StateExtracting)
	records, failedURLs, poolErr := c.pool.Run(ctx, urls)
	c.failed = failedURLs
	if poolErr != nil {
		c.setState(model.StateAborted)
		return fmt.Errorf("extraction aborted: %w", poolErr)
	}

	c.setState(model.StateExporting)
	path, exportErr := c.writer.FinalExport()
	if path != "" {
		c.exportPath.Store(path)
	}
	c.setState(model.StateDone)

	c.logger.Info("run finished",
		slog.String("state", c.State().String()),
		slog.Int64("discovered", c.progress.Discovered.Load()),
		slog.Int("completed", len(records)),
		slog.Int("failed", len(failedURLs)),
		slog.Int64("retries", c.progress.Retries.Load()),
		slog.String("export", path),
		slog.String("duration", time.Since(runStart).String()))

	for _, fu := range failedURLs {
		c.logger.Warn("failed url",
			slog.String("url", fu.URL),
			slog.String("kind", fu.Kind),
			slog.Int("attempts", fu.Attempts))
	}

	if exportErr != nil {
		return fmt.Errorf("final export: %w", exportErr)
	}
	return nil
}

// State 返回当前状态（供状态 API 与测试使用）。
func (c *Coordinator) State() model.State {
	return model.State(c.state.Load())
}

// Progress 返回进度计数器快照。
func (c *Coordinator) Progress() model.ProgressSnapshot {
	return c.progress.Snapshot()
}

// FailedURLs 返回重试耗尽的 URL 列表（Run 结束后可读）。
func (c *Coordinator) FailedURLs() []model.FailedURL {
	return c.failed
}

// ExportPath 返回最终导出文件路径（导出完成前为空串）。
func (c *Coordinator) ExportPath() string {
	v, _ := c.exportPath.Load().(string)
	return v
}

func (c *Coordinator) setState(s model.State) {
	old := model.State(c.state.Swap(int32(s)))
	if old != s {
		c.logger.Info("pipeline state changed",
			slog.String("from", old.String()),
			slog.String("to", s.String()))
	}
}

// runMonitor 周期性输出进度并刷新 gauge 指标。
func (c *Coordinator) runMonitor(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := c.progress.Snapshot()
			metrics.URLsDiscovered.Set(float64(snap.Discovered))
			metrics.RecordsCompleted.Set(float64(snap.Completed))
			metrics.URLsFailed.Set(float64(snap.Failed))
			c.logger.Info("pipeline progress",
				slog.String("state", c.State().String()),
				slog.Int64("discovered", snap.Discovered),
				slog.Int64("completed", snap.Completed),
				slog.Int64("failed", snap.Failed),
				slog.Int64("retries", snap.Retries))
		case <-ctx.Done():
			return
		}
	}
}
