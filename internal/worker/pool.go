package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"founderhunter/internal/browser"
	"founderhunter/internal/extract"
	"founderhunter/internal/model"
	"founderhunter/internal/pkg/metrics"

	"golang.org/x/time/rate"
)

const (
	attemptTimeout = 60 * time.Second // 单次尝试（开页+导航+提取）的最大时长

	defaultJitterMin  = 1 * time.Second // 首次尝试前的礼貌延迟下限
	defaultJitterMax  = 3 * time.Second // 首次尝试前的礼貌延迟上限
	defaultBackoffMin = 2 * time.Second // 重试退避下限
	defaultBackoffMax = 5 * time.Second // 重试退避上限
)

// Config 工作池配置。
type Config struct {
	ConcurrencyLimit int           // 同时在途的抓取数上限
	MaxRetries       int           // 每个 URL 的重试上限（总尝试 = MaxRetries+1）
	RateLimit        float64       // 全局速率 (req/s)，0 表示不限
	RateBurst        int           // 速率突发容量
	GracePeriod      time.Duration // 取消后等待在途任务的时间
	JitterMin        time.Duration // 礼貌延迟下限（0 取默认）
	JitterMax        time.Duration
	BackoffMin       time.Duration // 重试退避下限（0 取默认）
	BackoffMax       time.Duration
}

// Pool 负责 Phase 2：以固定并发上限消费 URL，产出 Record 或 FailedURL。
//
// 并发由信号量 channel 控制：同时在途的 fetch-and-extract 不超过
// ConcurrencyLimit。完成顺序不保证与输入顺序一致。
type Pool struct {
	driver   browser.Driver
	extract  extract.Func
	limiter  *rate.Limiter
	logger   *slog.Logger
	progress *model.Progress
	sink     func(model.Record)
	cfg      Config

	stats poolStats
}

// poolStats 工作池统计信息
type poolStats struct {
	TotalPanics atomic.Int64
}

// NewPool 创建工作池。sink 在每条 Record 产出时被调用（可以为 nil）。
func NewPool(driver browser.Driver, extractFn extract.Func, progress *model.Progress, logger *slog.Logger, cfg Config, sink func(model.Record)) *Pool {
	if cfg.ConcurrencyLimit < 1 {
		cfg.ConcurrencyLimit = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Second
	}
	if cfg.JitterMin <= 0 {
		cfg.JitterMin = defaultJitterMin
	}
	if cfg.JitterMax <= cfg.JitterMin {
		cfg.JitterMax = cfg.JitterMin + (defaultJitterMax - defaultJitterMin)
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = defaultBackoffMin
	}
	if cfg.BackoffMax <= cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin + (defaultBackoffMax - defaultBackoffMin)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
		logger.Info("fetch rate limiter enabled",
			slog.Float64("rate", cfg.RateLimit),
			slog.Int("burst", burst))
	}

	return &Pool{
		driver:   driver,
		extract:  extractFn,
		limiter:  limiter,
		logger:   logger,
		progress: progress,
		sink:     sink,
		cfg:      cfg,
	}
}

// Run 消费全部 URL 直到耗尽、上下文取消或浏览器丢失。
//
// 取消后不再出队新任务，在途任务最多再等 GracePeriod。
// 浏览器不可用（ErrDriverUnavailable）是唯一的致命错误：池子立即停止
// 出队并把它返回给调用方，剩余 URL 不计入失败列表。
// 返回已完成的 Record 与重试耗尽的 FailedURL 快照。
func (p *Pool) Run(ctx context.Context, urls []string) ([]model.Record, []model.FailedURL, error) {
	// runCtx 在浏览器丢失时被取消，让排队中的任务立即放弃
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	sem := make(chan struct{}, p.cfg.ConcurrencyLimit)
	p.logger.Info("worker pool started",
		slog.Int("urls", len(urls)),
		slog.Int("max_concurrent_pages", p.cfg.ConcurrencyLimit))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		records  []model.Record
		failed   []model.FailedURL
		fatalErr error
	)

	abort := func(err error) {
		mu.Lock()
		if fatalErr == nil {
			fatalErr = err
			p.logger.Error("browser driver lost, stopping worker pool",
				slog.String("error", err.Error()))
			cancelRun()
		}
		mu.Unlock()
	}

Dequeue:
	for _, u := range urls {
		// 先申请令牌再派发，处理不过来就暂停出队
		select {
		case sem <- struct{}{}:
		case <-runCtx.Done():
			break Dequeue
		}
		if runCtx.Err() != nil {
			<-sem
			break Dequeue
		}

		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			defer func() { <-sem }()

			// Panic 恢复：单个任务崩溃不拖垮整个池子
			defer func() {
				if r := recover(); r != nil {
					p.stats.TotalPanics.Add(1)
					p.logger.Error("fetch task panic recovered",
						slog.String("url", url),
						slog.Any("panic", r))
				}
			}()

			rec, fail, err := p.processTask(runCtx, url)
			if err != nil {
				abort(err)
				return
			}
			if rec != nil {
				p.progress.Completed.Add(1)
				if p.sink != nil {
					p.sink(*rec)
				}
				mu.Lock()
				records = append(records, *rec)
				mu.Unlock()
			}
			if fail != nil {
				p.progress.Failed.Add(1)
				metrics.FetchFailuresTotal.WithLabelValues(fail.Kind).Inc()
				mu.Lock()
				failed = append(failed, *fail)
				mu.Unlock()
			}
		}(u)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		p.logger.Info("stop signal received, draining in-flight tasks",
			slog.String("grace_period", p.cfg.GracePeriod.String()))
		select {
		case <-done:
		case <-time.After(p.cfg.GracePeriod):
			p.logger.Warn("grace period expired with tasks still in flight")
		}
	}

	mu.Lock()
	recordsOut := make([]model.Record, len(records))
	copy(recordsOut, records)
	failedOut := make([]model.FailedURL, len(failed))
	copy(failedOut, failed)
	outErr := fatalErr
	mu.Unlock()

	p.logger.Info("worker pool drained",
		slog.Int("completed", len(recordsOut)),
		slog.Int("failed", len(failedOut)),
		slog.Int64("panics", p.stats.TotalPanics.Load()))
	return recordsOut, failedOut, outErr
}

// processTask 处理单个 URL：礼貌延迟、速率限制、带退避的重试循环。
// 上下文取消时放弃任务（不计入失败列表）。
// 浏览器丢失作为第三个返回值上报，不消耗重试次数。
func (p *Pool) processTask(ctx context.Context, url string) (*model.Record, *model.FailedURL, error) {
	// 首次尝试前的随机礼貌延迟，独立于重试退避
	jitter := randomDelay(p.cfg.JitterMin, p.cfg.JitterMax)
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		return nil, nil, nil
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, nil, nil
		}
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			p.progress.Retries.Add(1)
			metrics.FetchRetriesTotal.Inc()
			backoff := randomDelay(p.cfg.BackoffMin, p.cfg.BackoffMax)
			p.logger.Debug("retrying after backoff",
				slog.String("url", url),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, nil, nil
			}
		}

		attempts++
		rec, err := p.attempt(url)
		if err == nil {
			return rec, nil, nil
		}
		if errors.Is(err, browser.ErrDriverUnavailable) {
			// 浏览器没了，重试无意义，整个池子都得停
			return nil, nil, err
		}
		lastErr = err
		p.logger.Warn("fetch attempt failed",
			slog.String("url", url),
			slog.Int("attempt", attempts),
			slog.String("error", err.Error()))
	}

	kind := classifyKind(lastErr)
	p.logger.Error("url dropped after exhausting retries",
		slog.String("url", url),
		slog.String("kind", kind),
		slog.Int("attempts", attempts))
	return nil, &model.FailedURL{
		URL:      url,
		Kind:     kind,
		Attempts: attempts,
		LastErr:  lastErr.Error(),
	}, nil
}

// attempt 执行一次 开页 -> 导航 -> 提取。页面在所有退出路径上被关闭。
//
// 使用独立的超时 context：即使池子的 ctx 已取消，在途尝试仍可在
// attemptTimeout 内正常收尾。
func (p *Pool) attempt(url string) (*model.Record, error) {
	attemptCtx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.FetchDuration.Observe(time.Since(start).Seconds())
	}()

	page, err := p.driver.OpenPage(attemptCtx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			p.logger.Debug("close page failed",
				slog.String("url", url),
				slog.String("error", cerr.Error()))
		}
	}()

	if err := page.Navigate(attemptCtx, url); err != nil {
		return nil, err
	}

	rec, err := p.extract(attemptCtx, page)
	if err != nil {
		return nil, err
	}
	rec.SourceURL = url
	return rec, nil
}

// classifyKind 返回用于失败列表与 metrics 的错误分类字符串。
func classifyKind(err error) string {
	if err == nil {
		return "unknown"
	}
	var exErr *extract.Error
	if errors.As(err, &exErr) {
		return "extract_" + exErr.Kind.String()
	}
	if browser.IsNavigationError(err) {
		return "navigation"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unknown"
}

func randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
