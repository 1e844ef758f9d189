package frontier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"founderhunter/internal/browser"
	"founderhunter/internal/model"
	"founderhunter/internal/pkg/metrics"
	"founderhunter/internal/pkg/urlstore"
)

const (
	linkSelector   = `a[href^="/companies/"]`
	companyBaseURL = "https://www.ycombinator.com"

	// 滚动安全上限，防止 patience 配置异常时的无限循环
	maxScrollAttempts = 150
)

// ErrExhausted 表示列表在达到 target 之前就没有新内容了。
// 非致命：调用方应继续处理已发现的 URL。
var ErrExhausted = errors.New("frontier: listing exhausted before reaching target")

// Frontier 负责 Phase 1：驱动无限滚动列表页，收集并去重详情页 URL。
//
// 停止条件（二选一）：累计数量达到 target，或连续 patience 次滚动
// 没有带来任何新 URL。返回的切片保持发现顺序，最多 target 个。
type Frontier struct {
	driver     browser.Driver
	store      *urlstore.Store
	logger     *slog.Logger
	progress   *model.Progress
	listURL    string
	patience   int
	scrollWait time.Duration
}

// New 创建 Frontier。store 可以为 nil（关闭跨运行的暂存与去重）。
func New(driver browser.Driver, store *urlstore.Store, progress *model.Progress, logger *slog.Logger, listURL string, patience int, scrollWait time.Duration) *Frontier {
	if patience < 1 {
		patience = 1
	}
	if scrollWait <= 0 {
		scrollWait = 3 * time.Second
	}
	return &Frontier{
		driver:     driver,
		store:      store,
		logger:     logger,
		progress:   progress,
		listURL:    listURL,
		patience:   patience,
		scrollWait: scrollWait,
	}
}

// Fill 发现最多 target 个唯一详情页 URL。
//
// 列表提前耗尽时返回已收集的 URL 和 ErrExhausted；上下文取消时
// 返回已收集的部分，不报错。超出 target 的 URL 在 store 配置时
// 推入 overflow 列表供下次运行使用，否则丢弃。
func (f *Frontier) Fill(ctx context.Context, target int) ([]string, error) {
	if target <= 0 {
		return nil, fmt.Errorf("frontier: invalid target %d", target)
	}

	fillStart := time.Now()
	seen := make(map[string]struct{}, target)
	urls := make([]string, 0, target)

	insert := func(raw string, checkStore bool) {
		u, ok := normalizeCompanyURL(raw)
		if !ok {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		if checkStore && f.store != nil {
			fresh, err := f.store.MarkSeen(ctx, u)
			if err != nil {
				// Redis 故障时降级为仅内存去重
				f.logger.Debug("mark seen failed, accepting url anyway",
					slog.String("url", u),
					slog.String("error", err.Error()))
			} else if !fresh {
				return
			}
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	// 上次运行暂存的 overflow 优先消费（已经去过重，不再查 store）
	f.seedFromOverflow(ctx, target, func(raw string) { insert(raw, false) })
	if len(urls) > 0 {
		f.logger.Info("seeded urls from overflow store", slog.Int("count", len(urls)))
	}

	page, err := f.driver.OpenPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open listing page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			f.logger.Warn("close listing page failed", slog.String("error", err.Error()))
		}
	}()

	if err := page.Navigate(ctx, f.listURL); err != nil {
		return nil, fmt.Errorf("load listing: %w", err)
	}
	if err := page.WaitVisible(ctx, linkSelector); err != nil {
		f.logger.Warn("no company links visible after load", slog.String("error", err.Error()))
	}

	harvest := func() {
		hrefs, err := page.AttributeValues(ctx, linkSelector, "href")
		if err != nil {
			f.logger.Warn("read listing links failed", slog.String("error", err.Error()))
			return
		}
		// 不在 target 处截断：当前 DOM 里已经渲染的链接全部收下，
		// 多出的部分由结尾的 overflow 逻辑处理
		for _, href := range hrefs {
			insert(href, true)
		}
	}

	harvest()

	noGrowthAttempts := 0
	scrolls := 0
	exhausted := false

	// 滚动循环
ScrollLoop:
	for len(urls) < target {
		if scrolls >= maxScrollAttempts {
			f.logger.Warn("scroll safety cap reached", slog.Int("scrolls", scrolls))
			exhausted = true
			break
		}

		before := len(urls)

		if err := page.Scroll(ctx); err != nil {
			f.logger.Warn("scroll failed", slog.String("error", err.Error()))
			exhausted = true
			break
		}
		scrolls++
		metrics.ScrollAttemptsTotal.Inc()

		// 等待懒加载渲染
		select {
		case <-time.After(f.scrollWait):
		case <-ctx.Done():
			f.logger.Info("discovery cancelled, keeping partial frontier",
				slog.Int("collected", len(urls)))
			break ScrollLoop
		}

		harvest()

		if len(urls) <= before {
			noGrowthAttempts++
			f.logger.Debug("scroll produced no new urls",
				slog.Int("attempt", noGrowthAttempts),
				slog.Int("patience", f.patience))
			if noGrowthAttempts >= f.patience {
				exhausted = true
				break
			}
		} else {
			noGrowthAttempts = 0
		}
	}

	// 超出 target 的部分暂存或丢弃
	if len(urls) > target {
		extras := urls[target:]
		urls = urls[:target]
		if err := f.store.PushOverflow(ctx, extras); err != nil {
			f.logger.Warn("push overflow urls failed", slog.String("error", err.Error()))
		}
	}

	f.progress.Discovered.Store(int64(len(urls)))
	metrics.URLsDiscovered.Set(float64(len(urls)))

	f.logger.Info("discovery finished",
		slog.Int("urls", len(urls)),
		slog.Int("target", target),
		slog.Int("scrolls", scrolls),
		slog.String("duration", time.Since(fillStart).String()))

	if exhausted && len(urls) < target {
		return urls, fmt.Errorf("%w: got %d of %d", ErrExhausted, len(urls), target)
	}
	return urls, nil
}

func (f *Frontier) seedFromOverflow(ctx context.Context, target int, insert func(string)) {
	if f.store == nil {
		return
	}
	for {
		u, err := f.store.PopOverflow(ctx)
		if errors.Is(err, urlstore.ErrEmpty) {
			return
		}
		if err != nil {
			f.logger.Warn("pop overflow failed", slog.String("error", err.Error()))
			return
		}
		insert(u)
	}
}

// normalizeCompanyURL 将列表页上的相对链接规整为规范的详情页 URL。
// 去掉查询串与锚点，拒绝列表页自身与非公司链接。
func normalizeCompanyURL(raw string) (string, bool) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", false
	}
	if idx := strings.IndexAny(u, "?#"); idx >= 0 {
		u = u[:idx]
	}
	u = strings.TrimSuffix(u, "/")

	if strings.HasPrefix(u, companyBaseURL) {
		u = strings.TrimPrefix(u, companyBaseURL)
	}
	if !strings.HasPrefix(u, "/companies/") {
		return "", false
	}
	slug := strings.TrimPrefix(u, "/companies/")
	// 只排除创始人目录本身，不误伤 foundersuite 这类公司名
	if slug == "" || slug == "founders" || strings.HasPrefix(slug, "founders/") {
		return "", false
	}
	return companyBaseURL + u, true
}
