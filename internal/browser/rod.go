package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"founderhunter/internal/config"
	"founderhunter/internal/pkg/metrics"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const (
	// 超时常量
	browserInitTimeout   = 30 * time.Second // 浏览器初始化超时
	pageCreateTimeout    = 10 * time.Second // 页面创建超时
	stealthScriptTimeout = 5 * time.Second  // Stealth 脚本应用超时

	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"
)

// 屏蔽列表：高带宽资源与追踪脚本，降低加载时间与带宽消耗。
// 字段提取只依赖 DOM 文本与链接，不需要这些资源。
var blockedURLPatterns = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico",
	"*.avif", "*.bmp", "*.tif", "*.tiff",
	"*.woff", "*.woff2", "*.ttf", "*.eot", "*.otf",
	"*.mp4", "*.webm", "*.m4v", "*.mov", "*.avi",
	"*.mp3", "*.aac", "*.m4a", "*.ogg", "*.wav",

	"*google-analytics*",
	"*googletagmanager*",
	"*doubleclick*",
	"*facebook*",
	"*twitter*",
	"*sentry*",
	"*segment*",
	"*fullstory*",
}

// RodDriver 基于 go-rod 的 Driver 实现。
type RodDriver struct {
	browser     *rod.Browser
	logger      *slog.Logger
	userAgent   string
	pageTimeout time.Duration
}

// NewRodDriver 启动浏览器实例并创建驱动。
//
// 启动失败返回包装了 ErrDriverUnavailable 的错误，调用方应据此中止整个运行。
// 针对 Docker/EC2 环境做了适配（NoSandbox、disable-dev-shm-usage）。
func NewRodDriver(ctx context.Context, cfg *config.BrowserConfig, logger *slog.Logger) (*RodDriver, error) {
	initCtx, cancel := context.WithTimeout(ctx, browserInitTimeout)
	defer cancel()

	bin := cfg.BinPath
	if bin == "" {
		logger.Info("no browser binary specified, downloading default...")
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return nil, fmt.Errorf("%w: download browser: %v", ErrDriverUnavailable, err)
		}
		bin = path
	}

	// 针对容器环境的 Flag 优化
	l := launcher.New().
		Headless(cfg.Headless).
		Bin(bin).
		NoSandbox(true).
		// 禁用 /dev/shm，防止容器内内存崩溃
		Set("disable-dev-shm-usage", "true").
		Set("disable-gpu", "true").
		Set("disable-software-rasterizer", "true").
		Set("remote-allow-origins", "*").
		// 缓存与内存优化
		Set("disk-cache-size", "1").
		Set("media-cache-size", "1").
		Set("disable-application-cache", "true").
		Set("js-flags", "--max_old_space_size=512")

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: launch browser: %v", ErrDriverUnavailable, err)
	}

	browser := rod.New().Context(initCtx).ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("%w: connect browser: %v", ErrDriverUnavailable, err)
	}
	metrics.BrowserInstances.Inc()

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	pageTimeout := cfg.PageTimeout
	if pageTimeout <= 0 {
		pageTimeout = 60 * time.Second
	}

	logger.Info("browser started",
		slog.String("bin", bin),
		slog.Bool("headless", cfg.Headless))

	return &RodDriver{
		browser:     browser,
		logger:      logger,
		userAgent:   ua,
		pageTimeout: pageTimeout,
	}, nil
}

// OpenPage 打开一个新标签页并完成初始化（Stealth 脚本、资源屏蔽、UA 覆盖）。
func (d *RodDriver) OpenPage(ctx context.Context) (Page, error) {
	// 页面创建使用调用方的完整 context，外层用 select 做超时保护，
	// 不让 Page 对象绑定短超时 context。
	type pageResult struct {
		page *rod.Page
		err  error
	}
	pageResultCh := make(chan pageResult, 1)

	go func() {
		page, pageErr := d.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
		select {
		case pageResultCh <- pageResult{page: page, err: pageErr}:
		default:
			// 主 goroutine 已超时离开，清理页面
			if page != nil {
				_ = page.Close()
			}
			d.logger.Warn("page creation completed after timeout, cleaned up")
		}
	}()

	pageCreateTimer := time.NewTimer(pageCreateTimeout)
	defer pageCreateTimer.Stop()

	var basePage *rod.Page
	select {
	case result := <-pageResultCh:
		if result.err != nil {
			return nil, fmt.Errorf("create page: %w", result.err)
		}
		basePage = result.page
	case <-pageCreateTimer.C:
		return nil, fmt.Errorf("create page timeout after %v", pageCreateTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled during page creation: %w", ctx.Err())
	}

	// Stealth 脚本应用，同样只用 select 做超时保护
	stealthTimer := time.NewTimer(stealthScriptTimeout)
	defer stealthTimer.Stop()
	stealthDone := make(chan error, 1)
	go func() {
		_, evalErr := basePage.EvalOnNewDocument(stealth.JS)
		stealthDone <- evalErr
	}()

	select {
	case err := <-stealthDone:
		if err != nil {
			_ = basePage.Close()
			return nil, fmt.Errorf("apply stealth script: %w", err)
		}
	case <-stealthTimer.C:
		_ = basePage.Close()
		return nil, fmt.Errorf("apply stealth script timeout after %v", stealthScriptTimeout)
	case <-ctx.Done():
		_ = basePage.Close()
		return nil, fmt.Errorf("context cancelled during stealth script: %w", ctx.Err())
	}

	if err := (proto.NetworkSetBlockedURLs{
		Urls: blockedURLPatterns,
	}).Call(basePage); err != nil {
		d.logger.Warn("set blocked urls failed", slog.String("error", err.Error()))
	}

	page := basePage.Timeout(d.pageTimeout)
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: d.userAgent}); err != nil {
		d.logger.Warn("set user agent failed", slog.String("error", err.Error()))
	}

	metrics.PagesActive.Inc()
	metrics.PagesOpenedTotal.Inc()

	return &rodPage{page: page, logger: d.logger, timeout: d.pageTimeout}, nil
}

// Close 关闭浏览器实例。
func (d *RodDriver) Close() error {
	if d.browser == nil {
		return nil
	}
	if err := d.browser.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	metrics.BrowserInstances.Dec()
	return nil
}

// rodPage 包装 rod.Page 实现 Page 接口。
type rodPage struct {
	page    *rod.Page
	logger  *slog.Logger
	timeout time.Duration
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	navigateCtx, navigateCancel := context.WithTimeout(ctx, p.timeout)
	defer navigateCancel()

	// 在 goroutine 中执行 Navigate，即使浏览器卡住也能及时返回
	navigateErrCh := make(chan error, 1)
	go func() {
		navigateErrCh <- p.page.Navigate(url)
	}()

	select {
	case navErr := <-navigateErrCh:
		if navErr != nil {
			return &NavigationError{URL: url, Err: navErr}
		}
	case <-navigateCtx.Done():
		return &NavigationError{URL: url, Err: navigateCtx.Err()}
	}

	// 等待页面加载完成，失败不致命（SPA 场景下元素等待兜底）
	if err := p.page.Context(navigateCtx).WaitLoad(); err != nil {
		p.logger.Debug("WaitLoad failed, continuing anyway",
			slog.String("url", url),
			slog.String("error", err.Error()))
	}
	return nil
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("wait visible %q: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Scroll(ctx context.Context) error {
	_, err := p.page.Context(ctx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	if err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

func (p *rodPage) ElementText(ctx context.Context, selector string) (string, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return "", fmt.Errorf("element %q: %w", selector, err)
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("text of %q: %w", selector, err)
	}
	return text, nil
}

func (p *rodPage) ElementTexts(ctx context.Context, selector string) ([]string, error) {
	elems, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("elements %q: %w", selector, err)
	}
	texts := make([]string, 0, len(elems))
	for _, el := range elems {
		text, err := el.Text()
		if err != nil {
			continue
		}
		texts = append(texts, text)
	}
	return texts, nil
}

func (p *rodPage) AttributeValues(ctx context.Context, selector, attr string) ([]string, error) {
	elems, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("elements %q: %w", selector, err)
	}
	values := make([]string, 0, len(elems))
	for _, el := range elems {
		v, err := el.Attribute(attr)
		if err != nil || v == nil {
			continue
		}
		values = append(values, *v)
	}
	return values, nil
}

func (p *rodPage) Close() error {
	metrics.PagesActive.Dec()
	if err := p.page.Close(); err != nil {
		return fmt.Errorf("close page: %w", err)
	}
	return nil
}
