package frontier

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"founderhunter/internal/browser"
	"founderhunter/internal/model"
	"founderhunter/internal/pkg/urlstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// scriptedPage 按采集轮次返回预设的链接列表，模拟无限滚动。
type scriptedPage struct {
	batches  [][]string // 每轮 AttributeValues 返回的 href 列表（超出后停在最后一组）
	harvests int
	scrolls  int
}

func (p *scriptedPage) Navigate(ctx context.Context, url string) error          { return nil }
func (p *scriptedPage) WaitVisible(ctx context.Context, selector string) error  { return nil }
func (p *scriptedPage) ElementText(ctx context.Context, s string) (string, error) { return "", nil }
func (p *scriptedPage) ElementTexts(ctx context.Context, s string) ([]string, error) {
	return nil, nil
}
func (p *scriptedPage) Close() error { return nil }

func (p *scriptedPage) Scroll(ctx context.Context) error {
	p.scrolls++
	return nil
}

func (p *scriptedPage) AttributeValues(ctx context.Context, selector, attr string) ([]string, error) {
	idx := p.harvests
	if idx >= len(p.batches) {
		idx = len(p.batches) - 1
	}
	p.harvests++
	return p.batches[idx], nil
}

type stubDriver struct {
	page    browser.Page
	openErr error
}

func (d *stubDriver) OpenPage(ctx context.Context) (browser.Page, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.page, nil
}

func (d *stubDriver) Close() error { return nil }

func newTestFrontier(page browser.Page, store *urlstore.Store, patience int) (*Frontier, *model.Progress) {
	progress := &model.Progress{}
	f := New(&stubDriver{page: page}, store, progress, testLogger(),
		"https://www.ycombinator.com/companies", patience, time.Millisecond)
	return f, progress
}

func TestFillReachesTarget(t *testing.T) {
	page := &scriptedPage{batches: [][]string{
		{"/companies/alpha", "/companies/beta"},
		{"/companies/alpha", "/companies/beta", "/companies/gamma", "/companies/delta"},
		{"/companies/alpha", "/companies/beta", "/companies/gamma", "/companies/delta", "/companies/epsilon", "/companies/zeta"},
	}}
	f, progress := newTestFrontier(page, nil, 3)

	urls, err := f.Fill(context.Background(), 5)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if len(urls) != 5 {
		t.Fatalf("got %d urls, want 5", len(urls))
	}
	if urls[0] != "https://www.ycombinator.com/companies/alpha" {
		t.Errorf("first url = %q, discovery order not preserved", urls[0])
	}
	if progress.Discovered.Load() != 5 {
		t.Errorf("discovered counter = %d, want 5", progress.Discovered.Load())
	}
	seen := make(map[string]struct{})
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			t.Fatalf("duplicate url in frontier: %s", u)
		}
		seen[u] = struct{}{}
	}
}

func TestFillDedupsAndNormalizes(t *testing.T) {
	page := &scriptedPage{batches: [][]string{{
		"/companies/alpha",
		"/companies/alpha/",
		"/companies/alpha?tab=jobs",
		"https://www.ycombinator.com/companies/alpha#team",
		"/companies/beta",
		"/companies",            // 列表页自身
		"/companies/founders",   // 创始人目录，不是详情页
		"/about",
	}}}
	f, _ := newTestFrontier(page, nil, 3)

	urls, err := f.Fill(context.Background(), 10)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("got %v, want exactly alpha and beta", urls)
	}
	if urls[0] != "https://www.ycombinator.com/companies/alpha" || urls[1] != "https://www.ycombinator.com/companies/beta" {
		t.Errorf("unexpected urls: %v", urls)
	}
}

func TestFillPatienceExhaustion(t *testing.T) {
	// 静态列表：无论怎么滚都不会有新链接
	page := &scriptedPage{batches: [][]string{{"/companies/alpha", "/companies/beta"}}}
	f, _ := newTestFrontier(page, nil, 3)

	urls, err := f.Fill(context.Background(), 100)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("got %d urls, want 2", len(urls))
	}
	if page.scrolls != 3 {
		t.Fatalf("got %d scrolls, want exactly 3 no-growth attempts", page.scrolls)
	}
}

func TestFillZeroURLs(t *testing.T) {
	page := &scriptedPage{batches: [][]string{{}}}
	f, _ := newTestFrontier(page, nil, 2)

	urls, err := f.Fill(context.Background(), 10)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if len(urls) != 0 {
		t.Fatalf("got %d urls, want 0", len(urls))
	}
}

func TestFillOverflowRoundTrip(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer s.Close()
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := urlstore.New(rdb, time.Hour)

	// 第一次运行：发现 4 个但只要 2 个，多出的进 overflow
	page := &scriptedPage{batches: [][]string{{
		"/companies/alpha", "/companies/beta", "/companies/gamma", "/companies/delta",
	}}}
	f, _ := newTestFrontier(page, store, 3)
	urls, err := f.Fill(context.Background(), 2)
	if err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("first fill got %d urls, want 2", len(urls))
	}

	// 第二次运行：overflow 里的 URL 优先被消费
	page2 := &scriptedPage{batches: [][]string{{}}}
	f2, _ := newTestFrontier(page2, store, 2)
	urls2, err := f2.Fill(context.Background(), 5)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted on second fill, got %v", err)
	}
	if len(urls2) != 2 {
		t.Fatalf("second fill got %v, want the 2 overflow urls", urls2)
	}
	if urls2[0] != "https://www.ycombinator.com/companies/gamma" {
		t.Errorf("overflow order lost: %v", urls2)
	}
}

func TestNormalizeCompanyURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		ok       bool
	}{
		{"relative", "/companies/airbyte", "https://www.ycombinator.com/companies/airbyte", true},
		{"absolute", "https://www.ycombinator.com/companies/airbyte", "https://www.ycombinator.com/companies/airbyte", true},
		{"query stripped", "/companies/airbyte?tab=jobs", "https://www.ycombinator.com/companies/airbyte", true},
		{"fragment stripped", "/companies/airbyte#team", "https://www.ycombinator.com/companies/airbyte", true},
		{"trailing slash", "/companies/airbyte/", "https://www.ycombinator.com/companies/airbyte", true},
		{"listing itself", "/companies", "", false},
		{"founders directory", "/companies/founders", "", false},
		{"founder profile", "/companies/founders/jane-doe", "", false},
		{"company starting with founders", "/companies/foundersuite", "https://www.ycombinator.com/companies/foundersuite", true},
		{"unrelated link", "/about", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalizeCompanyURL(tt.input)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("normalizeCompanyURL(%q) = (%q, %v), want (%q, %v)",
					tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}
