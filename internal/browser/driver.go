package browser

import (
	"context"
	"errors"
	"fmt"
)

// ErrDriverUnavailable 表示浏览器无法启动或已经不可用。
// 这是唯一会让整个运行进入 Aborted 的错误。
var ErrDriverUnavailable = errors.New("browser driver unavailable")

// NavigationError 表示导航失败（超时 / DNS / HTTP 层错误），属于可重试错误。
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// IsNavigationError 判断错误链中是否包含导航失败。
func IsNavigationError(err error) bool {
	var navErr *NavigationError
	return errors.As(err, &navErr)
}

// Driver 负责浏览器生命周期与页面分配。
//
// 管道只依赖这个抽象：生产实现由 rod 驱动真实浏览器，
// 测试中用桩实现统计并发打开的页面数。
type Driver interface {
	// OpenPage 打开一个新页面（标签页）。调用方必须在所有退出路径上 Close。
	OpenPage(ctx context.Context) (Page, error)
	// Close 关闭浏览器实例。
	Close() error
}

// Page 是单个页面上的操作能力。
type Page interface {
	// Navigate 导航到 URL 并等待加载，失败返回 *NavigationError。
	Navigate(ctx context.Context, url string) error
	// WaitVisible 等待选择器命中的首个元素出现。
	WaitVisible(ctx context.Context, selector string) error
	// Scroll 向下滚动一屏，触发懒加载。
	Scroll(ctx context.Context) error
	// ElementText 返回选择器命中的首个元素的文本。
	ElementText(ctx context.Context, selector string) (string, error)
	// ElementTexts 返回选择器命中的所有元素的文本。
	ElementTexts(ctx context.Context, selector string) ([]string, error)
	// AttributeValues 返回选择器命中的所有元素的指定属性值（缺失属性的元素被跳过）。
	AttributeValues(ctx context.Context, selector, attr string) ([]string, error)
	// Close 关闭页面。
	Close() error
}
