package extract

import (
	"context"
	"fmt"
	"strings"

	"founderhunter/internal/browser"
	"founderhunter/internal/model"
)

// ErrorKind 提取错误分类。
type ErrorKind int

const (
	KindNotFound  ErrorKind = iota // 关键元素不存在（页面未渲染或结构变化）
	KindMalformed                  // 元素存在但内容无法解析
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error 表示一次可重试的提取失败。
type Error struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s (%s): %v", e.Field, e.Kind, e.Err)
	}
	return fmt.Sprintf("extract %s (%s)", e.Field, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Func 是管道消费的提取能力：给定一个已导航的页面，产出 Record 或失败。
type Func func(ctx context.Context, page browser.Page) (*model.Record, error)

// 公司详情页的选择器。
const (
	nameSelector        = "h1"
	batchSelector       = `a[href*="batch="]`
	descriptionSelector = "p.whitespace-pre-line, div.text-xl"
	founderTileSelector = "div.font-bold, h3"
	founderLinkSelector = `a[href*="linkedin.com/in/"]`
)

// 缺失字段的占位值。
const placeholder = "N/A"

// navWords 详情页上会以粗体出现、但不是人名的导航词。
var navWords = map[string]struct{}{
	"Founders": {},
	"Jobs":     {},
	"Blog":     {},
	"Team":     {},
	"Company":  {},
	"Launch":   {},
	"News":     {},
}

// Company 是默认的公司详情页提取器。
//
// 公司名是唯一的硬性要求：h1 缺失视为 KindNotFound 并触发重试。
// 其余字段尽力而为，缺失时落为 "N/A" 或空列表。
type Company struct{}

// NewCompany 创建公司详情页提取器。
func NewCompany() *Company {
	return &Company{}
}

// Extract 从加载好的详情页提取一条 Record。
func (c *Company) Extract(ctx context.Context, page browser.Page) (*model.Record, error) {
	if err := page.WaitVisible(ctx, nameSelector); err != nil {
		return nil, &Error{Kind: KindNotFound, Field: "name", Err: err}
	}

	name, err := page.ElementText(ctx, nameSelector)
	if err != nil {
		return nil, &Error{Kind: KindNotFound, Field: "name", Err: err}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &Error{Kind: KindMalformed, Field: "name"}
	}

	batch := placeholder
	if txt, err := page.ElementText(ctx, batchSelector); err == nil {
		if cleaned := strings.TrimSpace(txt); cleaned != "" {
			batch = cleaned
		}
	}

	description := placeholder
	if txt, err := page.ElementText(ctx, descriptionSelector); err == nil {
		if cleaned := strings.TrimSpace(txt); cleaned != "" {
			description = cleaned
		}
	}

	var founderNames []string
	if tiles, err := page.ElementTexts(ctx, founderTileSelector); err == nil {
		founderNames = FilterFounderNames(tiles)
	}

	var founderLinks []string
	if hrefs, err := page.AttributeValues(ctx, founderLinkSelector, "href"); err == nil {
		founderLinks = CleanProfileLinks(hrefs)
	}

	return &model.Record{
		Name:         name,
		Batch:        batch,
		Description:  description,
		FounderNames: founderNames,
		FounderLinks: founderLinks,
	}, nil
}

// FilterFounderNames 从粗体文本块中筛出疑似人名：1-3 个词、
// 不是导航词、不含数字。顺序保持页面出现顺序，重复项去除。
func FilterFounderNames(texts []string) []string {
	names := make([]string, 0, len(texts))
	seen := make(map[string]struct{}, len(texts))
	for _, txt := range texts {
		candidate := strings.TrimSpace(txt)
		if !isLikelyPersonName(candidate) {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		names = append(names, candidate)
	}
	return names
}

func isLikelyPersonName(s string) bool {
	if s == "" {
		return false
	}
	if _, nav := navWords[s]; nav {
		return false
	}
	words := strings.Fields(s)
	if len(words) < 1 || len(words) > 3 {
		return false
	}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return false
		}
	}
	return true
}

// CleanProfileLinks 规整 LinkedIn 链接：去掉查询串与末尾斜杠，去重。
func CleanProfileLinks(hrefs []string) []string {
	links := make([]string, 0, len(hrefs))
	seen := make(map[string]struct{}, len(hrefs))
	for _, href := range hrefs {
		cleaned := CleanProfileLink(href)
		if cleaned == "" {
			continue
		}
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		links = append(links, cleaned)
	}
	return links
}

// CleanProfileLink 清理单个链接。
func CleanProfileLink(href string) string {
	cleaned := strings.TrimSpace(href)
	if cleaned == "" {
		return ""
	}
	if idx := strings.IndexByte(cleaned, '?'); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	return strings.TrimRight(cleaned, "/")
}
