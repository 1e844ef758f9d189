package model

// Record 表示从一个公司详情页抓取到的结构化信息。
//
// FounderNames 与 FounderLinks 不要求等长：提取是尽力而为的，
// 缺少 LinkedIn 链接的创始人是合法状态。Record 一旦产生即不可变。
type Record struct {
	Name         string   // 公司名称
	Batch        string   // 批次标签（如 "W21"），缺失时为 "N/A"
	Description  string   // 简介，缺失时为 "N/A"
	FounderNames []string // 创始人姓名列表
	FounderLinks []string // 创始人 LinkedIn 链接列表
	SourceURL    string   // 详情页 URL
}

// FailedURL 记录一个重试耗尽后被放弃的详情页。
type FailedURL struct {
	URL      string // 详情页 URL
	Kind     string // 最后一次错误的分类 (navigation / extract_not_found / ...)
	Attempts int    // 实际尝试次数
	LastErr  string // 最后一次错误信息
}
