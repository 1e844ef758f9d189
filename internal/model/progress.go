package model

import "sync/atomic"

// Progress 管道进度计数器。
//
// 由各组件通过指针共享，全部使用原子操作，没有全局单例。
type Progress struct {
	Discovered atomic.Int64 // Phase 1 发现的 URL 数
	Completed  atomic.Int64 // 成功产出的 Record 数
	Failed     atomic.Int64 // 重试耗尽的 URL 数
	Retries    atomic.Int64 // 累计重试次数
}

// ProgressSnapshot 进度计数器快照。
type ProgressSnapshot struct {
	Discovered int64 `json:"discovered"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Retries    int64 `json:"retries"`
}

// Snapshot 返回当前进度的一致性快照（各字段独立读取，仅用于展示）。
func (p *Progress) Snapshot() ProgressSnapshot {
	return ProgressSnapshot{
		Discovered: p.Discovered.Load(),
		Completed:  p.Completed.Load(),
		Failed:     p.Failed.Load(),
		Retries:    p.Retries.Load(),
	}
}

// State 管道状态机的状态。
type State int32

const (
	StateInit State = iota
	StateDiscovering
	StateExtracting
	StateExporting
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDiscovering:
		return "discovering"
	case StateExtracting:
		return "extracting"
	case StateExporting:
		return "exporting"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
