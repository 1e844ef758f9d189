package checkpoint

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"founderhunter/internal/model"
	"founderhunter/internal/pkg/metrics"
)

const partialFileName = "founders_partial.csv"

var csvHeader = []string{"Company Name", "Batch", "Description", "Founder Names", "Founder LinkedIn URLs"}

// Writer 负责记录的落盘：每满 batchSize 条追加写一次部分文件，
// 运行结束时写一个带时间戳的自包含最终导出。
//
// 部分落盘失败是非致命的：缓冲区保留，下次触发或最终导出时重试。
// 多个 worker 并发调用 Accept，所有可变状态由互斥锁保护。
type Writer struct {
	mu             sync.Mutex
	buf            []model.Record // 未落盘的批次缓冲
	all            []model.Record // 本次运行的全部记录
	batchSize      int
	dir            string
	logger         *slog.Logger
	partialFlushes int
}

// NewWriter 创建检查点写入器并确保输出目录存在。
func NewWriter(dir string, batchSize int, logger *slog.Logger) (*Writer, error) {
	if batchSize < 1 {
		batchSize = 50
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{
		buf:       make([]model.Record, 0, batchSize),
		batchSize: batchSize,
		dir:       dir,
		logger:    logger,
	}, nil
}

// Accept 接收一条完成的记录（到达顺序，不要求与 URL 顺序一致）。
// 缓冲达到 batchSize 时触发部分落盘。
func (w *Writer) Accept(rec model.Record) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.all = append(w.all, rec)
	w.buf = append(w.buf, rec)

	if len(w.buf) >= w.batchSize {
		if err := w.flushPartialLocked(); err != nil {
			metrics.CheckpointFlushErrorsTotal.Inc()
			w.logger.Warn("partial flush failed, buffer retained",
				slog.Int("buffered", len(w.buf)),
				slog.String("error", err.Error()))
		}
	}
}

// flushPartialLocked 追加写部分文件并清空缓冲。必须持有 w.mu 调用。
// 任何失败路径都不清空缓冲。
func (w *Writer) flushPartialLocked() error {
	path := filepath.Join(w.dir, partialFileName)

	writeHeader := true
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		writeHeader = false
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open partial file: %w", err)
	}

	cw := csv.NewWriter(f)
	if writeHeader {
		if err := cw.Write(csvHeader); err != nil {
			_ = f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, rec := range w.buf {
		if err := cw.Write(recordRow(rec)); err != nil {
			_ = f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close partial file: %w", err)
	}

	flushed := len(w.buf)
	w.buf = w.buf[:0]
	w.partialFlushes++
	metrics.CheckpointFlushesTotal.Inc()
	w.logger.Info("partial checkpoint flushed",
		slog.Int("records", flushed),
		slog.String("path", path))
	return nil
}

// FinalExport 把本次运行的全部记录写入一个带时间戳的独立文件。
// 最终文件自包含，不依赖之前的部分文件。返回导出路径。
func (w *Writer) FinalExport() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 滞留的缓冲最后再试一次，失败不阻塞最终导出
	if len(w.buf) > 0 {
		if err := w.flushPartialLocked(); err != nil {
			metrics.CheckpointFlushErrorsTotal.Inc()
			w.logger.Warn("final partial flush failed",
				slog.String("error", err.Error()))
		}
	}

	name := fmt.Sprintf("founders_%s.csv", time.Now().Format("20060102_150405"))
	path := filepath.Join(w.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, rec := range w.all {
		if err := cw.Write(recordRow(rec)); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}

	w.logger.Info("final export written",
		slog.Int("records", len(w.all)),
		slog.String("path", path))
	return path, nil
}

// Records 返回已接收记录的快照。
func (w *Writer) Records() []model.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.Record, len(w.all))
	copy(out, w.all)
	return out
}

// PartialFlushes 返回成功的部分落盘次数。
func (w *Writer) PartialFlushes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.partialFlushes
}

func recordRow(rec model.Record) []string {
	return []string{
		rec.Name,
		rec.Batch,
		rec.Description,
		strings.Join(rec.FounderNames, "; "),
		strings.Join(rec.FounderLinks, "; "),
	}
}
