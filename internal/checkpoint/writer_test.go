package checkpoint

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"founderhunter/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func makeRecord(i int) model.Record {
	return model.Record{
		Name:         fmt.Sprintf("Company %d", i),
		Batch:        "W21",
		Description:  "Builds things",
		FounderNames: []string{"Jane Doe", "John Smith"},
		FounderLinks: []string{"https://www.linkedin.com/in/jane"},
		SourceURL:    fmt.Sprintf("https://www.ycombinator.com/companies/co-%d", i),
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestWriterBatchFlush(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 50, testLogger())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	for i := 0; i < 120; i++ {
		w.Accept(makeRecord(i))
	}

	if got := w.PartialFlushes(); got != 2 {
		t.Fatalf("partial flushes = %d, want 2 (120 records / batch 50)", got)
	}

	rows := readCSV(t, filepath.Join(dir, partialFileName))
	// 表头 + 两批各 50 条，剩下 20 条还在缓冲里
	if len(rows) != 101 {
		t.Fatalf("partial file has %d rows, want 101", len(rows))
	}
	if rows[0][0] != "Company Name" {
		t.Errorf("header row = %v", rows[0])
	}
	if rows[1][3] != "Jane Doe; John Smith" {
		t.Errorf("founder names column = %q, want semicolon joined", rows[1][3])
	}
}

func TestWriterFinalExport(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 50, testLogger())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	for i := 0; i < 120; i++ {
		w.Accept(makeRecord(i))
	}

	path, err := w.FinalExport()
	if err != nil {
		t.Fatalf("final export: %v", err)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "founders_") || !strings.HasSuffix(base, ".csv") || base == partialFileName {
		t.Errorf("export file name %q not timestamped", base)
	}

	rows := readCSV(t, path)
	if len(rows) != 121 {
		t.Fatalf("export has %d rows, want header + 120 records", len(rows))
	}

	// 残留的 20 条在导出前被追加进部分文件
	partial := readCSV(t, filepath.Join(dir, partialFileName))
	if len(partial) != 121 {
		t.Errorf("partial file has %d rows after export, want 121", len(partial))
	}
}

func TestWriterFlushFailureRetainsBuffer(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 2, testLogger())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	// 让部分文件路径变成目录，追加写必然失败
	if err := os.Mkdir(filepath.Join(dir, partialFileName), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	w.Accept(makeRecord(0))
	w.Accept(makeRecord(1))

	if got := w.PartialFlushes(); got != 0 {
		t.Fatalf("partial flushes = %d, want 0 after failed flush", got)
	}
	if got := len(w.Records()); got != 2 {
		t.Fatalf("records = %d, want 2 kept despite flush failure", got)
	}
}

func TestWriterConcurrentAccept(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 10, testLogger())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				w.Accept(makeRecord(base*25 + i))
			}
		}(g)
	}
	wg.Wait()

	if got := len(w.Records()); got != 200 {
		t.Fatalf("records = %d, want 200", got)
	}
	if got := w.PartialFlushes(); got != 20 {
		t.Fatalf("partial flushes = %d, want 20", got)
	}

	path, err := w.FinalExport()
	if err != nil {
		t.Fatalf("final export: %v", err)
	}
	rows := readCSV(t, path)
	if len(rows) != 201 {
		t.Fatalf("export has %d rows, want 201", len(rows))
	}
}
