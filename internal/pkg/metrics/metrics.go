package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 爬取相关指标。
var (
	BrowserInstances = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "founderhunter_browser_instances",
		Help: "Number of running browser instances.",
	})

	PagesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "founderhunter_pages_active",
		Help: "Pages currently open in the browser.",
	})

	PagesOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "founderhunter_pages_opened_total",
		Help: "Total pages opened since start.",
	})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "founderhunter_fetch_duration_seconds",
		Help:    "Duration of a single fetch-and-extract attempt.",
		Buckets: prometheus.DefBuckets,
	})

	FetchRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "founderhunter_fetch_retries_total",
		Help: "Total retry attempts across all URLs.",
	})

	FetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "founderhunter_fetch_failures_total",
		Help: "URLs dropped after exhausting retries, by error kind.",
	}, []string{"kind"})

	ScrollAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "founderhunter_scroll_attempts_total",
		Help: "Scroll actions issued during discovery.",
	})
)

// 检查点相关指标。
var (
	CheckpointFlushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "founderhunter_checkpoint_flushes_total",
		Help: "Successful partial flushes.",
	})

	CheckpointFlushErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "founderhunter_checkpoint_flush_errors_total",
		Help: "Failed partial flushes (buffer retained).",
	})
)

// 进度指标（由 pipeline monitor 周期性刷新）。
var (
	URLsDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "founderhunter_urls_discovered",
		Help: "Unique detail-page URLs discovered in this run.",
	})

	RecordsCompleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "founderhunter_records_completed",
		Help: "Records completed in this run.",
	})

	URLsFailed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "founderhunter_urls_failed",
		Help: "URLs given up after exhausting retries in this run.",
	})
)
