// 包 metrics：管线与 API 的 Prometheus 指标定义，集中注册避免散落
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionapi_runs_total",
		Help: "Total pipeline runs started",
	})
	RunFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionapi_run_failures_total",
		Help: "Total pipeline runs aborted by a structural error",
	})
	RunDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "regionapi_run_duration_ms",
		Help:    "Pipeline run duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 5000, 20000},
	})
	PointsResolvedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionapi_points_resolved_total",
		Help: "Total points matched to a region",
	})
	PointsUnmatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionapi_points_unmatched_total",
		Help: "Total valid points outside every region boundary",
	})
	PointsInvalidTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionapi_points_invalid_total",
		Help: "Total points rejected for non-finite or unparsable coordinates",
	})
	MergesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionapi_merges_total",
		Help: "Total attribute merges performed",
	})
	MergeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionapi_merge_failures_total",
		Help: "Total merges rejected (non-unique join key)",
	})
	BindsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionapi_binds_total",
		Help: "Total successful positional binds",
	})
	BindFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionapi_bind_failures_total",
		Help: "Total binds rejected (cardinality mismatch)",
	})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionapi_point_cache_hits_total",
		Help: "Total point resolutions served from cache",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionapi_point_cache_misses_total",
		Help: "Total point resolutions computed against geometry",
	})
	FeedRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionapi_feed_requests_total",
		Help: "Total remote event feed requests",
	})
	FeedFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionapi_feed_failures_total",
		Help: "Total remote event feed failures",
	})
	FeedDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "regionapi_feed_duration_ms",
		Help:    "Remote event feed call duration in milliseconds",
		Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000},
	})
)

// Register：将全部指标注册到默认注册表
// 约束：进程内仅调用一次；重复注册会 panic，交由启动路径保证
func Register() {
	prometheus.MustRegister(
		RunsTotal, RunFailuresTotal, RunDurationMs,
		PointsResolvedTotal, PointsUnmatchedTotal, PointsInvalidTotal,
		MergesTotal, MergeFailuresTotal,
		BindsTotal, BindFailuresTotal,
		CacheHitsTotal, CacheMissesTotal,
		FeedRequestsTotal, FeedFailuresTotal, FeedDurationMs,
	)
}

// Handler：暴露 /metrics 端点
func Handler() http.Handler {
	return promhttp.Handler()
}
