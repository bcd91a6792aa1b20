// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 各サービスとワーカーは必要なメソッドだけを持つ小さなインターフェースで受け取る。
type MetricsCollector interface {
	RecordModerationDecision(kind, decision string)
	RecordApplicationCreated()
	RecordFeedFetch(outcome string)
	RecordFeedHTTPStatus(statusCode int)
	RecordFeedFetchLatency(duration time.Duration)
	RecordJobsImported(count int)
	RecordJobsExpired(count int64)
}

// フィードフェッチの結果ラベル
const (
	FetchOutcomeSuccess      = "success"
	FetchOutcomeNotModified  = "not_modified"
	FetchOutcomeFailure      = "failure"
	FetchOutcomeParseFailure = "parse_failure"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	moderationDecisions *prometheus.CounterVec
	applicationsCreated prometheus.Counter
	feedFetches         *prometheus.CounterVec
	feedHTTPStatus      *prometheus.CounterVec
	feedFetchLatency    prometheus.Histogram
	jobsImported        prometheus.Counter
	jobsExpired         prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		moderationDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobbridge_moderation_decisions_total",
			Help: "種別・判定別のモデレーション判定数",
		}, []string{"kind", "decision"}),
		applicationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobbridge_applications_created_total",
			Help: "受け付けた応募の合計数",
		}),
		feedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobbridge_feed_fetch_total",
			Help: "結果別の採用フィードフェッチ数",
		}, []string{"outcome"}),
		feedHTTPStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobbridge_feed_http_status_total",
			Help: "採用フィードのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		feedFetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobbridge_feed_fetch_latency_seconds",
			Help:    "採用フィードフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		jobsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobbridge_jobs_imported_total",
			Help: "採用フィードから取り込んだ求人の合計数",
		}),
		jobsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobbridge_jobs_expired_total",
			Help: "締切によりクローズした求人の合計数",
		}),
	}

	reg.MustRegister(
		c.moderationDecisions,
		c.applicationsCreated,
		c.feedFetches,
		c.feedHTTPStatus,
		c.feedFetchLatency,
		c.jobsImported,
		c.jobsExpired,
	)

	return c
}

// RecordModerationDecision はモデレーション判定を記録する。
func (c *Collector) RecordModerationDecision(kind, decision string) {
	c.moderationDecisions.WithLabelValues(kind, decision).Inc()
}

// RecordApplicationCreated は応募の受付を記録する。
func (c *Collector) RecordApplicationCreated() {
	c.applicationsCreated.Inc()
}

// RecordFeedFetch はフィードフェッチの結果を記録する。
func (c *Collector) RecordFeedFetch(outcome string) {
	c.feedFetches.WithLabelValues(outcome).Inc()
}

// RecordFeedHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordFeedHTTPStatus(statusCode int) {
	c.feedHTTPStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFeedFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFeedFetchLatency(duration time.Duration) {
	c.feedFetchLatency.Observe(duration.Seconds())
}

// RecordJobsImported は取り込んだ求人数を記録する。
func (c *Collector) RecordJobsImported(count int) {
	c.jobsImported.Add(float64(count))
}

// RecordJobsExpired は締切でクローズした求人数を記録する。
func (c *Collector) RecordJobsExpired(count int64) {
	c.jobsExpired.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカープロセスのスクレイプ用に単独で起動する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
