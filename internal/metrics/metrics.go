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
// サービス層・コメントツリー層から利用する。
type MetricsCollector interface {
	RecordStoryFetchSuccess(category string)
	RecordStoryFetchFailure(category string, reason string)
	RecordCacheHit(layer string)
	RecordCacheMiss(layer string)
	RecordCommentsLoaded(count int)
	RecordReplyRetry()
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
}

// キャッシュ層のラベル値。
const (
	CacheLayerRemoteStory   = "remote_story"   // リモートキャッシュ（ストーリー一覧）
	CacheLayerRemoteComment = "remote_comment" // リモートキャッシュ（コメント）
	CacheLayerStoreComment  = "store_comment"  // 永続ストア（24時間TTL）
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	storyFetchSuccess *prometheus.CounterVec
	storyFetchFail    *prometheus.CounterVec
	cacheHit          *prometheus.CounterVec
	cacheMiss         *prometheus.CounterVec
	commentsLoaded    prometheus.Counter
	replyRetries      prometheus.Counter
	httpStatus        *prometheus.CounterVec
	fetchLatency      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		storyFetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hackstack_story_fetch_success_total",
			Help: "カテゴリ別ストーリー一覧フェッチ成功の合計数",
		}, []string{"category"}),
		storyFetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hackstack_story_fetch_fail_total",
			Help: "カテゴリ別ストーリー一覧フェッチ失敗の合計数",
		}, []string{"category"}),
		cacheHit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hackstack_cache_hit_total",
			Help: "キャッシュ層別のヒット数",
		}, []string{"layer"}),
		cacheMiss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hackstack_cache_miss_total",
			Help: "キャッシュ層別のミス数",
		}, []string{"layer"}),
		commentsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hackstack_comments_loaded_total",
			Help: "ツリーにロードされたコメントの合計数",
		}),
		replyRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hackstack_reply_retry_total",
			Help: "返信展開のリトライ再投入の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hackstack_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hackstack_fetch_latency_seconds",
			Help:    "リモートAPIフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.storyFetchSuccess,
		c.storyFetchFail,
		c.cacheHit,
		c.cacheMiss,
		c.commentsLoaded,
		c.replyRetries,
		c.httpStatus,
		c.fetchLatency,
	)

	return c
}

// RecordStoryFetchSuccess はストーリー一覧フェッチ成功を記録する。
func (c *Collector) RecordStoryFetchSuccess(category string) {
	c.storyFetchSuccess.WithLabelValues(category).Inc()
}

// RecordStoryFetchFailure はストーリー一覧フェッチ失敗を記録する。
func (c *Collector) RecordStoryFetchFailure(category string, reason string) {
	c.storyFetchFail.WithLabelValues(category).Inc()
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit(layer string) {
	c.cacheHit.WithLabelValues(layer).Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss(layer string) {
	c.cacheMiss.WithLabelValues(layer).Inc()
}

// RecordCommentsLoaded はツリーにロードされたコメント数を記録する。
func (c *Collector) RecordCommentsLoaded(count int) {
	c.commentsLoaded.Add(float64(count))
}

// RecordReplyRetry は返信展開のリトライ再投入を記録する。
func (c *Collector) RecordReplyRetry() {
	c.replyRetries.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
