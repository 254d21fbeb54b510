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
// フィードサービス、キャッシュ、ワーカー、HTTP層から利用する。
type MetricsCollector interface {
	RecordFeedRequest(result string, duration time.Duration)
	RecordFeedSlice(slice string, size int)
	RecordFeedFallback()
	RecordCountCache(result string, n int)
	RecordReactionEvent(result string)
	RecordLikesPurged(count int64)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	feedRequests   *prometheus.CounterVec
	feedLatency    prometheus.Histogram
	feedSlice      *prometheus.HistogramVec
	feedFallback   prometheus.Counter
	countCache     *prometheus.CounterVec
	reactionEvents *prometheus.CounterVec
	likesPurged    prometheus.Counter
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialfeed_feed_requests_total",
			Help: "フィード取得リクエストの結果別合計数",
		}, []string{"result"}),
		feedLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "socialfeed_feed_latency_seconds",
			Help:    "フィード1ページの組み立てにかかった時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		feedSlice: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "socialfeed_feed_slice_size",
			Help:    "フォロー中/推薦スライスごとの取得件数",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}, []string{"slice"}),
		feedFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialfeed_feed_fallback_total",
			Help: "フォロー中フィードが空で推薦検索窓を広げた回数",
		}),
		countCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialfeed_count_cache_total",
			Help: "カウントキャッシュ参照の結果別件数",
		}, []string{"result"}),
		reactionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialfeed_reaction_events_total",
			Help: "受信したリアクションイベントの処理結果別件数",
		}, []string{"result"}),
		likesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialfeed_likes_purged_total",
			Help: "クリーンアップで削除された無効ないいねの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialfeed_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.feedRequests,
		c.feedLatency,
		c.feedSlice,
		c.feedFallback,
		c.countCache,
		c.reactionEvents,
		c.likesPurged,
		c.httpStatus,
	)

	return c
}

// RecordFeedRequest はフィード取得の結果とレイテンシを記録する。
func (c *Collector) RecordFeedRequest(result string, duration time.Duration) {
	c.feedRequests.WithLabelValues(result).Inc()
	c.feedLatency.Observe(duration.Seconds())
}

// RecordFeedSlice はスライスの取得件数を記録する。
func (c *Collector) RecordFeedSlice(slice string, size int) {
	c.feedSlice.WithLabelValues(slice).Observe(float64(size))
}

// RecordFeedFallback はフォールバック検索窓の使用を記録する。
func (c *Collector) RecordFeedFallback() {
	c.feedFallback.Inc()
}

// RecordCountCache はカウントキャッシュの参照結果をn件分記録する。
func (c *Collector) RecordCountCache(result string, n int) {
	c.countCache.WithLabelValues(result).Add(float64(n))
}

// RecordReactionEvent はリアクションイベントの処理結果を記録する。
func (c *Collector) RecordReactionEvent(result string) {
	c.reactionEvents.WithLabelValues(result).Inc()
}

// RecordLikesPurged は削除されたいいね数を記録する。
func (c *Collector) RecordLikesPurged(count int64) {
	c.likesPurged.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
