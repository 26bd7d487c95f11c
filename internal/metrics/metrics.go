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
// サービス層から利用する。
type MetricsCollector interface {
	RecordCheckoutSuccess()
	RecordCheckoutFailure(step string)
	RecordCheckoutCompensation(refunded bool)
	RecordCheckoutLatency(duration time.Duration)
	RecordCatalogStatus(statusCode int)
	RecordExecutionStarted()
	RecordExecutionCompleted()
	RecordExecutionAbandoned()
	RecordKeypointReached()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	checkoutSuccess      prometheus.Counter
	checkoutFail         *prometheus.CounterVec
	checkoutCompensation *prometheus.CounterVec
	checkoutLatency      prometheus.Histogram
	catalogStatus        *prometheus.CounterVec
	executionStarted     prometheus.Counter
	executionCompleted   prometheus.Counter
	executionAbandoned   prometheus.Counter
	keypointReached      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checkoutSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tourman_checkout_success_total",
			Help: "チェックアウト成功の合計数",
		}),
		checkoutFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourman_checkout_fail_total",
			Help: "チェックアウト失敗のステップ別合計数",
		}, []string{"step"}),
		checkoutCompensation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourman_checkout_compensation_total",
			Help: "補償アクション（返金）実行の結果別合計数",
		}, []string{"refunded"}),
		checkoutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tourman_checkout_latency_seconds",
			Help:    "チェックアウト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		catalogStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourman_catalog_status_total",
			Help: "カタログサービスのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		executionStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tourman_execution_started_total",
			Help: "開始されたツアー実行セッションの合計数",
		}),
		executionCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tourman_execution_completed_total",
			Help: "完了したツアー実行セッションの合計数",
		}),
		executionAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tourman_execution_abandoned_total",
			Help: "中断されたツアー実行セッションの合計数",
		}),
		keypointReached: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tourman_keypoint_reached_total",
			Help: "到達が記録されたキーポイントの合計数",
		}),
	}

	reg.MustRegister(
		c.checkoutSuccess,
		c.checkoutFail,
		c.checkoutCompensation,
		c.checkoutLatency,
		c.catalogStatus,
		c.executionStarted,
		c.executionCompleted,
		c.executionAbandoned,
		c.keypointReached,
	)

	return c
}

// RecordCheckoutSuccess はチェックアウト成功を記録する。
func (c *Collector) RecordCheckoutSuccess() {
	c.checkoutSuccess.Inc()
}

// RecordCheckoutFailure はチェックアウト失敗を失敗ステップとともに記録する。
func (c *Collector) RecordCheckoutFailure(step string) {
	c.checkoutFail.WithLabelValues(step).Inc()
}

// RecordCheckoutCompensation は補償アクションの実行結果を記録する。
func (c *Collector) RecordCheckoutCompensation(refunded bool) {
	c.checkoutCompensation.WithLabelValues(strconv.FormatBool(refunded)).Inc()
}

// RecordCheckoutLatency はチェックアウトのレイテンシを記録する。
func (c *Collector) RecordCheckoutLatency(duration time.Duration) {
	c.checkoutLatency.Observe(duration.Seconds())
}

// RecordCatalogStatus はカタログサービスのHTTPステータスコードを記録する。
func (c *Collector) RecordCatalogStatus(statusCode int) {
	c.catalogStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordExecutionStarted はセッション開始を記録する。
func (c *Collector) RecordExecutionStarted() {
	c.executionStarted.Inc()
}

// RecordExecutionCompleted はセッション完了を記録する。
func (c *Collector) RecordExecutionCompleted() {
	c.executionCompleted.Inc()
}

// RecordExecutionAbandoned はセッション中断を記録する。
func (c *Collector) RecordExecutionAbandoned() {
	c.executionAbandoned.Inc()
}

// RecordKeypointReached はキーポイント到達を記録する。
func (c *Collector) RecordKeypointReached() {
	c.keypointReached.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
