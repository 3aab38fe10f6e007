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
// リクエストパイプラインやセッション層から利用する。
type MetricsCollector interface {
	RecordRequest(outcome string)
	RecordHTTPStatus(statusCode int)
	RecordLatency(duration time.Duration)
	RecordRefresh(result string)
	RecordSessionEnded(reason string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	requests     *prometheus.CounterVec
	httpStatus   *prometheus.CounterVec
	latency      prometheus.Histogram
	refresh      *prometheus.CounterVec
	sessionEnded *prometheus.CounterVec
	loans        *prometheus.GaugeVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfman_api_requests_total",
			Help: "結果種別ごとのAPI呼び出し数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfman_api_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shelfman_api_latency_seconds",
			Help:    "API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfman_token_refresh_total",
			Help: "トークンリフレッシュの結果別回数",
		}, []string{"result"}),
		sessionEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfman_session_ended_total",
			Help: "理由別のセッション終了回数",
		}, []string{"reason"}),
		loans: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shelfman_loans",
			Help: "状態別の借用中の記録数（最後の確認時点）",
		}, []string{"state"}),
	}

	reg.MustRegister(
		c.requests,
		c.httpStatus,
		c.latency,
		c.refresh,
		c.sessionEnded,
		c.loans,
	)

	return c
}

// RecordRequest はAPI呼び出しの結果種別を記録する。
func (c *Collector) RecordRequest(outcome string) {
	c.requests.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordLatency はAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordLatency(duration time.Duration) {
	c.latency.Observe(duration.Seconds())
}

// RecordRefresh はトークンリフレッシュの結果を記録する。
func (c *Collector) RecordRefresh(result string) {
	c.refresh.WithLabelValues(result).Inc()
}

// RecordSessionEnded はセッション終了を記録する。
func (c *Collector) RecordSessionEnded(reason string) {
	c.sessionEnded.WithLabelValues(reason).Inc()
}

// RecordLoanStates は借用記録の状態別件数を記録する。
func (c *Collector) RecordLoanStates(borrowing, overdue, dueSoon int) {
	c.loans.WithLabelValues("borrowing").Set(float64(borrowing))
	c.loans.WithLabelValues("overdue").Set(float64(overdue))
	c.loans.WithLabelValues("due_soon").Set(float64(dueSoon))
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordRequest(string)        {}
func (Nop) RecordHTTPStatus(int)        {}
func (Nop) RecordLatency(time.Duration) {}
func (Nop) RecordRefresh(string)        {}
func (Nop) RecordSessionEnded(string)   {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
