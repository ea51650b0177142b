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
// ミドルウェアや予測フロー、カタログクライアントから利用する。
type MetricsCollector interface {
	RecordGateDecision(class, decision string)
	RecordVerifyFailure(reason string)
	RecordPredictOutcome(outcome string)
	RecordPredictLatency(duration time.Duration)
	PredictStarted()
	PredictFinished()
	RecordUpstreamFailure(resource, reason string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	gateDecisions    *prometheus.CounterVec
	verifyFailures   *prometheus.CounterVec
	predictOutcomes  *prometheus.CounterVec
	predictLatency   prometheus.Histogram
	predictInFlight  prometheus.Gauge
	upstreamFailures *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "souvenir_gate_decisions_total",
			Help: "ルート分類・判定結果別のゲート判定数",
		}, []string{"class", "decision"}),
		verifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "souvenir_verify_failures_total",
			Help: "失敗理由別のトークン検証失敗数",
		}, []string{"reason"}),
		predictOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "souvenir_predict_outcomes_total",
			Help: "結果別の画像分類リクエスト数",
		}, []string{"outcome"}),
		predictLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "souvenir_predict_latency_seconds",
			Help:    "画像分類リクエストのレイテンシ（秒）",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}),
		predictInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "souvenir_predict_in_flight",
			Help: "処理中の画像分類リクエスト数",
		}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "souvenir_upstream_failures_total",
			Help: "リソース・失敗理由別のドメインAPI呼び出し失敗数",
		}, []string{"resource", "reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "souvenir_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.gateDecisions,
		c.verifyFailures,
		c.predictOutcomes,
		c.predictLatency,
		c.predictInFlight,
		c.upstreamFailures,
		c.httpStatus,
	)

	return c
}

// RecordGateDecision はゲートの判定結果を記録する。
func (c *Collector) RecordGateDecision(class, decision string) {
	c.gateDecisions.WithLabelValues(class, decision).Inc()
}

// RecordVerifyFailure はトークン検証の失敗を理由別に記録する。
func (c *Collector) RecordVerifyFailure(reason string) {
	c.verifyFailures.WithLabelValues(reason).Inc()
}

// RecordPredictOutcome は画像分類の結果を記録する。
func (c *Collector) RecordPredictOutcome(outcome string) {
	c.predictOutcomes.WithLabelValues(outcome).Inc()
}

// RecordPredictLatency は画像分類のレイテンシを記録する。
func (c *Collector) RecordPredictLatency(duration time.Duration) {
	c.predictLatency.Observe(duration.Seconds())
}

// PredictStarted は処理中の画像分類数を1増やす。
func (c *Collector) PredictStarted() {
	c.predictInFlight.Inc()
}

// PredictFinished は処理中の画像分類数を1減らす。
func (c *Collector) PredictFinished() {
	c.predictInFlight.Dec()
}

// RecordUpstreamFailure はドメインAPI呼び出しの失敗を記録する。
func (c *Collector) RecordUpstreamFailure(resource, reason string) {
	c.upstreamFailures.WithLabelValues(resource, reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクスを使わない呼び出し元で使用する。
type Nop struct{}

func (Nop) RecordGateDecision(string, string)    {}
func (Nop) RecordVerifyFailure(string)           {}
func (Nop) RecordPredictOutcome(string)          {}
func (Nop) RecordPredictLatency(time.Duration)   {}
func (Nop) PredictStarted()                      {}
func (Nop) PredictFinished()                     {}
func (Nop) RecordUpstreamFailure(string, string) {}
func (Nop) RecordHTTPStatus(int)                 {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
