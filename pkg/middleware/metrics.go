package middleware

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsNamespace は全メトリクス共通の名前空間。
const metricsNamespace = "headline"

// Metrics はミドルウェアが記録するPrometheusメトリクス。
type Metrics struct {
	// authRejections は理由ごとの認証拒否数。
	authRejections *prometheus.CounterVec
	// authValidations は検証結果ごとのトークン検証数。
	authValidations *prometheus.CounterVec
	// requestDuration はゲートウェイで転送したリクエストの処理時間。
	requestDuration *prometheus.HistogramVec
	// scopeBindings は下流サービスでのIdentity束縛数（bound/anonymous）。
	scopeBindings *prometheus.CounterVec
	// scopesActive は現在使用中の実行単位の数。
	scopesActive prometheus.Gauge
	// panicsRecovered は回復したパニックの数。
	panicsRecovered prometheus.Counter
}

var (
	sharedMetrics     *Metrics
	sharedMetricsOnce sync.Once
)

// GetMetrics はプロセス共通のMetricsを返す。
// デフォルトレジストリへの登録は1度だけ行われる。
func GetMetrics() *Metrics {
	sharedMetricsOnce.Do(func() {
		sharedMetrics = newMetrics()
	})
	return sharedMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		authRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "gateway",
				Name:      "auth_rejections_total",
				Help:      "Total number of requests rejected by the gateway auth filter",
			},
			[]string{"reason"},
		),
		authValidations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "gateway",
				Name:      "token_validations_total",
				Help:      "Total number of token validations by result",
			},
			[]string{"result"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "End-to-end duration of forwarded requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
		scopeBindings: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "reqctx",
				Name:      "bindings_total",
				Help:      "Total number of request scopes by identity binding outcome",
			},
			[]string{"outcome"},
		),
		scopesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "reqctx",
				Name:      "active_scopes",
				Help:      "Number of request scopes currently held by handlers",
			},
		),
		panicsRecovered: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "middleware",
				Name:      "panics_recovered_total",
				Help:      "Total number of panics recovered",
			},
		),
	}
}
