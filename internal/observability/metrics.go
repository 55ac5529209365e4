// Package observability は Prometheus メトリクスを提供します。
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics は認証まわりのカスタムメトリクスです。
// nil のまま使ってもパニックしません。
type Metrics struct {
	registry      *prometheus.Registry
	requestsTotal *prometheus.CounterVec
	sweptTotal    prometheus.Counter
}

// NewMetrics は専用レジストリを作成し、標準コレクタとカスタムメトリクスを登録します。
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_requests_total",
				Help: "Total number of authentication operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		sweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "auth_sessions_swept_total",
				Help: "Total number of expired sessions removed by the sweeper",
			},
		),
	}
	registry.MustRegister(m.requestsTotal, m.sweptTotal)
	return m
}

// Observe は操作の結果をカウントします。outcome は "ok" かエラーコードです。
func (m *Metrics) Observe(operation, outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(operation, outcome).Inc()
}

// AddSwept は掃除で削除したセッション数を加算します。
func (m *Metrics) AddSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptTotal.Add(float64(n))
}

// Handler は /metrics 用のハンドラを返します。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
