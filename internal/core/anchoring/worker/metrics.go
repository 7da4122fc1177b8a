package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 提交结果标签
const (
	resultAnchored        = "anchored"
	resultAlreadyAnchored = "already_anchored"
	resultRetry           = "retry"
	resultFailedPermanent = "failed_permanent"
)

// Metrics 工作器 Prometheus 指标
type Metrics struct {
	submissions  *prometheus.CounterVec
	ticks        *prometheus.CounterVec
	tickDuration prometheus.Histogram
	pending      prometheus.Gauge
}

// NewMetrics 在 reg 上注册工作器指标，reg 为 nil 时只创建不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "anchoring",
			Name:      "submissions_total",
			Help:      "Batch anchoring outcomes by result.",
		}, []string{"result"}),
		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidence",
			Subsystem: "anchoring",
			Name:      "ticks_total",
			Help:      "Worker ticks by outcome (ran or skipped because another tick was in progress).",
		}, []string{"outcome"}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "evidence",
			Subsystem: "anchoring",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a worker tick in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "evidence",
			Subsystem: "anchoring",
			Name:      "pending_batches",
			Help:      "Batches still pending after the last tick.",
		}),
	}
}
