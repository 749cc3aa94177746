package stats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rushteam/learnkit/core"
)

// PrometheusCollector 把 finish_example 的结果导出为 Prometheus 指标。
type PrometheusCollector struct {
	examples *prometheus.CounterVec
	lossSum  prometheus.Counter
	loss     prometheus.Histogram
}

// NewPrometheusCollector 在 reg 上注册指标；reg 为 nil 时使用默认 registerer。
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusCollector{
		examples: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "learnkit_examples_total",
			Help: "Examples finished, partitioned by whether the label was a test label",
		}, []string{"test"}),
		lossSum: factory.NewCounter(prometheus.CounterOpts{
			Name: "learnkit_loss_sum",
			Help: "Weighted loss accumulated over labeled examples",
		}),
		loss: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "learnkit_example_loss",
			Help:    "Per-example weighted loss of labeled examples",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 0.001 ~ 262
		}),
	}
}

func (p *PrometheusCollector) Report(o core.Outcome) {
	p.examples.WithLabelValues(strconv.FormatBool(o.Test)).Inc()
	if o.Test || o.Loss < 0 {
		return
	}
	p.lossSum.Add(float64(o.Loss))
	p.loss.Observe(float64(o.Loss))
}
