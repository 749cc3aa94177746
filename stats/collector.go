// Package stats 汇总 finish_example 上报的结果：平均损失、样本计数与特征数。
package stats

import (
	"sync"

	"go.uber.org/zap"

	"github.com/rushteam/learnkit/core"
)

// Summary 是一次运行的汇总统计。
type Summary struct {
	Examples          uint64
	WeightedLabeled   float64
	WeightedUnlabeled float64
	WeightedLabelSum  float64
	TotalFeatures     uint64
	AverageLoss       float64
}

// Collector 是内存统计收集器，实现 core.Reporter。
// 在样本数达到 1, 2, 4, 8 ... 时输出一行进度（平均损失与自上次输出以来的损失）。
type Collector struct {
	mu       sync.Mutex
	sd       *core.SharedData
	nextDump uint64
	logger   *zap.Logger
}

// CollectorOption 配置 Collector。
type CollectorOption func(*Collector)

// WithLogger 设置进度日志输出；默认不输出。
func WithLogger(logger *zap.Logger) CollectorOption {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCollector 创建收集器，统计累加到 sd 上（通常为学习栈的 SharedData）；sd 为 nil 时自建一个。
func NewCollector(sd *core.SharedData, opts ...CollectorOption) *Collector {
	if sd == nil {
		sd = core.NewSharedData()
	}
	c := &Collector{sd: sd, nextDump: 1, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Report 累加一条结果。
func (c *Collector) Report(o core.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sd := c.sd
	sd.ExampleNumber++
	sd.TotalFeatures += uint64(o.NumFeatures)
	if o.Test {
		sd.WeightedUnlabeledExamples += float64(o.Weight)
	} else {
		sd.WeightedLabeledExamples += float64(o.Weight)
		sd.WeightedSinceLastDump += float64(o.Weight)
		sd.SumLoss += float64(o.Loss)
		sd.SumLossSinceLastDump += float64(o.Loss)
		if l, ok := o.Label.(*core.SimpleLabel); ok {
			sd.WeightedLabels += float64(l.Label) * float64(o.Weight)
		}
	}

	if sd.ExampleNumber >= c.nextDump {
		c.dump(o)
		c.nextDump *= 2
	}
}

func (c *Collector) dump(o core.Outcome) {
	sd := c.sd
	fields := []zap.Field{
		zap.Float64("average_loss", ratio(sd.SumLoss, sd.WeightedLabeledExamples)),
		zap.Float64("since_last", ratio(sd.SumLossSinceLastDump, sd.WeightedSinceLastDump)),
		zap.Uint64("example_counter", sd.ExampleNumber),
		zap.Float64("example_weight", float64(o.Weight)),
		zap.Int("current_features", o.NumFeatures),
	}
	switch o.Prediction.Type {
	case core.PredictionScalar:
		fields = append(fields, zap.Float32("current_predict", o.Prediction.Scalar))
	case core.PredictionMulticlass:
		fields = append(fields, zap.Uint32("current_predict", o.Prediction.Multiclass))
	}
	if o.Test {
		fields = append(fields, zap.String("current_label", "unknown"))
	}
	c.logger.Info("progress", fields...)
	sd.SumLossSinceLastDump = 0
	sd.WeightedSinceLastDump = 0
}

// Summary 返回当前汇总。
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	sd := c.sd
	return Summary{
		Examples:          sd.ExampleNumber,
		WeightedLabeled:   sd.WeightedLabeledExamples,
		WeightedUnlabeled: sd.WeightedUnlabeledExamples,
		WeightedLabelSum:  sd.WeightedLabels,
		TotalFeatures:     sd.TotalFeatures,
		AverageLoss:       ratio(sd.SumLoss, sd.WeightedLabeledExamples),
	}
}

// LogSummary 以一行日志输出最终汇总。
func (c *Collector) LogSummary() {
	s := c.Summary()
	c.logger.Info("finished run",
		zap.Uint64("number_of_examples", s.Examples),
		zap.Float64("weighted_example_sum", s.WeightedLabeled+s.WeightedUnlabeled),
		zap.Float64("weighted_label_sum", s.WeightedLabelSum),
		zap.Float64("average_loss", s.AverageLoss),
		zap.Uint64("total_feature_number", s.TotalFeatures))
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Multi 把结果转发给多个 Reporter。
type Multi []core.Reporter

func (m Multi) Report(o core.Outcome) {
	for _, r := range m {
		if r != nil {
			r.Report(o)
		}
	}
}
