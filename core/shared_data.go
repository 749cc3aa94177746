package core

// SharedData 是一次训练运行内共享的统计量。
// 损失函数只读取 MinLabel / MaxLabel；其余字段由 stats 收集器维护。
type SharedData struct {
	MinLabel float32
	MaxLabel float32

	ExampleNumber             uint64
	TotalFeatures             uint64
	WeightedLabeledExamples   float64
	WeightedUnlabeledExamples float64
	WeightedLabels            float64
	SumLoss                   float64
	SumLossSinceLastDump      float64
	WeightedSinceLastDump     float64
}

// NewSharedData 返回 label 区间为 [0,1] 的初始统计量。
func NewSharedData() *SharedData {
	return &SharedData{MinLabel: 0, MaxLabel: 1}
}

// ObserveLabel 在看到新的回归目标时扩展 label 区间。
func (sd *SharedData) ObserveLabel(label float32) {
	if label == FLTMax {
		return
	}
	if label < sd.MinLabel {
		sd.MinLabel = label
	}
	if label > sd.MaxLabel {
		sd.MaxLabel = label
	}
}

// Clip 将预测值截断到 [MinLabel, MaxLabel]。
func (sd *SharedData) Clip(p float32) float32 {
	if p < sd.MinLabel {
		return sd.MinLabel
	}
	if p > sd.MaxLabel {
		return sd.MaxLabel
	}
	return p
}

// Outcome 是 finish_example 上报给统计收集器的一条结果。
type Outcome struct {
	Prediction  Prediction
	Label       Label
	Weight      float32
	Loss        float32
	Test        bool
	NumFeatures int
}

// Reporter 是 finish_example 使用的聚合统计接收端。
type Reporter interface {
	Report(o Outcome)
}
