package core

import "math"

// SimpleReductionFeatures 是 simple label 的旁路字段：样本权重与初始预测。
type SimpleReductionFeatures struct {
	Weight  float32
	Initial float32
}

// Reset 恢复默认值（weight=1, initial=0）。
func (f *SimpleReductionFeatures) Reset() {
	f.Weight = 1
	f.Initial = 0
}

// PDFSegment 是分段常数密度上的一个区间 [Left, Right)。
type PDFSegment struct {
	Left     float32
	Right    float32
	PDFValue float32
}

// PDF 是按 Left 单调排列的分段常数概率密度。
type PDF []PDFSegment

// IsValid 判断是否为合法的分段常数密度：
// 非空、每段 Left < Right 且密度非负、相邻段首尾相接（无重叠无空隙）、总质量为 1。
func (p PDF) IsValid() bool {
	if len(p) == 0 {
		return false
	}
	mass := 0.0
	for i, seg := range p {
		if !(seg.Left < seg.Right) || seg.PDFValue < 0 || math.IsNaN(float64(seg.PDFValue)) {
			return false
		}
		if i > 0 && seg.Left != p[i-1].Right {
			return false
		}
		mass += float64(seg.Right-seg.Left) * float64(seg.PDFValue)
	}
	return mass >= 0.9999 && mass <= 1.0001
}

// ContinuousReductionFeatures 是连续动作 label 的旁路字段。
type ContinuousReductionFeatures struct {
	PDF          PDF
	ChosenAction float32
}

// Reset 清空 pdf 与 chosen action，保留底层数组以便复用。
func (f *ContinuousReductionFeatures) Reset() {
	f.PDF = f.PDF[:0]
	f.ChosenAction = 0
}

// ReductionFeatures 是样本上按 label 变体划分的旁路存储，由 label 解析器填充、reduction 读取。
type ReductionFeatures struct {
	Simple     SimpleReductionFeatures
	Continuous ContinuousReductionFeatures
}

// Reset 将所有旁路字段恢复为默认值。
func (r *ReductionFeatures) Reset() {
	r.Simple.Reset()
	r.Continuous.Reset()
}
