package core

// ConstantHash 是常数特征的哈希值，passthrough 的诊断索引也以它为基准。
const ConstantHash uint64 = 11650396

// ConstantNamespace 是常数特征所在的 namespace。
const ConstantNamespace = byte(128)

// Features 是一组 (index, value) 稀疏特征，Indices 与 Values 一一对应。
type Features struct {
	Indices []uint64
	Values  []float32
}

// Push 追加一个特征。
func (f *Features) Push(index uint64, value float32) {
	f.Indices = append(f.Indices, index)
	f.Values = append(f.Values, value)
}

// Len 返回特征个数。
func (f *Features) Len() int { return len(f.Indices) }

// Clear 清空特征，保留底层数组。
func (f *Features) Clear() {
	f.Indices = f.Indices[:0]
	f.Values = f.Values[:0]
}

// Namespace 是带名字的一组特征。
type Namespace struct {
	Name     byte
	Features Features
}

// Example 是一次训练/预测的样本。
//
// Example 在一次 learn/predict 调用期间归调用方所有；reduction 可以临时改写
// Label / Pred / Weight，但必须在所有返回路径（包括出错）上恢复原值。
type Example struct {
	Namespaces        []Namespace
	Label             Label
	Pred              Prediction
	ReductionFeatures ReductionFeatures
	Weight            float32
	PartialPrediction float32
	Loss              float32
	Tag               string

	// Passthrough 非 nil 时，reduction 会向其中追加诊断用的 (index, value)。
	Passthrough *Features

	// FtOffset 是当前调用的权重偏移，由 learner.Base 在逐层调用时累加并恢复。
	FtOffset uint64

	// TestOnly 表示即使 label 完整也只做预测。
	TestOnly bool
}

// NewExample 创建一个空样本，weight=1。
func NewExample() *Example {
	ec := &Example{Weight: 1}
	ec.ReductionFeatures.Reset()
	return ec
}

// Reset 为复用清空样本内容，保留 label 对象与底层数组。
func (ec *Example) Reset() {
	for i := range ec.Namespaces {
		ec.Namespaces[i].Features.Clear()
	}
	ec.Namespaces = ec.Namespaces[:0]
	ec.Pred = Prediction{}
	ec.ReductionFeatures.Reset()
	ec.Weight = 1
	ec.PartialPrediction = 0
	ec.Loss = 0
	ec.Tag = ""
	ec.FtOffset = 0
	ec.TestOnly = false
	if ec.Passthrough != nil {
		ec.Passthrough.Clear()
	}
}

// AddNamespace 返回名为 name 的 namespace，不存在时追加一个（复用已有底层数组）。
func (ec *Example) AddNamespace(name byte) *Features {
	for i := range ec.Namespaces {
		if ec.Namespaces[i].Name == name {
			return &ec.Namespaces[i].Features
		}
	}
	if len(ec.Namespaces) < cap(ec.Namespaces) {
		ec.Namespaces = ec.Namespaces[:len(ec.Namespaces)+1]
		ns := &ec.Namespaces[len(ec.Namespaces)-1]
		ns.Name = name
		ns.Features.Clear()
		return &ns.Features
	}
	ec.Namespaces = append(ec.Namespaces, Namespace{Name: name})
	return &ec.Namespaces[len(ec.Namespaces)-1].Features
}

// NumFeatures 返回所有 namespace 的特征总数。
func (ec *Example) NumFeatures() int {
	n := 0
	for i := range ec.Namespaces {
		n += ec.Namespaces[i].Features.Len()
	}
	return n
}

// AddPassthrough 在开启 passthrough 时追加一条诊断特征。
func (ec *Example) AddPassthrough(index uint64, value float32) {
	if ec.Passthrough != nil {
		ec.Passthrough.Push(index, value)
	}
}
