// Package learner 定义学习栈的最小可组合单元 Node，以及把若干 reduction 叠加在
// 一个底层 learner 之上的 Stack。
//
// 每个 reduction 独占其下方的子栈，通过 Base 句柄以“第 i 个子问题”的形式调用下层；
// Base 负责按 increment 调整样本的权重偏移，并在返回前恢复。
// 相邻节点的 label / prediction 类型在 NewStack 时统一校验，不兼容直接返回启动期错误。
package learner

import (
	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/pkg/modelio"
)

// Spec 描述节点读写的 label / prediction 类型，以及它对权重空间的占用。
type Spec struct {
	InputLabel       core.LabelType      // 节点从样本上读取的 label
	OutputPrediction core.PredictionType // 节点写回样本的 prediction
	BaseLabel        core.LabelType      // 交给下层的 label（底层 learner 为 LabelNone）
	BasePrediction   core.PredictionType // 期望下层产出的 prediction

	// ParamsPerWeight 是节点在每个特征上占用的下层权重份数（如 CSOAA 为类别数）
	ParamsPerWeight uint64

	// LearnReturnsPrediction 为 true 时 Learn 同时产出 prediction，调用方无需先 Predict
	LearnReturnsPrediction bool
}

// Node 是学习栈中的一个节点。
//
//   - Learn 依据样本当前的 label 更新节点状态，可递归调用下层的 learn / predict
//   - Predict 不修改可训练状态，也不修改样本的 label；对未变化的样本重复调用结果相同
//   - FinishExample 向统计收集器上报结果，每个样本恰好调用一次
//
// 节点可以临时改写样本的 label / prediction / weight，但在所有返回路径上必须恢复。
type Node interface {
	Name() string
	Spec() Spec
	Learn(ec *core.Example) error
	Predict(ec *core.Example) error
	FinishExample(r core.Reporter, ec *core.Example)
}

// Multipredictor 是可选能力：一次调用为 count 个连续子问题打分。
// 第 c 个子问题的权重偏移为 ec.FtOffset + c*step，结果写入 preds[c]；
// finalize 为 false 时只需写入 preds[c].Scalar 的原始分（partial prediction）。
type Multipredictor interface {
	Multipredict(ec *core.Example, step uint64, count int, preds []core.Prediction, finalize bool) error
}

// Saver 是可选能力：节点有需要持久化的状态时实现。
type Saver interface {
	Save(w *modelio.Writer) error
	Load(r *modelio.Reader) error
}

// StrideSetter 由底层 learner 实现，Stack 构建完成后告知整栈的权重步长。
type StrideSetter interface {
	SetStride(stride uint64)
}

// Base 是 reduction 持有的下层句柄。第 i 个子问题对应权重偏移 i*increment。
type Base struct {
	node      Node
	increment uint64
}

// NewBase 创建下层句柄，供测试或手工拼装节点使用。
func NewBase(node Node, increment uint64) *Base {
	if increment == 0 {
		increment = 1
	}
	return &Base{node: node, increment: increment}
}

// Node 返回下层节点。
func (b *Base) Node() Node { return b.node }

// Increment 返回子问题之间的权重偏移步长。
func (b *Base) Increment() uint64 { return b.increment }

// Learn 以第 i 个子问题调用下层 learn。
func (b *Base) Learn(ec *core.Example, i uint64) error {
	offset := ec.FtOffset
	ec.FtOffset += b.increment * i
	defer func() { ec.FtOffset = offset }()
	return b.node.Learn(ec)
}

// Predict 以第 i 个子问题调用下层 predict。
func (b *Base) Predict(ec *core.Example, i uint64) error {
	offset := ec.FtOffset
	ec.FtOffset += b.increment * i
	defer func() { ec.FtOffset = offset }()
	return b.node.Predict(ec)
}

// Multipredict 为子问题 lo, lo+1, ..., lo+count-1 打分，结果写入 preds（长度至少为 count）。
// 下层不支持批量打分时退化为逐个 Predict，并在结束后恢复样本的 prediction。
func (b *Base) Multipredict(ec *core.Example, lo uint64, count int, preds []core.Prediction, finalize bool) error {
	if len(preds) < count {
		return core.Errorf(core.ModuleLearner, core.ErrorCodeInvalidInput,
			"multipredict buffer has %d slots, need %d", len(preds), count)
	}
	offset := ec.FtOffset
	ec.FtOffset += b.increment * lo
	defer func() { ec.FtOffset = offset }()

	if mp, ok := b.node.(Multipredictor); ok {
		return mp.Multipredict(ec, b.increment, count, preds, finalize)
	}

	saved, partial := ec.Pred, ec.PartialPrediction
	defer func() { ec.Pred, ec.PartialPrediction = saved, partial }()
	base := ec.FtOffset
	for c := 0; c < count; c++ {
		ec.FtOffset = base + uint64(c)*b.increment
		if err := b.node.Predict(ec); err != nil {
			return err
		}
		if finalize {
			preds[c] = ec.Pred
		} else {
			preds[c].SetScalar(ec.PartialPrediction)
		}
	}
	return nil
}
