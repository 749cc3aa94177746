package core

import (
	"fmt"
	"math"
)

// FLTMax 是“未知/无穷大 cost”的哨兵值，也是 simple label 的测试样本标记。
const FLTMax = float32(math.MaxFloat32)

// LabelType 标识 label 变体，启动期用于校验相邻节点的兼容性。
type LabelType int

const (
	LabelNone       LabelType = iota // 底层 learner 不再向下传递 label
	LabelSimple                      // 标量回归 label
	LabelCS                          // cost-sensitive 多分类 label
	LabelContinuous                  // 连续动作 contextual bandit label
)

func (t LabelType) String() string {
	switch t {
	case LabelNone:
		return "none"
	case LabelSimple:
		return "simple"
	case LabelCS:
		return "cs"
	case LabelContinuous:
		return "continuous"
	default:
		return fmt.Sprintf("label_type(%d)", int(t))
	}
}

// Label 是按问题类型区分的 label 和类型（sum type）。
// 只有本包定义的 *SimpleLabel / *CSLabel / *ContinuousLabel 可以实现它。
type Label interface {
	Type() LabelType
	isLabel()
}

// SimpleLabel 是标量回归 label。Label == FLTMax 表示测试样本。
type SimpleLabel struct {
	Label float32
}

func (*SimpleLabel) Type() LabelType { return LabelSimple }
func (*SimpleLabel) isLabel()        {}

// CSClass 是 cost-sensitive label 中的一个候选类。
type CSClass struct {
	Cost              float32 // FLTMax 表示未知 cost
	ClassIndex        uint32
	PartialPrediction float32 // reduction 回写的该类得分
	WAPValue          float32
}

// CSLabel 是 cost-sensitive 多分类 label：每个候选类一个 cost。
type CSLabel struct {
	Costs []CSClass
}

func (*CSLabel) Type() LabelType { return LabelCS }
func (*CSLabel) isLabel()        {}

// IsTest 当所有 cost 都未知（或没有 cost）时为 true。
func (l *CSLabel) IsTest() bool {
	for _, c := range l.Costs {
		if c.Cost != FLTMax {
			return false
		}
	}
	return true
}

// ContinuousCost 是连续动作 label 中的一个 {action, cost, pdf_value} 条目。
type ContinuousCost struct {
	Action   float32
	Cost     float32
	PDFValue float32
}

// ContinuousLabel 是连续动作 contextual bandit label。
type ContinuousLabel struct {
	Costs []ContinuousCost
}

func (*ContinuousLabel) Type() LabelType { return LabelContinuous }
func (*ContinuousLabel) isLabel()        {}

// IsTest 当没有任何 cost 条目同时满足“cost 已知且 pdf_value > 0”时为 true。
func (l *ContinuousLabel) IsTest() bool {
	for _, c := range l.Costs {
		if c.Cost != FLTMax && c.PDFValue > 0 {
			return false
		}
	}
	return true
}

// String 便于日志输出，格式与 debug print 一致：[l.cb_cont={{a,c,p}...}]
func (l *ContinuousLabel) String() string {
	s := "[l.cb_cont={"
	for _, c := range l.Costs {
		s += fmt.Sprintf("{%g,%g,%g}", c.Action, c.Cost, c.PDFValue)
	}
	return s + "}]"
}

// PredictionType 标识 prediction 变体。
type PredictionType int

const (
	PredictionNone PredictionType = iota
	PredictionScalar
	PredictionMulticlass
)

func (t PredictionType) String() string {
	switch t {
	case PredictionNone:
		return "none"
	case PredictionScalar:
		return "scalar"
	case PredictionMulticlass:
		return "multiclass"
	default:
		return fmt.Sprintf("prediction_type(%d)", int(t))
	}
}

// Prediction 是带类型标记的 prediction 槽位。
type Prediction struct {
	Type       PredictionType
	Scalar     float32
	Multiclass uint32
}

// SetScalar 写入标量 prediction。
func (p *Prediction) SetScalar(v float32) {
	p.Type = PredictionScalar
	p.Scalar = v
}

// SetMulticlass 写入多分类 prediction。
func (p *Prediction) SetMulticlass(c uint32) {
	p.Type = PredictionMulticlass
	p.Multiclass = c
}

// IsTestLabel 判断任意 label 变体是否为测试 label；nil 视为测试 label。
func IsTestLabel(l Label) bool {
	switch v := l.(type) {
	case *SimpleLabel:
		return v.Label == FLTMax
	case *CSLabel:
		return v.IsTest()
	case *ContinuousLabel:
		return v.IsTest()
	default:
		return true
	}
}
