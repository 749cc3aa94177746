package loss

import "github.com/rushteam/learnkit/core"

const ExpectileName = "expectile"

// Expectile 是非对称平方损失：残差 y-p 为正时按 τ 缩放平方损失，为负时按 1-τ 缩放。
// τ=1 且 y>=p 时与 Squared 完全一致；τ=0 且 y>p 时所有量为 0。
type Expectile struct {
	q  float32
	sq Squared
}

// NewExpectile 构建 expectile 损失，τ 必须在 [0,1] 内。
func NewExpectile(q float32) (*Expectile, error) {
	if !(q >= 0 && q <= 1) {
		return nil, outOfRange(ExpectileName, q, "[0,1]")
	}
	return &Expectile{q: q}, nil
}

func buildExpectile(param float32, hasParam bool) (Func, error) {
	if !hasParam {
		return nil, core.NewDomainError(core.ModuleLoss, core.ErrorCodeInvalidConfig,
			"loss \"expectile\" requires a parameter in [0,1]")
	}
	return NewExpectile(param)
}

func (e *Expectile) Type() string       { return ExpectileName }
func (e *Expectile) Parameter() float32 { return e.q }

func (e *Expectile) factor(prediction, label float32) float32 {
	if label-prediction < 0 {
		return 1 - e.q
	}
	return e.q
}

func (e *Expectile) Loss(sd *core.SharedData, prediction, label float32) float32 {
	return e.sq.Loss(sd, prediction, label) * e.factor(prediction, label)
}

func (e *Expectile) Update(prediction, label, updateScale, predPerUpdate float32) float32 {
	return e.sq.Update(prediction, label, updateScale*e.factor(prediction, label), predPerUpdate)
}

func (e *Expectile) UnsafeUpdate(prediction, label, updateScale float32) float32 {
	return e.sq.UnsafeUpdate(prediction, label, updateScale*e.factor(prediction, label))
}

func (e *Expectile) SquareGrad(prediction, label float32) float32 {
	f := e.factor(prediction, label)
	return e.sq.SquareGrad(prediction, label) * f * f
}

func (e *Expectile) FirstDerivative(sd *core.SharedData, prediction, label float32) float32 {
	return e.sq.FirstDerivative(sd, prediction, label) * e.factor(prediction, label)
}

func (e *Expectile) SecondDerivative(sd *core.SharedData, prediction, label float32) float32 {
	return e.sq.SecondDerivative(sd, prediction, label) * e.factor(prediction, label)
}
