package loss

import (
	"math"

	"github.com/rushteam/learnkit/core"
)

const (
	QuantileName = "quantile"
	PoissonName  = "poisson"
)

// DefaultQuantileTau 是未配置参数时 quantile 损失使用的 τ（中位数回归）。
const DefaultQuantileTau = 0.5

// Quantile 是 pinball 损失：残差为正时 τ·e，为负时 -(1-τ)·e。
type Quantile struct {
	tau float32
}

// NewQuantile 构建 quantile 损失，τ 必须在开区间 (0,1) 内。
func NewQuantile(tau float32) (*Quantile, error) {
	if !(tau > 0 && tau < 1) {
		return nil, outOfRange(QuantileName, tau, "(0,1)")
	}
	return &Quantile{tau: tau}, nil
}

func buildQuantile(param float32, hasParam bool) (Func, error) {
	if !hasParam {
		param = DefaultQuantileTau
	}
	return NewQuantile(param)
}

func (q *Quantile) Type() string       { return QuantileName }
func (q *Quantile) Parameter() float32 { return q.tau }

func (q *Quantile) Loss(_ *core.SharedData, prediction, label float32) float32 {
	e := label - prediction
	if e > 0 {
		return q.tau * e
	}
	return -(1 - q.tau) * e
}

func (q *Quantile) Update(prediction, label, updateScale, predPerUpdate float32) float32 {
	err := label - prediction
	if err == 0 {
		return 0
	}
	normal := updateScale * predPerUpdate
	if err > 0 {
		normal = q.tau * normal
		if normal < err {
			return q.tau * updateScale
		}
		return err / predPerUpdate
	}
	normal = -(1 - q.tau) * normal
	if normal > err {
		return (q.tau - 1) * updateScale
	}
	return err / predPerUpdate
}

func (q *Quantile) UnsafeUpdate(prediction, label, updateScale float32) float32 {
	err := label - prediction
	if err == 0 {
		return 0
	}
	if err > 0 {
		return q.tau * updateScale
	}
	return -(1 - q.tau) * updateScale
}

func (q *Quantile) SquareGrad(prediction, label float32) float32 {
	d := q.FirstDerivative(nil, prediction, label)
	return d * d
}

func (q *Quantile) FirstDerivative(_ *core.SharedData, prediction, label float32) float32 {
	e := label - prediction
	switch {
	case e == 0:
		return 0
	case e > 0:
		return -q.tau
	default:
		return 1 - q.tau
	}
}

func (q *Quantile) SecondDerivative(_ *core.SharedData, _, _ float32) float32 { return 0 }

// Poisson 是以 log 为链接函数的泊松偏差损失，label 需非负。
type Poisson struct{}

func (Poisson) Type() string       { return PoissonName }
func (Poisson) Parameter() float32 { return 0 }

func (Poisson) Loss(_ *core.SharedData, prediction, label float32) float32 {
	expPred := math.Exp(float64(prediction))
	y := float64(label)
	return float32(2 * (y*(math.Log(y+1e-6)-float64(prediction)) - (y - expPred)))
}

func (Poisson) Update(prediction, label, updateScale, predPerUpdate float32) float32 {
	expPred := math.Exp(float64(prediction))
	s := float64(updateScale)
	ppu := float64(predPerUpdate)
	if label > 0 {
		y := float64(label)
		return float32(y*s - math.Log1p(expPred*math.Expm1(y*s*ppu)/y)/ppu)
	}
	return float32(-math.Log1p(expPred*s*ppu) / ppu)
}

func (Poisson) UnsafeUpdate(prediction, label, updateScale float32) float32 {
	return (label - float32(math.Exp(float64(prediction)))) * updateScale
}

func (p Poisson) SquareGrad(prediction, label float32) float32 {
	d := p.FirstDerivative(nil, prediction, label)
	return d * d
}

func (Poisson) FirstDerivative(_ *core.SharedData, prediction, label float32) float32 {
	return float32(math.Exp(float64(prediction))) - label
}

func (Poisson) SecondDerivative(_ *core.SharedData, prediction, _ float32) float32 {
	return float32(math.Exp(float64(prediction)))
}
