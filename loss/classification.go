package loss

import (
	"math"

	"github.com/rushteam/learnkit/core"
)

const (
	HingeName    = "hinge"
	LogisticName = "logistic"
)

// Hinge 是 label 取 ±1 的合页损失 max(0, 1-y·p)。
type Hinge struct{}

func (Hinge) Type() string       { return HingeName }
func (Hinge) Parameter() float32 { return 0 }

func (Hinge) Loss(_ *core.SharedData, prediction, label float32) float32 {
	e := 1 - label*prediction
	if e > 0 {
		return e
	}
	return 0
}

func (Hinge) Update(prediction, label, updateScale, predPerUpdate float32) float32 {
	if label*prediction >= 1 {
		return 0
	}
	err := 1 - label*prediction
	if updateScale*predPerUpdate < err {
		return label * updateScale
	}
	return label * err / predPerUpdate
}

func (Hinge) UnsafeUpdate(prediction, label, updateScale float32) float32 {
	if label*prediction >= 1 {
		return 0
	}
	return label * updateScale
}

func (h Hinge) SquareGrad(prediction, label float32) float32 {
	d := h.FirstDerivative(nil, prediction, label)
	return d * d
}

func (Hinge) FirstDerivative(_ *core.SharedData, prediction, label float32) float32 {
	if label*prediction <= 1 {
		return -label
	}
	return 0
}

func (Hinge) SecondDerivative(_ *core.SharedData, _, _ float32) float32 { return 0 }

// Logistic 是 label 取 ±1 的对数损失 log(1+exp(-y·p))。
type Logistic struct{}

func (Logistic) Type() string       { return LogisticName }
func (Logistic) Parameter() float32 { return 0 }

func (Logistic) Loss(_ *core.SharedData, prediction, label float32) float32 {
	return float32(math.Log1p(math.Exp(-float64(label * prediction))))
}

// Update 求解隐式更新方程，用 Lambert W 函数的近似 wexpmx 闭式给出步长。
func (Logistic) Update(prediction, label, updateScale, predPerUpdate float32) float32 {
	d := math.Exp(float64(label * prediction))
	x := float64(updateScale*predPerUpdate) + float64(label*prediction) + d
	w := wexpmx(x)
	return -(label*float32(w) + prediction) / predPerUpdate
}

func (Logistic) UnsafeUpdate(prediction, label, updateScale float32) float32 {
	return label * updateScale / float32(1+math.Exp(float64(label*prediction)))
}

func (l Logistic) SquareGrad(prediction, label float32) float32 {
	d := l.FirstDerivative(nil, prediction, label)
	return d * d
}

func (Logistic) FirstDerivative(_ *core.SharedData, prediction, label float32) float32 {
	return -label / float32(1+math.Exp(float64(label*prediction)))
}

func (Logistic) SecondDerivative(_ *core.SharedData, prediction, label float32) float32 {
	p := 1 / (1 + math.Exp(float64(label*prediction)))
	return float32(p * (1 - p))
}

// wexpmx 近似 W(exp(x)) - x，W 为 Lambert W 函数，绝对误差小于 9e-5。
func wexpmx(x float64) float64 {
	var w, r float64
	if x >= 1 {
		w = 0.86*x + 0.01
		r = x - math.Log(w) - w
	} else {
		w = math.Exp(0.8*x - 0.65)
		r = 0.2*x + 0.65 - w
	}
	t := 1 + w
	u := 2 * t * (t + 2*r/3)
	return w*(1+r/t*(u-r)/(u-2*r)) - x
}
