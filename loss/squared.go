package loss

import (
	"math"

	"github.com/rushteam/learnkit/core"
)

const (
	SquaredName = "squared"
	ClassicName = "classic"
)

// taylorThreshold 以下用二阶泰勒展开代替 1-exp(-x)，避免灾难性抵消。
const taylorThreshold = 1e-6

// Squared 是带截断的平方损失 (p-y)^2。
// 预测落在 [MinLabel, MaxLabel] 之外时按区间边界线性外推。
type Squared struct{}

func (Squared) Type() string       { return SquaredName }
func (Squared) Parameter() float32 { return 0 }

func (Squared) Loss(sd *core.SharedData, prediction, label float32) float32 {
	if prediction <= sd.MaxLabel && prediction >= sd.MinLabel {
		d := prediction - label
		return d * d
	}
	if prediction < sd.MinLabel {
		if label == sd.MinLabel {
			return 0
		}
		d := float64(label - sd.MinLabel)
		return float32(d*d + 2*d*float64(sd.MinLabel-prediction))
	}
	if label == sd.MaxLabel {
		return 0
	}
	d := float64(sd.MaxLabel - label)
	return float32(d*d + 2*d*float64(prediction-sd.MaxLabel))
}

// Update 是闭式的 Newton 最优步长 (y-p)(1-exp(-2·s·ppu))/ppu，
// 对任意正的 s 都不会越过 y。
func (Squared) Update(prediction, label, updateScale, predPerUpdate float32) float32 {
	if updateScale*predPerUpdate < taylorThreshold {
		return 2 * (label - prediction) * updateScale
	}
	decay := -math.Expm1(-2 * float64(updateScale) * float64(predPerUpdate))
	return float32(float64(label-prediction) * decay / float64(predPerUpdate))
}

func (Squared) UnsafeUpdate(prediction, label, updateScale float32) float32 {
	return 2 * (label - prediction) * updateScale
}

func (Squared) SquareGrad(prediction, label float32) float32 {
	d := prediction - label
	return 4 * d * d
}

func (Squared) FirstDerivative(_ *core.SharedData, prediction, label float32) float32 {
	return 2 * (prediction - label)
}

func (Squared) SecondDerivative(sd *core.SharedData, prediction, _ float32) float32 {
	if prediction <= sd.MaxLabel && prediction >= sd.MinLabel {
		return 2
	}
	return 0
}

// Classic 是不截断的平方损失，Update 与 UnsafeUpdate 相同。
type Classic struct{}

func (Classic) Type() string       { return ClassicName }
func (Classic) Parameter() float32 { return 0 }

func (Classic) Loss(_ *core.SharedData, prediction, label float32) float32 {
	d := prediction - label
	return d * d
}

func (Classic) Update(prediction, label, updateScale, _ float32) float32 {
	return 2 * (label - prediction) * updateScale
}

func (Classic) UnsafeUpdate(prediction, label, updateScale float32) float32 {
	return 2 * (label - prediction) * updateScale
}

func (Classic) SquareGrad(prediction, label float32) float32 {
	d := prediction - label
	return 4 * d * d
}

func (Classic) FirstDerivative(_ *core.SharedData, prediction, label float32) float32 {
	return 2 * (prediction - label)
}

func (Classic) SecondDerivative(_ *core.SharedData, _, _ float32) float32 { return 2 }
