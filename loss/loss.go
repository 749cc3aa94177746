// Package loss 提供在线梯度更新使用的损失函数族。
//
// 每个损失函数都是无状态、只读的策略对象：启动时按名字（和可选的形状参数）构建一次，
// 被所有样本共享。约定 p 为预测值、y 为 label：
//
//   - Loss(sd, p, y)          非负损失值
//   - FirstDerivative / SecondDerivative  对 p 的解析导数
//   - SquareGrad(p, y)        一阶导数的平方
//   - UnsafeUpdate(p, y, s)   未截断的梯度步长，方向为 -s * dL/dp
//   - Update(p, y, s, ppu)    不会越过损失最小点的自适应步长
package loss

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/learnkit/core"
)

// Func 是损失函数的统一数值契约。
type Func interface {
	// Type 返回配置时使用的名字
	Type() string

	// Parameter 返回形状参数，没有参数的损失函数返回 0
	Parameter() float32

	Loss(sd *core.SharedData, prediction, label float32) float32
	Update(prediction, label, updateScale, predPerUpdate float32) float32
	UnsafeUpdate(prediction, label, updateScale float32) float32
	SquareGrad(prediction, label float32) float32
	FirstDerivative(sd *core.SharedData, prediction, label float32) float32
	SecondDerivative(sd *core.SharedData, prediction, label float32) float32
}

// Builder 根据形状参数构建损失函数；hasParam 为 false 表示未配置参数。
type Builder func(param float32, hasParam bool) (Func, error)

var (
	builders   = make(map[string]Builder)
	buildersMu sync.RWMutex
)

// Register 注册一种损失函数，供 New 与配置驱动使用。
func Register(name string, b Builder) {
	if name == "" || b == nil {
		return
	}
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[name] = b
}

// SupportedTypes 返回已注册的损失函数名字（排序）。
func SupportedTypes() []string {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	names := make([]string, 0, len(builders))
	for n := range builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New 按名字构建损失函数。未知名字或参数越界都是启动期致命错误，不做静默截断。
func New(name string, param ...float32) (Func, error) {
	if len(param) > 1 {
		return nil, core.Errorf(core.ModuleLoss, core.ErrorCodeInvalidConfig,
			"loss %q accepts at most one parameter, got %d", name, len(param))
	}
	buildersMu.RLock()
	b, ok := builders[name]
	buildersMu.RUnlock()
	if !ok {
		return nil, core.Errorf(core.ModuleLoss, core.ErrorCodeInvalidConfig,
			"unknown loss function %q (supported: %v)", name, SupportedTypes())
	}
	if len(param) == 1 {
		return b(param[0], true)
	}
	return b(0, false)
}

func noParameter(name string, b func() Func) Builder {
	return func(param float32, hasParam bool) (Func, error) {
		if hasParam && param != 0 {
			return nil, core.Errorf(core.ModuleLoss, core.ErrorCodeInvalidConfig,
				"loss %q takes no parameter, got %g", name, param)
		}
		return b(), nil
	}
}

func outOfRange(name string, param float32, domain string) error {
	return core.NewDomainError(core.ModuleLoss, core.ErrorCodeInvalidConfig,
		fmt.Sprintf("loss %q parameter %g out of range %s", name, param, domain))
}

func init() {
	Register(SquaredName, noParameter(SquaredName, func() Func { return Squared{} }))
	Register(ClassicName, noParameter(ClassicName, func() Func { return Classic{} }))
	Register(HingeName, noParameter(HingeName, func() Func { return Hinge{} }))
	Register(LogisticName, noParameter(LogisticName, func() Func { return Logistic{} }))
	Register(PoissonName, noParameter(PoissonName, func() Func { return Poisson{} }))
	Register(QuantileName, buildQuantile)
	Register(ExpectileName, buildExpectile)
}
