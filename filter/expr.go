package filter

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/learnkit/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("example", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Expr 是基于 CEL (Common Expression Language) 的样本过滤器：表达式为 true 时保留样本。
//
// 可用变量（example.xxx）：
//   - weight：样本权重（double）
//   - tag：样本 tag（string）
//   - test：是否为测试 label（bool）
//   - label_type：simple / cs / continuous
//   - num_features：特征总数（int）
//   - namespaces：namespace 名列表（list<string>）
//
// 示例：
//   - `example.weight > 0.0 && !example.test`
//   - `example.tag.startsWith("train_")`
//   - `"a" in example.namespaces`
type Expr struct {
	expr string
	prg  cel.Program
}

// NewExpr 编译表达式；表达式的结果类型必须是 bool。
func NewExpr(expr string) (*Expr, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, core.Errorf(core.ModulePipeline, core.ErrorCodeInvalidConfig,
			"compile filter %q: %v", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, core.Errorf(core.ModulePipeline, core.ErrorCodeInvalidConfig,
			"program filter %q: %v", expr, err)
	}
	return &Expr{expr: expr, prg: prg}, nil
}

func (e *Expr) Name() string { return "filter.expr" }

// String 返回原始表达式。
func (e *Expr) String() string { return e.expr }

// Keep 对样本求值表达式。
func (e *Expr) Keep(ec *core.Example) (bool, error) {
	out, _, err := e.prg.Eval(map[string]any{"example": buildInput(ec)})
	if err != nil {
		return false, fmt.Errorf("eval filter %q: %w", e.expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q must return boolean, got %T", e.expr, out.Value())
	}
	return result, nil
}

func (e *Expr) ShouldFilter(_ context.Context, ec *core.Example) (bool, error) {
	keep, err := e.Keep(ec)
	return !keep, err
}

func buildInput(ec *core.Example) map[string]any {
	namespaces := make([]string, 0, len(ec.Namespaces))
	for _, ns := range ec.Namespaces {
		namespaces = append(namespaces, string(ns.Name))
	}
	labelType := core.LabelNone.String()
	if ec.Label != nil {
		labelType = ec.Label.Type().String()
	}
	return map[string]any{
		"weight":       float64(ec.Weight),
		"tag":          ec.Tag,
		"test":         core.IsTestLabel(ec.Label),
		"label_type":   labelType,
		"num_features": int64(ec.NumFeatures()),
		"namespaces":   namespaces,
	}
}
