// Package builders 在 init 中向 config 注册内置节点：底层 learner gd 与 reduction csoaa。
package builders

import (
	"github.com/rushteam/learnkit/config"
	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/learner"
	"github.com/rushteam/learnkit/model"
	"github.com/rushteam/learnkit/pkg/conv"
	"github.com/rushteam/learnkit/reduction"
)

func init() {
	config.Register(model.LinearName, BuildLinear)
	config.Register(reduction.CSOAAName, BuildCSOAA)
}

// BuildLinear 构建 gd。支持的键：bits、learning_rate、power_t、initial_t。
func BuildLinear(env *learner.Env, cfg map[string]interface{}) (learner.Node, error) {
	if env.Base != nil {
		return nil, core.Errorf(core.ModuleLearner, core.ErrorCodeInvalidConfig,
			"gd must be the base learner of a stack")
	}
	bits := conv.ConfigGetInt64(cfg, "bits", model.DefaultBits)
	if bits <= 0 || bits > model.MaxBits {
		return nil, core.Errorf(core.ModuleLearner, core.ErrorCodeInvalidConfig,
			"gd: bits %d out of range [1, %d]", bits, model.MaxBits)
	}
	return model.NewLinear(env.Loss, env.SharedData, model.LinearConfig{
		Bits:         uint(bits),
		LearningRate: float32(conv.ConfigGetFloat64(cfg, "learning_rate", model.DefaultLearningRate)),
		PowerT:       float32(conv.ConfigGetFloat64(cfg, "power_t", 0)),
		InitialT:     float32(conv.ConfigGetFloat64(cfg, "initial_t", 1)),
	}, env.Logger)
}

// BuildCSOAA 构建 csoaa。支持的键：classes（必填）、indexing（0 / 1 / auto）、search。
func BuildCSOAA(env *learner.Env, cfg map[string]interface{}) (learner.Node, error) {
	if _, ok := cfg["probabilities"]; ok {
		return nil, core.Errorf(core.ModuleReduction, core.ErrorCodeInvalidConfig,
			"csoaa does not support probabilities output")
	}
	classes := conv.ConfigGetInt64(cfg, "classes", 0)
	if classes <= 0 || classes > 1<<24 {
		return nil, core.Errorf(core.ModuleReduction, core.ErrorCodeInvalidConfig,
			"csoaa: classes must be in [1, %d], got %v", 1<<24, cfg["classes"])
	}
	indexing, err := reduction.ParseIndexing(cfg["indexing"])
	if err != nil {
		return nil, err
	}
	return reduction.NewCSOAA(env.Base, reduction.CSOAAConfig{
		Classes:  uint32(classes),
		Indexing: indexing,
		Search:   conv.ConfigGet(cfg, "search", false),
	}, env.Logger)
}
