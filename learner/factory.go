package learner

import (
	"fmt"
	"sort"

	"github.com/rushteam/learnkit/core"
)

// NodeBuilder 根据节点配置在给定环境下构建节点。
type NodeBuilder func(env *Env, cfg map[string]interface{}) (Node, error)

// NodeFactory 用于根据配置构建 Node 实例。
type NodeFactory struct {
	builders map[string]NodeBuilder
}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{
		builders: make(map[string]NodeBuilder),
	}
}

// Register 注册 Node 构建器。
func (f *NodeFactory) Register(nodeType string, builder NodeBuilder) {
	f.builders[nodeType] = builder
}

// Has 判断类型是否已注册。
func (f *NodeFactory) Has(nodeType string) bool {
	_, ok := f.builders[nodeType]
	return ok
}

// Types 返回已注册的类型（排序）。
func (f *NodeFactory) Types() []string {
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Build 根据类型和配置构建 Node。
func (f *NodeFactory) Build(env *Env, nodeType string, config map[string]interface{}) (Node, error) {
	builder, ok := f.builders[nodeType]
	if !ok {
		return nil, core.Errorf(core.ModuleLearner, core.ErrorCodeInvalidConfig,
			"unknown node type: %s (supported: %v)", nodeType, f.Types())
	}
	node, err := builder(env, config)
	if err != nil {
		return nil, fmt.Errorf("build node %s: %w", nodeType, err)
	}
	return node, nil
}

// BuildFunc 返回延迟构建 nodeType 的 BuildFunc，供 NewStack 使用。
func (f *NodeFactory) BuildFunc(nodeType string, config map[string]interface{}) BuildFunc {
	return func(env *Env) (Node, error) {
		return f.Build(env, nodeType, config)
	}
}
