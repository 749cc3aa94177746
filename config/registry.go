// Package config 维护节点构建器的全局注册表，供配置驱动的学习栈使用。
package config

import (
	"sort"
	"sync"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/learner"
)

// 使用配置驱动时，需在 main 或入口处 import _ "github.com/rushteam/learnkit/config/builders"
// 以触发内置节点（gd、csoaa）的 init 注册。

// NodeBuilder 与 learner.NodeBuilder 一致：在给定环境下根据 config 构建节点。
// 各组件在 init 中调用 Register(typeName, builder) 即可被配置驱动。
type NodeBuilder = learner.NodeBuilder

var (
	defaultBuilders   = make(map[string]NodeBuilder)
	defaultBuildersMu sync.RWMutex
)

// Register 注册一种节点的构建逻辑，供 DefaultFactory 与配置驱动使用。
// 建议在各组件的 init 中调用，例如：func init() { config.Register("csoaa", BuildCSOAA) }
func Register(typeName string, builder NodeBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	defaultBuildersMu.Lock()
	defer defaultBuildersMu.Unlock()
	defaultBuilders[typeName] = builder
}

// SupportedTypes 返回当前已注册的节点类型列表（排序），用于错误提示与校验。
func SupportedTypes() []string {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	return sortedKeys()
}

// DefaultFactory 返回基于当前注册表构建的 NodeFactory，包含所有通过 Register 注册的节点类型。
func DefaultFactory() *learner.NodeFactory {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	f := learner.NewNodeFactory()
	for typeName, builder := range defaultBuilders {
		f.Register(typeName, builder)
	}
	return f
}

// ValidateConfig 校验配置中所有节点类型均已注册；若有未支持类型则返回包含已支持列表的错误。
func ValidateConfig(cfg *learner.Config) error {
	if cfg == nil {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	nodes := append([]learner.NodeConfig{cfg.Stack.Base}, cfg.Stack.Reductions...)
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	for _, nc := range nodes {
		if _, ok := defaultBuilders[nc.Type]; !ok {
			return core.Errorf(core.ModuleLearner, core.ErrorCodeInvalidConfig,
				"unsupported node type %q (supported: %v)", nc.Type, sortedKeys())
		}
	}
	return nil
}

// sortedKeys 调用方需持有读锁。
func sortedKeys() []string {
	types := make([]string, 0, len(defaultBuilders))
	for t := range defaultBuilders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
