// Package learnkit 是一个在线学习工具包：把复杂的学习问题归约（reduction）为简单问题，逐层叠成学习栈。
//
// 设计要点：
// - Stack-first: 底层 learner（gd）之上叠加 reduction（如 csoaa），启动期校验相邻层的 label/prediction 类型
// - Label 描述符: 每种 label 变体（simple / cs / ca）提供解析、缓存、权重与测试判定，运行期共享
// - 配置驱动: YAML/JSON 描述学习栈，节点通过 config.Register 注册即可插拔
package learnkit

import (
	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/learner"
	"github.com/rushteam/learnkit/pipeline"
)

// 轻量 facade：便于用户直接 import "learnkit" 使用核心抽象。
type (
	Node     = learner.Node
	Stack    = learner.Stack
	Config   = learner.Config
	Example  = core.Example
	Pipeline = pipeline.Pipeline
)

var (
	NewStack           = learner.NewStack
	ParseConfigYAML    = learner.ParseConfigYAML
	LoadConfigFromYAML = learner.LoadConfigFromYAML
)
