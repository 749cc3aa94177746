package pipeline

import (
	"github.com/rushteam/learnkit/filter"
	"github.com/rushteam/learnkit/learner"
)

// Build 根据配置构建学习栈以及驱动它的 Pipeline。配置中的驱动选项先于 opts 生效。
func Build(cfg *learner.Config, factory *learner.NodeFactory, opts ...Option) (*Pipeline, *learner.Stack, error) {
	cfgOpts, err := runOptions(&cfg.Pipeline)
	if err != nil {
		return nil, nil, err
	}
	opts = append(cfgOpts, opts...)

	probe := &Pipeline{}
	for _, opt := range opts {
		opt(probe)
	}
	var stackOpts []learner.StackOption
	if probe.logger != nil {
		stackOpts = append(stackOpts, learner.WithLogger(probe.logger))
	}
	stack, err := cfg.BuildStack(factory, stackOpts...)
	if err != nil {
		return nil, nil, err
	}
	return New(stack, opts...), stack, nil
}

// BuildWorkers 按 cfg.Pipeline.Workers（0 视为 1）构建互相独立的学习栈与 Pipeline，供 RunParallel 使用。
func BuildWorkers(cfg *learner.Config, factory *learner.NodeFactory, opts ...Option) ([]*Pipeline, []*learner.Stack, error) {
	n := cfg.Pipeline.Workers
	if n <= 0 {
		n = 1
	}
	pipelines := make([]*Pipeline, 0, n)
	stacks := make([]*learner.Stack, 0, n)
	for i := 0; i < n; i++ {
		p, s, err := Build(cfg, factory, opts...)
		if err != nil {
			return nil, nil, err
		}
		pipelines = append(pipelines, p)
		stacks = append(stacks, s)
	}
	return pipelines, stacks, nil
}

func runOptions(rc *learner.RunConfig) ([]Option, error) {
	opts := []Option{
		WithStrict(rc.Strict),
		WithPassthrough(rc.Passthrough),
		WithTestOnly(rc.TestOnly),
	}
	if rc.Filter != "" {
		expr, err := filter.NewExpr(rc.Filter)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithFilters(expr))
	}
	return opts, nil
}
