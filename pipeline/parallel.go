package pipeline

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/learnkit/core"
)

// RunParallel 让每个 Pipeline 独立处理各自的输入流，任何一个失败即取消其余。
// 各 Pipeline 必须驱动互不共享的学习栈。
func RunParallel(ctx context.Context, pipelines []*Pipeline, inputs []io.Reader) ([]Result, error) {
	if len(pipelines) != len(inputs) {
		return nil, core.Errorf(core.ModulePipeline, core.ErrorCodeInvalidInput,
			"%d pipelines for %d inputs", len(pipelines), len(inputs))
	}
	results := make([]Result, len(pipelines))
	eg, egCtx := errgroup.WithContext(ctx)
	for i := range pipelines {
		i := i
		eg.Go(func() error {
			res, err := pipelines[i].Run(egCtx, inputs[i])
			results[i] = res
			return err
		})
	}
	err := eg.Wait()
	return results, err
}
