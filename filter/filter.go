// Package filter 在样本进入学习栈之前决定是否跳过它。
package filter

import (
	"context"

	"go.uber.org/zap"

	"github.com/rushteam/learnkit/core"
)

// Filter 是过滤器的抽象接口，用于判断一个样本是否应该被跳过。
// 返回 true 表示应该过滤（跳过），false 表示保留。
type Filter interface {
	// Name 返回过滤器名称
	Name() string

	// ShouldFilter 判断样本是否应该被过滤
	ShouldFilter(ctx context.Context, ec *core.Example) (bool, error)
}

// Chain 组合多个过滤器：任何一个返回 true，样本就被跳过。
// 过滤器出错时记录日志并视为保留，不中断流程。
type Chain struct {
	Filters []Filter
	Logger  *zap.Logger
}

// ShouldFilter 返回是否跳过以及命中的过滤器名。
func (c *Chain) ShouldFilter(ctx context.Context, ec *core.Example) (bool, string) {
	for _, f := range c.Filters {
		ok, err := f.ShouldFilter(ctx, ec)
		if err != nil {
			if c.Logger != nil {
				c.Logger.Warn("filter failed, keeping example", zap.String("filter", f.Name()), zap.Error(err))
			}
			continue
		}
		if ok {
			return true, f.Name()
		}
	}
	return false, ""
}
