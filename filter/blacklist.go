package filter

import (
	"context"

	"github.com/rushteam/learnkit/core"
)

// TagBlacklist 跳过 tag 在黑名单中的样本。
type TagBlacklist struct {
	// Tags 是内存中的黑名单
	Tags map[string]struct{}

	// Store 用于按 KeyPrefix+tag 查询黑名单（可选），key 存在即视为命中
	Store     core.Store
	KeyPrefix string
}

// NewTagBlacklist 创建一个 tag 黑名单过滤器。
func NewTagBlacklist(tags []string, store core.Store, keyPrefix string) *TagBlacklist {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return &TagBlacklist{Tags: set, Store: store, KeyPrefix: keyPrefix}
}

func (f *TagBlacklist) Name() string {
	return "filter.tag_blacklist"
}

func (f *TagBlacklist) ShouldFilter(ctx context.Context, ec *core.Example) (bool, error) {
	if ec == nil {
		return true, nil
	}
	if ec.Tag == "" {
		return false, nil
	}
	if _, ok := f.Tags[ec.Tag]; ok {
		return true, nil
	}
	if f.Store == nil {
		return false, nil
	}
	if _, err := f.Store.Get(ctx, f.KeyPrefix+ec.Tag); err != nil {
		if core.IsStoreNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
