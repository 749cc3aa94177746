// Package store 提供 core.Store 的实现，用于模型与样本缓存的持久化。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//
//	var s core.Store = store.NewMemoryStore()
//	err := pipeline.SaveModel(ctx, s, "models/csoaa", stack)
package store

import "github.com/rushteam/learnkit/core"

// ErrNotFound 表示 key 不存在，与 core.ErrStoreNotFound 相同。
var ErrNotFound = core.ErrStoreNotFound
