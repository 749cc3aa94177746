package pipeline

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/learner"
	"github.com/rushteam/learnkit/pkg/modelio"
)

// SaveModel 把学习栈的模型以二进制格式写入 store 的 key；ttl 单位为秒。
func SaveModel(ctx context.Context, s core.Store, key string, stack *learner.Stack, ttl ...int) error {
	var buf bytes.Buffer
	if err := stack.Save(modelio.NewWriter(&buf, false)); err != nil {
		return fmt.Errorf("save model %s: %w", key, err)
	}
	if err := s.Set(ctx, key, buf.Bytes(), ttl...); err != nil {
		return fmt.Errorf("store model %s in %s: %w", key, s.Name(), err)
	}
	return nil
}

// LoadModel 从 store 的 key 读回模型到结构相同的学习栈。key 不存在时返回的错误满足 core.IsStoreNotFound。
func LoadModel(ctx context.Context, s core.Store, key string, stack *learner.Stack) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("fetch model %s from %s: %w", key, s.Name(), err)
	}
	if err := stack.Load(modelio.NewReader(bytes.NewReader(data), false)); err != nil {
		return fmt.Errorf("load model %s: %w", key, err)
	}
	return nil
}
