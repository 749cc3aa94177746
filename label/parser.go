// Package label 定义 label 解析器描述符协议，以及各 label 变体的具体实现。
//
// 每种 label 变体提供一个 Parser：默认值构造、文本解析、二进制/文本缓存读写、
// 权重提取、测试样本判定，再加一个类型标记。运行开始时按栈顶节点的输入 label 类型
// 选定一个 Parser，整个运行期间所有样本共享它。
package label

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/pkg/modelio"
)

// Parser 是 label 变体的描述符。实现必须是只读的，可被同一运行内的所有样本共享。
type Parser interface {
	// Type 返回该描述符对应的 label 变体
	Type() core.LabelType

	// NewLabel 返回一个处于默认状态的新 label
	NewLabel() core.Label

	// DefaultLabel 把 l 原地恢复为默认（空）值，保留底层数组
	DefaultLabel(l core.Label)

	// ParseLabel 从已分词的文本填充 l 及其旁路字段 rf；mem 是调用方持有的临时缓冲
	ParseLabel(l core.Label, rf *core.ReductionFeatures, mem *ReuseMem, words []string) error

	// CacheLabel 把 l 写入缓存流；name 是文本模式下的字段名前缀
	CacheLabel(l core.Label, rf *core.ReductionFeatures, w *modelio.Writer, name string) (int, error)

	// ReadCachedLabel 从缓存流读回 l，字段顺序与 CacheLabel 一致
	ReadCachedLabel(l core.Label, rf *core.ReductionFeatures, r *modelio.Reader, name string) (int, error)

	// Weight 返回样本的重要性权重
	Weight(l core.Label, rf *core.ReductionFeatures) float32

	// IsTestLabel 当 label 不携带任何可用监督信息时为 true
	IsTestLabel(l core.Label) bool
}

// ReuseMem 是解析时复用的临时缓冲，归样本处理循环所有，每次解析借用一次。
// Words 供行级切分使用，Tokens 供 label 解析器切分子字段使用，两者互不覆盖。
type ReuseMem struct {
	Words  []string
	Tokens []string
}

// Clear 清空缓冲，保留底层数组。
func (m *ReuseMem) Clear() {
	m.Words = m.Words[:0]
	m.Tokens = m.Tokens[:0]
}

// SplitWords 按空白切分 s 到 m.Words。
func (m *ReuseMem) SplitWords(s string) []string {
	m.Words = m.Words[:0]
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		if s == "" {
			return m.Words
		}
		i := strings.IndexAny(s, " \t\r\n")
		if i < 0 {
			m.Words = append(m.Words, s)
			return m.Words
		}
		m.Words = append(m.Words, s[:i])
		s = s[i:]
	}
}

// Tokenize 按 delim 切分 s 到 m.Tokens，跳过空片段。
func (m *ReuseMem) Tokenize(delim byte, s string) []string {
	m.Tokens = m.Tokens[:0]
	for len(s) > 0 {
		i := strings.IndexByte(s, delim)
		if i < 0 {
			m.Tokens = append(m.Tokens, s)
			break
		}
		if i > 0 {
			m.Tokens = append(m.Tokens, s[:i])
		}
		s = s[i+1:]
	}
	return m.Tokens
}

// New 返回 label 变体 t 的描述符。
func New(t core.LabelType, logger *zap.Logger) (Parser, error) {
	switch t {
	case core.LabelSimple:
		return NewSimpleParser(logger), nil
	case core.LabelCS:
		return NewCSParser(logger), nil
	case core.LabelContinuous:
		return NewContinuousParser(logger), nil
	default:
		return nil, core.Errorf(core.ModuleLabel, core.ErrorCodeNotSupported,
			"no label parser for label type %s", t)
	}
}

// floatOfString 解析浮点数；无法解析时告警并返回 0，字面量 "nan" 返回 NaN 交由调用方判定。
func floatOfString(s string, logger *zap.Logger) float32 {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return float32(f)
		}
		logger.Warn("not a good float, replacing with 0", zap.String("value", s))
		return 0
	}
	return float32(f)
}

func isNaN(f float32) bool { return math.IsNaN(float64(f)) }

func parseError(format string, args ...any) error {
	return core.Errorf(core.ModuleLabel, core.ErrorCodeParse, format, args...)
}

func mismatch(want core.LabelType, l core.Label) error {
	got := "nil"
	if l != nil {
		got = l.Type().String()
	}
	return core.Errorf(core.ModuleLabel, core.ErrorCodeIncompatible,
		"label parser for %s received %s label", want, got)
}

// maxCachedCosts 限制缓存中单个 label 的 cost 条目数，防止损坏的缓存触发超大分配。
const maxCachedCosts = 1 << 24
