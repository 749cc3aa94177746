package label

import (
	"go.uber.org/zap"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/pkg/modelio"
)

// SimpleParser 解析标量回归 label：<label> [<weight> [<initial>]]。
// 空 label 表示测试样本（Label == core.FLTMax）。
type SimpleParser struct {
	logger *zap.Logger
}

// NewSimpleParser 创建 simple label 解析器。
func NewSimpleParser(logger *zap.Logger) *SimpleParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimpleParser{logger: logger}
}

func (p *SimpleParser) Type() core.LabelType { return core.LabelSimple }

func (p *SimpleParser) NewLabel() core.Label { return &core.SimpleLabel{Label: core.FLTMax} }

func (p *SimpleParser) DefaultLabel(l core.Label) {
	if ld, ok := l.(*core.SimpleLabel); ok {
		ld.Label = core.FLTMax
	}
}

func (p *SimpleParser) ParseLabel(l core.Label, rf *core.ReductionFeatures, _ *ReuseMem, words []string) error {
	ld, ok := l.(*core.SimpleLabel)
	if !ok {
		return mismatch(core.LabelSimple, l)
	}
	ld.Label = core.FLTMax
	rf.Simple.Reset()

	switch len(words) {
	case 0:
	case 3:
		rf.Simple.Initial = floatOfString(words[2], p.logger)
		fallthrough
	case 2:
		rf.Simple.Weight = floatOfString(words[1], p.logger)
		fallthrough
	case 1:
		ld.Label = floatOfString(words[0], p.logger)
	default:
		return parseError("too many words (%d) for a simple label", len(words))
	}
	if isNaN(ld.Label) {
		return parseError("error NaN label %q", words[0])
	}
	return nil
}

func (p *SimpleParser) CacheLabel(l core.Label, rf *core.ReductionFeatures, w *modelio.Writer, name string) (int, error) {
	ld, ok := l.(*core.SimpleLabel)
	if !ok {
		return 0, mismatch(core.LabelSimple, l)
	}
	total := 0
	for _, f := range [...]struct {
		v    float32
		name string
	}{
		{ld.Label, name + "_label"},
		{rf.Simple.Weight, name + "_weight"},
		{rf.Simple.Initial, name + "_initial"},
	} {
		n, err := modelio.WriteField(w, f.v, f.name)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (p *SimpleParser) ReadCachedLabel(l core.Label, rf *core.ReductionFeatures, r *modelio.Reader, name string) (int, error) {
	ld, ok := l.(*core.SimpleLabel)
	if !ok {
		return 0, mismatch(core.LabelSimple, l)
	}
	total := 0
	for _, f := range [...]struct {
		v    *float32
		name string
	}{
		{&ld.Label, name + "_label"},
		{&rf.Simple.Weight, name + "_weight"},
		{&rf.Simple.Initial, name + "_initial"},
	} {
		n, err := modelio.ReadField(r, f.v, f.name)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (p *SimpleParser) Weight(_ core.Label, rf *core.ReductionFeatures) float32 {
	return rf.Simple.Weight
}

func (p *SimpleParser) IsTestLabel(l core.Label) bool {
	ld, ok := l.(*core.SimpleLabel)
	return !ok || ld.Label == core.FLTMax
}
