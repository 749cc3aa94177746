package label

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/pkg/modelio"
)

// CSParser 解析 cost-sensitive 多分类 label：<class>[:<cost>] ...
// 只给出类号（不带 cost）表示该类 cost 未知，全部未知即为测试样本。
type CSParser struct {
	logger *zap.Logger
}

// NewCSParser 创建 cost-sensitive label 解析器。
func NewCSParser(logger *zap.Logger) *CSParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSParser{logger: logger}
}

func (p *CSParser) Type() core.LabelType { return core.LabelCS }

func (p *CSParser) NewLabel() core.Label { return &core.CSLabel{} }

func (p *CSParser) DefaultLabel(l core.Label) {
	if ld, ok := l.(*core.CSLabel); ok {
		ld.Costs = ld.Costs[:0]
	}
}

func (p *CSParser) ParseLabel(l core.Label, _ *core.ReductionFeatures, mem *ReuseMem, words []string) error {
	ld, ok := l.(*core.CSLabel)
	if !ok {
		return mismatch(core.LabelCS, l)
	}
	ld.Costs = ld.Costs[:0]

	for _, word := range words {
		tokens := mem.Tokenize(':', word)
		if len(tokens) == 0 || len(tokens) > 2 {
			return parseError("malformed cost specification: %q", word)
		}
		idx, err := strconv.ParseUint(tokens[0], 10, 32)
		if err != nil {
			return parseError("invalid class index %q: %v", tokens[0], err)
		}
		c := core.CSClass{ClassIndex: uint32(idx), Cost: core.FLTMax}
		if len(tokens) == 2 {
			c.Cost = floatOfString(tokens[1], p.logger)
			if isNaN(c.Cost) {
				return parseError("error NaN cost (%s) for class: %s", tokens[1], tokens[0])
			}
		}
		ld.Costs = append(ld.Costs, c)
	}
	return nil
}

func (p *CSParser) CacheLabel(l core.Label, _ *core.ReductionFeatures, w *modelio.Writer, name string) (int, error) {
	ld, ok := l.(*core.CSLabel)
	if !ok {
		return 0, mismatch(core.LabelCS, l)
	}
	prefix := name + "_costs"
	total, err := modelio.WriteField(w, uint32(len(ld.Costs)), prefix+".size")
	if err != nil {
		return total, err
	}
	for i, c := range ld.Costs {
		elm := elementName(w.Text(), prefix, i)
		n, err := modelio.WriteField(w, c.Cost, elm+"_x")
		total += n
		if err != nil {
			return total, err
		}
		n, err = modelio.WriteField(w, c.ClassIndex, elm+"_class_index")
		total += n
		if err != nil {
			return total, err
		}
		n, err = modelio.WriteField(w, c.PartialPrediction, elm+"_partial_prediction")
		total += n
		if err != nil {
			return total, err
		}
		n, err = modelio.WriteField(w, c.WAPValue, elm+"_wap_value")
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (p *CSParser) ReadCachedLabel(l core.Label, _ *core.ReductionFeatures, r *modelio.Reader, name string) (int, error) {
	ld, ok := l.(*core.CSLabel)
	if !ok {
		return 0, mismatch(core.LabelCS, l)
	}
	prefix := name + "_costs"
	var size uint32
	total, err := modelio.ReadField(r, &size, prefix+".size")
	if err != nil {
		return total, err
	}
	if size > maxCachedCosts {
		return total, core.Errorf(core.ModuleLabel, core.ErrorCodeInvalidInput,
			"cached cs label has %d costs", size)
	}
	ld.Costs = ld.Costs[:0]
	for i := uint32(0); i < size; i++ {
		var c core.CSClass
		elm := elementName(r.Text(), prefix, int(i))
		n, err := modelio.ReadField(r, &c.Cost, elm+"_x")
		total += n
		if err != nil {
			return total, err
		}
		n, err = modelio.ReadField(r, &c.ClassIndex, elm+"_class_index")
		total += n
		if err != nil {
			return total, err
		}
		n, err = modelio.ReadField(r, &c.PartialPrediction, elm+"_partial_prediction")
		total += n
		if err != nil {
			return total, err
		}
		n, err = modelio.ReadField(r, &c.WAPValue, elm+"_wap_value")
		total += n
		if err != nil {
			return total, err
		}
		ld.Costs = append(ld.Costs, c)
	}
	return total, nil
}

func (p *CSParser) Weight(core.Label, *core.ReductionFeatures) float32 { return 1 }

func (p *CSParser) IsTestLabel(l core.Label) bool {
	ld, ok := l.(*core.CSLabel)
	return !ok || ld.IsTest()
}
