package label

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/pkg/modelio"
)

// 连续动作 label 的文本关键字。
const (
	ContinuousMarker = "ca"
	PDFKeyword       = "pdf"
	ChosenKeyword    = "chosen_action"
)

// ContinuousParser 解析连续动作 contextual bandit label：
//
//	ca <action>:<cost>:<pdf_value> ... [pdf <left>:<right>:<density> ...] [chosen_action <action>]
type ContinuousParser struct {
	logger *zap.Logger
}

// NewContinuousParser 创建连续动作 label 解析器。
func NewContinuousParser(logger *zap.Logger) *ContinuousParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContinuousParser{logger: logger}
}

func (p *ContinuousParser) Type() core.LabelType { return core.LabelContinuous }

func (p *ContinuousParser) NewLabel() core.Label { return &core.ContinuousLabel{} }

func (p *ContinuousParser) DefaultLabel(l core.Label) {
	if ld, ok := l.(*core.ContinuousLabel); ok {
		ld.Costs = ld.Costs[:0]
	}
}

type caSection int

const (
	sectionCosts caSection = iota
	sectionPDF
	sectionChosen
)

func (p *ContinuousParser) ParseLabel(l core.Label, rf *core.ReductionFeatures, mem *ReuseMem, words []string) error {
	ld, ok := l.(*core.ContinuousLabel)
	if !ok {
		return mismatch(core.LabelContinuous, l)
	}
	ld.Costs = ld.Costs[:0]
	cats := &rf.Continuous
	cats.Reset()

	if len(words) == 0 {
		return nil
	}
	if words[0] != ContinuousMarker {
		return parseError("continuous actions labels require the first word to be %s, got %q", ContinuousMarker, words[0])
	}

	var (
		section     = sectionCosts
		sawPDF      bool
		chosenTaken bool
	)
	for _, word := range words[1:] {
		switch word {
		case PDFKeyword:
			section = sectionPDF
			sawPDF = true
			continue
		case ChosenKeyword:
			section = sectionChosen
			continue
		}

		switch section {
		case sectionCosts:
			c, err := p.parseCost(word, mem)
			if err != nil {
				return err
			}
			ld.Costs = append(ld.Costs, c)
		case sectionPDF:
			tokens := mem.Tokenize(':', word)
			if len(tokens) < 3 {
				continue
			}
			cats.PDF = append(cats.PDF, core.PDFSegment{
				Left:     floatOfString(tokens[0], p.logger),
				Right:    floatOfString(tokens[1], p.logger),
				PDFValue: floatOfString(tokens[2], p.logger),
			})
		case sectionChosen:
			if chosenTaken {
				continue
			}
			tokens := mem.Tokenize(':', word)
			if len(tokens) < 1 {
				continue
			}
			cats.ChosenAction = floatOfString(tokens[0], p.logger)
			chosenTaken = true
		}
	}

	if sawPDF && !cats.PDF.IsValid() {
		if len(cats.PDF) > 0 {
			p.logger.Warn("invalid pdf specified, discarding it", zap.Int("segments", len(cats.PDF)))
		}
		cats.PDF = cats.PDF[:0]
	}
	return nil
}

func (p *ContinuousParser) parseCost(word string, mem *ReuseMem) (core.ContinuousCost, error) {
	tokens := mem.Tokenize(':', word)
	if len(tokens) == 0 || len(tokens) > 4 {
		return core.ContinuousCost{}, parseError("malformed cost specification: %q", word)
	}

	c := core.ContinuousCost{Action: floatOfString(tokens[0], p.logger)}
	if len(tokens) > 1 {
		c.Cost = floatOfString(tokens[1], p.logger)
	}
	if isNaN(c.Cost) {
		return c, parseError("error NaN cost (%s) for action: %s", tokens[1], tokens[0])
	}
	if len(tokens) > 2 {
		c.PDFValue = floatOfString(tokens[2], p.logger)
	}
	if isNaN(c.PDFValue) {
		return c, parseError("error NaN pdf_value (%s) for action: %s", tokens[2], tokens[0])
	}
	if c.PDFValue < 0 {
		p.logger.Warn("invalid pdf_value < 0 specified for an action, resetting to 0",
			zap.String("token", word))
		c.PDFValue = 0
	}
	return c, nil
}

func (p *ContinuousParser) CacheLabel(l core.Label, _ *core.ReductionFeatures, w *modelio.Writer, name string) (int, error) {
	ld, ok := l.(*core.ContinuousLabel)
	if !ok {
		return 0, mismatch(core.LabelContinuous, l)
	}
	prefix := name + "_costs"
	total, err := modelio.WriteField(w, uint32(len(ld.Costs)), prefix+".size")
	if err != nil {
		return total, err
	}
	for i, c := range ld.Costs {
		elm := elementName(w.Text(), prefix, i)
		for _, f := range [...]struct {
			v    float32
			name string
		}{
			{c.Action, elm + "_action"},
			{c.Cost, elm + "_cost"},
			{c.PDFValue, elm + "_pdf_value"},
		} {
			n, err := modelio.WriteField(w, f.v, f.name)
			total += n
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (p *ContinuousParser) ReadCachedLabel(l core.Label, _ *core.ReductionFeatures, r *modelio.Reader, name string) (int, error) {
	ld, ok := l.(*core.ContinuousLabel)
	if !ok {
		return 0, mismatch(core.LabelContinuous, l)
	}
	prefix := name + "_costs"
	var size uint32
	total, err := modelio.ReadField(r, &size, prefix+".size")
	if err != nil {
		return total, err
	}
	if size > maxCachedCosts {
		return total, core.Errorf(core.ModuleLabel, core.ErrorCodeInvalidInput,
			"cached continuous label has %d costs", size)
	}
	ld.Costs = ld.Costs[:0]
	for i := uint32(0); i < size; i++ {
		var c core.ContinuousCost
		elm := elementName(r.Text(), prefix, int(i))
		for _, f := range [...]struct {
			v    *float32
			name string
		}{
			{&c.Action, elm + "_action"},
			{&c.Cost, elm + "_cost"},
			{&c.PDFValue, elm + "_pdf_value"},
		} {
			n, err := modelio.ReadField(r, f.v, f.name)
			total += n
			if err != nil {
				return total, err
			}
		}
		ld.Costs = append(ld.Costs, c)
	}
	return total, nil
}

// elementName 只在文本模式下生成带下标的字段名，二进制模式不需要字段名。
func elementName(text bool, prefix string, i int) string {
	if !text {
		return ""
	}
	return fmt.Sprintf("%s[%d]", prefix, i)
}

// Weight 对连续动作 label 恒为 1，与 label 内容无关。
func (p *ContinuousParser) Weight(core.Label, *core.ReductionFeatures) float32 { return 1 }

func (p *ContinuousParser) IsTestLabel(l core.Label) bool {
	ld, ok := l.(*core.ContinuousLabel)
	return !ok || ld.IsTest()
}
