// Package reduction 实现叠加在底层 learner 之上的具体 reduction。
package reduction

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/learner"
	"github.com/rushteam/learnkit/pkg/modelio"
)

// CSOAAName 是 CSOAA 在配置中的类型名。
const CSOAAName = "csoaa"

// Indexing 是类号的编号方式。
type Indexing int

const (
	IndexingAuto Indexing = -1 // 由第一个出现的 0 或 num_classes 决定
	IndexingZero Indexing = 0
	IndexingOne  Indexing = 1
)

func (i Indexing) String() string {
	switch i {
	case IndexingAuto:
		return "auto"
	case IndexingZero:
		return "0"
	case IndexingOne:
		return "1"
	default:
		return fmt.Sprintf("indexing(%d)", int(i))
	}
}

// ParseIndexing 解析配置中的 indexing：0、1、"0"、"1"、"auto" 或 nil（auto）。
func ParseIndexing(v any) (Indexing, error) {
	switch val := v.(type) {
	case nil:
		return IndexingAuto, nil
	case string:
		if val == "" || val == "auto" {
			return IndexingAuto, nil
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, invalidIndexing(v)
		}
		return ParseIndexing(n)
	case int:
		return indexingOf(int64(val), v)
	case int64:
		return indexingOf(val, v)
	case float64:
		if val != float64(int64(val)) {
			return 0, invalidIndexing(v)
		}
		return indexingOf(int64(val), v)
	default:
		return 0, invalidIndexing(v)
	}
}

func indexingOf(n int64, raw any) (Indexing, error) {
	switch n {
	case 0:
		return IndexingZero, nil
	case 1:
		return IndexingOne, nil
	default:
		return 0, invalidIndexing(raw)
	}
}

func invalidIndexing(v any) error {
	return core.Errorf(core.ModuleReduction, core.ErrorCodeInvalidConfig,
		"csoaa: indexing must be one of {0, 1, auto}, got %v", v)
}

// CSOAAConfig 是 CSOAA 的配置。
type CSOAAConfig struct {
	Classes  uint32
	Indexing Indexing
	// Search 为 true 时跳过类号校验与编号探测（由上层搜索 reduction 保证类号合法）
	Search bool
}

// CSOAA 把 cost-sensitive 多分类拆成 k 个回归子问题：第 i 类以其 cost 为目标，
// 在第 i 个权重偏移上交给下层学习，预测时选出预测 cost 最小的类（相同时取较小类号）。
type CSOAA struct {
	base       *learner.Base
	numClasses uint32
	indexing   Indexing
	search     bool

	simple core.SimpleLabel
	preds  []core.Prediction
	logger *zap.Logger
}

// NewCSOAA 创建 CSOAA，base 为下层句柄。
func NewCSOAA(base *learner.Base, cfg CSOAAConfig, logger *zap.Logger) (*CSOAA, error) {
	if base == nil {
		return nil, core.Errorf(core.ModuleReduction, core.ErrorCodeInvalidConfig, "csoaa requires a base learner")
	}
	if cfg.Classes == 0 {
		return nil, core.Errorf(core.ModuleReduction, core.ErrorCodeInvalidConfig, "csoaa: number of classes must be positive")
	}
	switch cfg.Indexing {
	case IndexingAuto, IndexingZero, IndexingOne:
	default:
		return nil, invalidIndexing(int(cfg.Indexing))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSOAA{
		base:       base,
		numClasses: cfg.Classes,
		indexing:   cfg.Indexing,
		search:     cfg.Search,
		preds:      make([]core.Prediction, cfg.Classes),
		logger:     logger,
	}, nil
}

func (c *CSOAA) Name() string { return CSOAAName }

func (c *CSOAA) Spec() learner.Spec {
	return learner.Spec{
		InputLabel:             core.LabelCS,
		OutputPrediction:       core.PredictionMulticlass,
		BaseLabel:              core.LabelSimple,
		BasePrediction:         core.PredictionScalar,
		ParamsPerWeight:        uint64(c.numClasses),
		LearnReturnsPrediction: true,
	}
}

// NumClasses 返回类别数。
func (c *CSOAA) NumClasses() uint32 { return c.numClasses }

// Indexing 返回当前的编号方式；auto 一旦确定即固定。
func (c *CSOAA) Indexing() Indexing { return c.indexing }

func (c *CSOAA) Learn(ec *core.Example) error { return c.predictOrLearn(ec, true) }

func (c *CSOAA) Predict(ec *core.Example) error { return c.predictOrLearn(ec, false) }

// updateIndexing 按 label 探测编号方式，并把越界类号原地修正到边界类。
func (c *CSOAA) updateIndexing(ld *core.CSLabel) {
	for i := range ld.Costs {
		lbl := &ld.Costs[i].ClassIndex
		switch {
		case c.indexing == IndexingAuto && *lbl == 0:
			c.logger.Info("label 0 found -- labels are now considered 0-indexed")
			c.indexing = IndexingZero
		case c.indexing == IndexingAuto && *lbl == c.numClasses:
			c.logger.Info("label found -- labels are now considered 1-indexed", zap.Uint32("label", *lbl))
			c.indexing = IndexingOne
		}

		switch {
		case c.indexing == IndexingZero && *lbl >= c.numClasses:
			c.logger.Warn("label is not in {0, num_classes-1}, this won't work for 0-indexed actions",
				zap.Uint32("label", *lbl), zap.Uint32("num_classes", c.numClasses))
			*lbl = 0
		case c.indexing != IndexingZero && (*lbl < 1 || *lbl > c.numClasses):
			c.logger.Warn("label is not in {1, num_classes}, this won't work for 1-indexed actions",
				zap.Uint32("label", *lbl), zap.Uint32("num_classes", c.numClasses))
			*lbl = c.numClasses
		}
	}
}

// firstClass 返回最小的合法类号。尚未确定编号方式时按 1 起始处理。
func (c *CSOAA) firstClass() uint32 {
	if c.indexing == IndexingZero {
		return 0
	}
	return 1
}

func (c *CSOAA) offset(class uint32) uint64 {
	if c.indexing == IndexingZero || class == 0 {
		return uint64(class)
	}
	return uint64(class - 1)
}

func (c *CSOAA) predictOrLearn(ec *core.Example, learn bool) error {
	ld, ok := ec.Label.(*core.CSLabel)
	if !ok {
		return core.Errorf(core.ModuleReduction, core.ErrorCodeIncompatible,
			"csoaa: expected a cs label, got %T", ec.Label)
	}
	if !c.search {
		c.updateIndexing(ld)
	}

	savedWeight, savedSimple := ec.Weight, ec.ReductionFeatures.Simple
	defer func() {
		ec.Label = ld
		ec.Weight = savedWeight
		ec.ReductionFeatures.Simple = savedSimple
	}()
	c.simple.Label = 0
	ec.Label = &c.simple
	ec.ReductionFeatures.Simple.Reset()

	prediction := c.firstClass()
	score := core.FLTMax
	ptStart := 0
	if ec.Passthrough != nil {
		ptStart = ec.Passthrough.Len()
	}

	switch {
	case len(ld.Costs) > 0:
		for i := range ld.Costs {
			cl := &ld.Costs[i]
			if err := c.innerLoop(ec, learn, cl.ClassIndex, cl.Cost, &prediction, &score, &cl.PartialPrediction); err != nil {
				return err
			}
		}
		ec.PartialPrediction = score

	case !learn:
		c.simple.Label = core.FLTMax
		if err := c.base.Multipredict(ec, 0, int(c.numClasses), c.preds, false); err != nil {
			return err
		}
		first := c.firstClass()
		for k := uint32(0); k < c.numClasses; k++ {
			s := c.preds[k].Scalar
			ec.AddPassthrough(uint64(first+k), s)
			if s < c.preds[prediction-first].Scalar {
				prediction = first + k
			}
		}
		ec.PartialPrediction = c.preds[prediction-first].Scalar

	default:
		var partial float32
		first := c.firstClass()
		for k := uint32(0); k < c.numClasses; k++ {
			if err := c.innerLoop(ec, false, first+k, core.FLTMax, &prediction, &score, &partial); err != nil {
				return err
			}
		}
		ec.PartialPrediction = score
	}

	if ec.Passthrough != nil {
		addRunnerUp(ec, ptStart)
	}
	ec.Pred.SetMulticlass(prediction)
	return nil
}

func (c *CSOAA) innerLoop(ec *core.Example, learn bool, class uint32, cost float32,
	prediction *uint32, score, partial *float32) error {
	var err error
	if learn {
		ec.Weight = 1
		if cost == core.FLTMax {
			ec.Weight = 0
		}
		c.simple.Label = cost
		err = c.base.Learn(ec, c.offset(class))
	} else {
		err = c.base.Predict(ec, c.offset(class))
	}
	if err != nil {
		return err
	}

	*partial = ec.PartialPrediction
	if ec.PartialPrediction < *score || (ec.PartialPrediction == *score && class < *prediction) {
		*score = ec.PartialPrediction
		*prediction = class
	}
	ec.AddPassthrough(uint64(class), ec.PartialPrediction)
	return nil
}

// addRunnerUp 追加次优类的诊断：存在次优类时为 (2c, margin) 和 (2c+1+class, 1)，否则为 (3c, 1)，c 为常数特征哈希。
func addRunnerUp(ec *core.Example, ptStart int) {
	pt := ec.Passthrough
	end := pt.Len()
	var secondBest uint64
	secondCost := core.FLTMax
	for i := ptStart; i < end; i++ {
		v := pt.Values[i]
		if v > ec.PartialPrediction && v < secondCost {
			secondCost = v
			secondBest = pt.Indices[i]
		}
	}
	if secondCost < core.FLTMax {
		ec.AddPassthrough(core.ConstantHash*2, secondCost-ec.PartialPrediction)
		ec.AddPassthrough(core.ConstantHash*2+1+secondBest, 1)
		return
	}
	ec.AddPassthrough(core.ConstantHash*3, 1)
}

// FinishExample 计算 regret 形式的损失：(所选类的 cost - 最小已知 cost) * weight。
func (c *CSOAA) FinishExample(r core.Reporter, ec *core.Example) {
	ld, _ := ec.Label.(*core.CSLabel)
	test := ld == nil || ld.IsTest()
	ec.Loss = 0
	if !test {
		ec.Loss = c.regret(ld, ec.Pred.Multiclass) * ec.Weight
	}
	if r == nil {
		return
	}
	r.Report(core.Outcome{
		Prediction:  ec.Pred,
		Label:       ec.Label,
		Weight:      ec.Weight,
		Loss:        ec.Loss,
		Test:        test,
		NumFeatures: ec.NumFeatures(),
	})
}

func (c *CSOAA) regret(ld *core.CSLabel, predicted uint32) float32 {
	chosen := core.FLTMax
	lowest := core.FLTMax
	highest := float32(0)
	for _, cl := range ld.Costs {
		if cl.ClassIndex == predicted {
			chosen = cl.Cost
		}
		if cl.Cost == core.FLTMax {
			continue
		}
		if cl.Cost < lowest {
			lowest = cl.Cost
		}
		if cl.Cost > highest {
			highest = cl.Cost
		}
	}
	if chosen == core.FLTMax {
		c.logger.Warn("csoaa predicted an invalid class, are all multi-class labels in the {1..k} range?",
			zap.Uint32("prediction", predicted))
		chosen = highest
	}
	return chosen - lowest
}

// Save 写出类别数和已探测到的编号方式。
func (c *CSOAA) Save(w *modelio.Writer) error {
	if _, err := modelio.WriteField(w, c.numClasses, "csoaa.classes"); err != nil {
		return err
	}
	_, err := modelio.WriteField(w, int32(c.indexing), "csoaa.indexing")
	return err
}

// Load 读回编号方式；类别数必须与当前配置一致。
func (c *CSOAA) Load(r *modelio.Reader) error {
	var classes uint32
	if _, err := modelio.ReadField(r, &classes, "csoaa.classes"); err != nil {
		return err
	}
	if classes != c.numClasses {
		return core.Errorf(core.ModuleReduction, core.ErrorCodeIncompatible,
			"csoaa: model has %d classes, reduction configured with %d", classes, c.numClasses)
	}
	var indexing int32
	if _, err := modelio.ReadField(r, &indexing, "csoaa.indexing"); err != nil {
		return err
	}
	switch Indexing(indexing) {
	case IndexingAuto, IndexingZero, IndexingOne:
		c.indexing = Indexing(indexing)
		return nil
	default:
		return core.Errorf(core.ModuleReduction, core.ErrorCodeInvalidInput,
			"csoaa: invalid indexing %d in model", indexing)
	}
}
