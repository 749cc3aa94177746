package model

import (
	"math"

	"go.uber.org/zap"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/learner"
	"github.com/rushteam/learnkit/loss"
	"github.com/rushteam/learnkit/pkg/modelio"
)

// LinearName 是线性 learner 在配置中的类型名。
const LinearName = "gd"

// 默认配置
const (
	DefaultBits         = 18
	DefaultLearningRate = 0.5
	MaxBits             = 30
)

// LinearConfig 是线性 learner 的配置。
type LinearConfig struct {
	Bits         uint    // 权重表大小为 2^Bits
	LearningRate float32 // 学习率 η
	PowerT       float32 // 学习率衰减指数，0 表示不衰减
	InitialT     float32 // 衰减的初始计数
}

// Linear 是学习栈的底层 learner：基于哈希特征的稀疏在线线性回归。
//
// 预测原理：
//  1. 线性加权求和: p = initial + sum(w[(hash*stride + offset) & mask] * x)
//  2. 截断到 SharedData 记录的 label 区间
//
// 更新：w_i += loss.Update(p, y, η_t*weight, sum(x^2)) * x_i，
// 其中 η_t = η * (InitialT / (InitialT + t))^PowerT，t 为累计样本权重。
type Linear struct {
	cfg     LinearConfig
	mask    uint64
	stride  uint64
	weights []float32
	t       float64

	loss   loss.Func
	sd     *core.SharedData
	logger *zap.Logger
}

// NewLinear 创建线性 learner。
func NewLinear(lossFn loss.Func, sd *core.SharedData, cfg LinearConfig, logger *zap.Logger) (*Linear, error) {
	if cfg.Bits == 0 {
		cfg.Bits = DefaultBits
	}
	if cfg.Bits > MaxBits {
		return nil, core.Errorf(core.ModuleLearner, core.ErrorCodeInvalidConfig,
			"gd: bits %d out of range [1, %d]", cfg.Bits, MaxBits)
	}
	if cfg.LearningRate <= 0 || math.IsNaN(float64(cfg.LearningRate)) {
		return nil, core.Errorf(core.ModuleLearner, core.ErrorCodeInvalidConfig,
			"gd: learning rate must be positive, got %g", cfg.LearningRate)
	}
	if cfg.PowerT < 0 {
		return nil, core.Errorf(core.ModuleLearner, core.ErrorCodeInvalidConfig,
			"gd: power_t must be non-negative, got %g", cfg.PowerT)
	}
	if cfg.InitialT <= 0 {
		cfg.InitialT = 1
	}
	if lossFn == nil {
		return nil, core.Errorf(core.ModuleLearner, core.ErrorCodeInvalidConfig, "gd: loss function is required")
	}
	if sd == nil {
		sd = core.NewSharedData()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	size := uint64(1) << cfg.Bits
	return &Linear{
		cfg:     cfg,
		mask:    size - 1,
		stride:  1,
		weights: make([]float32, size),
		loss:    lossFn,
		sd:      sd,
		logger:  logger,
	}, nil
}

func (m *Linear) Name() string { return LinearName }

func (m *Linear) Spec() learner.Spec {
	return learner.Spec{
		InputLabel:             core.LabelSimple,
		OutputPrediction:       core.PredictionScalar,
		BaseLabel:              core.LabelNone,
		BasePrediction:         core.PredictionNone,
		ParamsPerWeight:        1,
		LearnReturnsPrediction: true,
	}
}

// SetStride 由学习栈在构建完成后调用。
func (m *Linear) SetStride(stride uint64) {
	if stride == 0 {
		stride = 1
	}
	m.stride = stride
}

// Weight 返回特征 hash 在偏移 offset 处的权重。
func (m *Linear) Weight(hash, offset uint64) float32 {
	return m.weights[m.index(hash, offset)]
}

func (m *Linear) index(hash, offset uint64) uint64 {
	return (hash*m.stride + offset) & m.mask
}

func (m *Linear) dot(ec *core.Example, offset uint64) float32 {
	sum := ec.ReductionFeatures.Simple.Initial
	for i := range ec.Namespaces {
		fs := &ec.Namespaces[i].Features
		for j, h := range fs.Indices {
			sum += m.weights[m.index(h, offset)] * fs.Values[j]
		}
	}
	return sum
}

func (m *Linear) finalize(raw float32) float32 {
	if math.IsNaN(float64(raw)) {
		m.logger.Warn("gd: NaN prediction, replacing with 0")
		return 0
	}
	return m.sd.Clip(raw)
}

func (m *Linear) Predict(ec *core.Example) error {
	ec.PartialPrediction = m.dot(ec, ec.FtOffset)
	ec.Pred.SetScalar(m.finalize(ec.PartialPrediction))
	return nil
}

// Multipredict 为 count 个连续偏移一次性打分。
func (m *Linear) Multipredict(ec *core.Example, step uint64, count int, preds []core.Prediction, finalize bool) error {
	for c := 0; c < count; c++ {
		raw := m.dot(ec, ec.FtOffset+uint64(c)*step)
		if finalize {
			raw = m.finalize(raw)
		}
		preds[c].SetScalar(raw)
	}
	return nil
}

func (m *Linear) Learn(ec *core.Example) error {
	if err := m.Predict(ec); err != nil {
		return err
	}
	ld, ok := ec.Label.(*core.SimpleLabel)
	if !ok {
		return core.Errorf(core.ModuleLearner, core.ErrorCodeIncompatible,
			"gd: expected a simple label, got %T", ec.Label)
	}
	if ld.Label == core.FLTMax || ec.Weight <= 0 || ec.TestOnly {
		return nil
	}
	m.sd.ObserveLabel(ld.Label)

	var sumSq float32
	for i := range ec.Namespaces {
		for _, v := range ec.Namespaces[i].Features.Values {
			sumSq += v * v
		}
	}
	if sumSq == 0 {
		return nil
	}

	eta := m.cfg.LearningRate
	if m.cfg.PowerT > 0 {
		eta *= float32(math.Pow(float64(m.cfg.InitialT)/(float64(m.cfg.InitialT)+m.t), float64(m.cfg.PowerT)))
	}
	m.t += float64(ec.Weight)

	update := m.loss.Update(ec.Pred.Scalar, ld.Label, eta*ec.Weight, sumSq)
	if update == 0 || math.IsNaN(float64(update)) || math.IsInf(float64(update), 0) {
		return nil
	}
	for i := range ec.Namespaces {
		fs := &ec.Namespaces[i].Features
		for j, h := range fs.Indices {
			m.weights[m.index(h, ec.FtOffset)] += update * fs.Values[j]
		}
	}
	return nil
}

func (m *Linear) FinishExample(r core.Reporter, ec *core.Example) {
	ld, _ := ec.Label.(*core.SimpleLabel)
	test := ld == nil || ld.Label == core.FLTMax
	ec.Loss = 0
	if !test {
		ec.Loss = m.loss.Loss(m.sd, ec.Pred.Scalar, ld.Label) * ec.Weight
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

// Save 写出 bits、label 区间、衰减计数以及所有非零权重。
func (m *Linear) Save(w *modelio.Writer) error {
	if _, err := modelio.WriteField(w, uint32(m.cfg.Bits), "gd.bits"); err != nil {
		return err
	}
	if _, err := modelio.WriteField(w, m.sd.MinLabel, "gd.min_label"); err != nil {
		return err
	}
	if _, err := modelio.WriteField(w, m.sd.MaxLabel, "gd.max_label"); err != nil {
		return err
	}
	if _, err := modelio.WriteField(w, m.t, "gd.t"); err != nil {
		return err
	}
	var nonZero uint64
	for _, v := range m.weights {
		if v != 0 {
			nonZero++
		}
	}
	if _, err := modelio.WriteField(w, nonZero, "gd.weights.size"); err != nil {
		return err
	}
	for i, v := range m.weights {
		if v == 0 {
			continue
		}
		if _, err := modelio.WriteField(w, uint64(i), "gd.weight.index"); err != nil {
			return err
		}
		if _, err := modelio.WriteField(w, v, "gd.weight.value"); err != nil {
			return err
		}
	}
	return nil
}

// Load 读入 Save 写出的状态；bits 必须与当前配置一致。
func (m *Linear) Load(r *modelio.Reader) error {
	var bits uint32
	if _, err := modelio.ReadField(r, &bits, "gd.bits"); err != nil {
		return err
	}
	if uint(bits) != m.cfg.Bits {
		return core.Errorf(core.ModuleLearner, core.ErrorCodeIncompatible,
			"gd: model has %d bits, learner configured with %d", bits, m.cfg.Bits)
	}
	if _, err := modelio.ReadField(r, &m.sd.MinLabel, "gd.min_label"); err != nil {
		return err
	}
	if _, err := modelio.ReadField(r, &m.sd.MaxLabel, "gd.max_label"); err != nil {
		return err
	}
	if _, err := modelio.ReadField(r, &m.t, "gd.t"); err != nil {
		return err
	}
	var n uint64
	if _, err := modelio.ReadField(r, &n, "gd.weights.size"); err != nil {
		return err
	}
	if n > uint64(len(m.weights)) {
		return core.Errorf(core.ModuleLearner, core.ErrorCodeInvalidInput,
			"gd: model has %d weights, table holds %d", n, len(m.weights))
	}
	clear(m.weights)
	for k := uint64(0); k < n; k++ {
		var (
			idx uint64
			v   float32
		)
		if _, err := modelio.ReadField(r, &idx, "gd.weight.index"); err != nil {
			return err
		}
		if _, err := modelio.ReadField(r, &v, "gd.weight.value"); err != nil {
			return err
		}
		if idx > m.mask {
			return core.Errorf(core.ModuleLearner, core.ErrorCodeInvalidInput,
				"gd: weight index %d out of range", idx)
		}
		m.weights[idx] = v
	}
	return nil
}
