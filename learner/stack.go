package learner

import (
	"io"

	"go.uber.org/zap"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/label"
	"github.com/rushteam/learnkit/loss"
	"github.com/rushteam/learnkit/pkg/modelio"
)

// 模型文件头与版本号。
const (
	ModelHeader  = "learnkit-model"
	ModelVersion = uint32(1)
)

// Env 是构建节点时可用的运行期依赖。
type Env struct {
	// Base 是下层句柄；构建底层 learner 时为 nil
	Base *Base

	Loss       loss.Func
	SharedData *core.SharedData
	Logger     *zap.Logger
}

// BuildFunc 在给定环境下构建一个节点。
type BuildFunc func(env *Env) (Node, error)

// Stack 是自底向上组装好的学习栈，nodes[0] 为底层 learner，最后一个为栈顶。
// Stack 不是并发安全的：同一时刻只能处理一个样本。
type Stack struct {
	name   string
	nodes  []Node
	stride uint64
	labels label.Parser
	loss   loss.Func
	sd     *core.SharedData
	logger *zap.Logger
}

// StackOption 学习栈配置选项
type StackOption func(*Stack)

// WithName 设置栈名（用于日志）
func WithName(name string) StackOption {
	return func(s *Stack) {
		s.name = name
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) StackOption {
	return func(s *Stack) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSharedData 使用外部提供的共享统计量
func WithSharedData(sd *core.SharedData) StackOption {
	return func(s *Stack) {
		if sd != nil {
			s.sd = sd
		}
	}
}

// NewStack 先构建底层 learner，再自下而上依次构建 reductions。
// 每构建一个 reduction 都会校验它对下层的 label / prediction 要求，不匹配返回 INCOMPATIBLE 错误。
func NewStack(lossFn loss.Func, base BuildFunc, reductions []BuildFunc, opts ...StackOption) (*Stack, error) {
	s := &Stack{
		name:   "default",
		loss:   lossFn,
		sd:     core.NewSharedData(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if lossFn == nil {
		return nil, s.setupError(core.ErrorCodeInvalidConfig, "loss function is required")
	}
	if base == nil {
		return nil, s.setupError(core.ErrorCodeInvalidConfig, "base learner is required")
	}

	bottom, err := base(&Env{Loss: lossFn, SharedData: s.sd, Logger: s.logger})
	if err != nil {
		return nil, err
	}
	s.nodes = append(s.nodes, bottom)
	increment := paramsPerWeight(bottom)

	for _, build := range reductions {
		below := s.nodes[len(s.nodes)-1]
		env := &Env{
			Base:       NewBase(below, increment),
			Loss:       lossFn,
			SharedData: s.sd,
			Logger:     s.logger,
		}
		node, err := build(env)
		if err != nil {
			return nil, err
		}
		if err := checkCompatible(node, below); err != nil {
			return nil, err
		}
		s.nodes = append(s.nodes, node)
		increment *= paramsPerWeight(node)
	}
	s.stride = increment

	if ss, ok := bottom.(StrideSetter); ok {
		ss.SetStride(s.stride)
	}
	labels, err := label.New(s.Top().Spec().InputLabel, s.logger)
	if err != nil {
		return nil, err
	}
	s.labels = labels

	s.logger.Info("learner stack ready",
		zap.String("stack", s.name),
		zap.Strings("nodes", s.NodeNames()),
		zap.Uint64("stride", s.stride),
		zap.String("label", labels.Type().String()),
		zap.String("loss", lossFn.Type()))
	return s, nil
}

func paramsPerWeight(n Node) uint64 {
	if ppw := n.Spec().ParamsPerWeight; ppw > 0 {
		return ppw
	}
	return 1
}

func checkCompatible(node, below Node) error {
	want, got := node.Spec(), below.Spec()
	if want.BaseLabel != got.InputLabel {
		return core.Errorf(core.ModuleLearner, core.ErrorCodeIncompatible,
			"%s passes %s labels to its base, but %s reads %s labels",
			node.Name(), want.BaseLabel, below.Name(), got.InputLabel)
	}
	if want.BasePrediction != got.OutputPrediction {
		return core.Errorf(core.ModuleLearner, core.ErrorCodeIncompatible,
			"%s expects %s predictions from its base, but %s produces %s predictions",
			node.Name(), want.BasePrediction, below.Name(), got.OutputPrediction)
	}
	return nil
}

func (s *Stack) setupError(code, msg string) error {
	return core.Errorf(core.ModuleLearner, code, "stack %s: %s", s.name, msg)
}

// Name 返回栈名。
func (s *Stack) Name() string { return s.name }

// Top 返回栈顶节点。
func (s *Stack) Top() Node { return s.nodes[len(s.nodes)-1] }

// Nodes 返回自底向上的节点列表。
func (s *Stack) Nodes() []Node { return s.nodes }

// NodeNames 返回自底向上的节点名。
func (s *Stack) NodeNames() []string {
	names := make([]string, len(s.nodes))
	for i, n := range s.nodes {
		names[i] = n.Name()
	}
	return names
}

// Stride 返回整栈的权重步长（各层 ParamsPerWeight 之积）。
func (s *Stack) Stride() uint64 { return s.stride }

// LabelParser 返回按栈顶输入 label 选定的描述符。
func (s *Stack) LabelParser() label.Parser { return s.labels }

// Loss 返回本次运行的损失函数。
func (s *Stack) Loss() loss.Func { return s.loss }

// SharedData 返回共享统计量。
func (s *Stack) SharedData() *core.SharedData { return s.sd }

// Logger 返回日志。
func (s *Stack) Logger() *zap.Logger { return s.logger }

// LearnReturnsPrediction 返回栈顶的 Learn 是否同时产出 prediction。
func (s *Stack) LearnReturnsPrediction() bool { return s.Top().Spec().LearnReturnsPrediction }

// Learn 以栈顶节点学习一个样本。
func (s *Stack) Learn(ec *core.Example) error { return s.Top().Learn(ec) }

// Predict 以栈顶节点预测一个样本。
func (s *Stack) Predict(ec *core.Example) error { return s.Top().Predict(ec) }

// FinishExample 以栈顶节点上报样本结果。
func (s *Stack) FinishExample(r core.Reporter, ec *core.Example) { s.Top().FinishExample(r, ec) }

// Save 写出模型：文件头、版本、节点数，然后自底向上写出每个实现了 Saver 的节点。
func (s *Stack) Save(w *modelio.Writer) error {
	if _, err := w.WriteString(ModelHeader, "header"); err != nil {
		return err
	}
	if _, err := modelio.WriteField(w, ModelVersion, "version"); err != nil {
		return err
	}
	if _, err := modelio.WriteField(w, uint32(len(s.nodes)), "nodes"); err != nil {
		return err
	}
	for _, n := range s.nodes {
		if _, err := w.WriteString(n.Name(), "node"); err != nil {
			return err
		}
		if saver, ok := n.(Saver); ok {
			if err := saver.Save(w); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// Load 读入 Save 写出的模型。节点名与层数必须与当前栈一致。
func (s *Stack) Load(r *modelio.Reader) error {
	header, _, err := r.ReadString("header")
	if err != nil {
		return err
	}
	if header != ModelHeader {
		return core.Errorf(core.ModuleLearner, core.ErrorCodeIncompatible, "not a model file: header %q", header)
	}
	var version, count uint32
	if _, err := modelio.ReadField(r, &version, "version"); err != nil {
		return err
	}
	if version != ModelVersion {
		return core.Errorf(core.ModuleLearner, core.ErrorCodeIncompatible,
			"unsupported model version %d (want %d)", version, ModelVersion)
	}
	if _, err := modelio.ReadField(r, &count, "nodes"); err != nil {
		return err
	}
	if int(count) != len(s.nodes) {
		return core.Errorf(core.ModuleLearner, core.ErrorCodeIncompatible,
			"model has %d nodes, stack has %d", count, len(s.nodes))
	}
	for _, n := range s.nodes {
		name, _, err := r.ReadString("node")
		if err != nil {
			return err
		}
		if name != n.Name() {
			return core.Errorf(core.ModuleLearner, core.ErrorCodeIncompatible,
				"model node %q does not match stack node %q", name, n.Name())
		}
		if saver, ok := n.(Saver); ok {
			if err := saver.Load(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close 自顶向下释放实现了 io.Closer 的节点。
func (s *Stack) Close() error {
	var first error
	for i := len(s.nodes) - 1; i >= 0; i-- {
		if c, ok := s.nodes[i].(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
