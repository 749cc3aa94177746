package learner

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/loss"
	"github.com/rushteam/learnkit/pkg/modelio"
)

// scorer 是按权重偏移查表打分的底层 learner。
type scorer struct {
	scores  map[uint64]float32
	offsets []uint64
	stride  uint64
	bias    float32
	closed  *[]string
}

func (s *scorer) Name() string { return "scorer" }

func (s *scorer) Spec() Spec {
	return Spec{InputLabel: core.LabelSimple, OutputPrediction: core.PredictionScalar, ParamsPerWeight: 1}
}

func (s *scorer) Learn(ec *core.Example) error {
	s.offsets = append(s.offsets, ec.FtOffset)
	return s.Predict(ec)
}

func (s *scorer) Predict(ec *core.Example) error {
	ec.PartialPrediction = s.scores[ec.FtOffset] + s.bias
	ec.Pred.SetScalar(ec.PartialPrediction)
	return nil
}

func (s *scorer) FinishExample(core.Reporter, *core.Example) {}

func (s *scorer) SetStride(stride uint64) { s.stride = stride }

func (s *scorer) Save(w *modelio.Writer) error {
	_, err := modelio.WriteField(w, s.bias, "bias")
	return err
}

func (s *scorer) Load(r *modelio.Reader) error {
	_, err := modelio.ReadField(r, &s.bias, "bias")
	return err
}

func (s *scorer) Close() error {
	if s.closed != nil {
		*s.closed = append(*s.closed, s.Name())
	}
	return nil
}

// batchScorer 额外提供原生批量打分。
type batchScorer struct {
	scorer
	batches int
}

func (b *batchScorer) Multipredict(ec *core.Example, step uint64, count int, preds []core.Prediction, finalize bool) error {
	b.batches++
	for c := 0; c < count; c++ {
		preds[c].SetScalar(b.scores[ec.FtOffset+uint64(c)*step] + b.bias)
	}
	return nil
}

// fanout 把每个样本拆成 k 个子问题交给下层。
type fanout struct {
	name  string
	k     uint64
	input core.LabelType
	base  *Base
}

func (f *fanout) Name() string { return f.name }

func (f *fanout) Spec() Spec {
	return Spec{
		InputLabel:       f.input,
		OutputPrediction: core.PredictionScalar,
		BaseLabel:        core.LabelSimple,
		BasePrediction:   core.PredictionScalar,
		ParamsPerWeight:  f.k,
	}
}

func (f *fanout) Learn(ec *core.Example) error {
	for i := uint64(0); i < f.k; i++ {
		if err := f.base.Learn(ec, i); err != nil {
			return err
		}
	}
	return nil
}

func (f *fanout) Predict(ec *core.Example) error { return f.base.Predict(ec, 0) }

func (f *fanout) FinishExample(core.Reporter, *core.Example) {}

func fanoutBuilder(name string, k uint64, input core.LabelType) BuildFunc {
	return func(env *Env) (Node, error) {
		return &fanout{name: name, k: k, input: input, base: env.Base}, nil
	}
}

func scorerBuilder(s *scorer) BuildFunc {
	return func(*Env) (Node, error) { return s, nil }
}

func squared(t *testing.T) loss.Func {
	t.Helper()
	l, err := loss.New(loss.SquaredName)
	require.NoError(t, err)
	return l
}

func TestBaseAdjustsAndRestoresOffset(t *testing.T) {
	s := &scorer{scores: map[uint64]float32{7: 0.5}}
	b := NewBase(s, 3)
	ec := core.NewExample()
	ec.FtOffset = 1

	require.NoError(t, b.Predict(ec, 2))
	assert.Equal(t, float32(0.5), ec.Pred.Scalar)
	assert.Equal(t, uint64(1), ec.FtOffset)

	require.NoError(t, b.Learn(ec, 1))
	assert.Equal(t, []uint64{4}, s.offsets)
	assert.Equal(t, uint64(1), ec.FtOffset)
}

func TestMultipredictFallbackMatchesNative(t *testing.T) {
	scores := map[uint64]float32{2: 0.3, 4: -1, 6: 0.3, 8: 2}
	plain := &scorer{scores: scores}
	native := &batchScorer{scorer: scorer{scores: scores}}

	for _, finalize := range []bool{true, false} {
		ec := core.NewExample()
		ec.Pred.SetMulticlass(9)
		ec.PartialPrediction = 42

		got := make([]core.Prediction, 4)
		require.NoError(t, NewBase(plain, 2).Multipredict(ec, 1, 4, got, finalize))
		assert.Equal(t, uint64(0), ec.FtOffset)
		assert.Equal(t, uint32(9), ec.Pred.Multiclass)
		assert.Equal(t, float32(42), ec.PartialPrediction)

		want := make([]core.Prediction, 4)
		require.NoError(t, NewBase(native, 2).Multipredict(ec, 1, 4, want, finalize))
		assert.Equal(t, uint64(0), ec.FtOffset)

		for c := range want {
			assert.Equal(t, want[c].Scalar, got[c].Scalar, "candidate %d", c)
		}
	}
	assert.Equal(t, 2, native.batches)
}

func TestMultipredictRejectsShortBuffer(t *testing.T) {
	err := NewBase(&scorer{}, 1).Multipredict(core.NewExample(), 0, 3, make([]core.Prediction, 2), true)
	require.Error(t, err)
}

func TestNewStackComputesStride(t *testing.T) {
	bottom := &scorer{scores: map[uint64]float32{}}
	var middle, top *fanout
	s, err := NewStack(squared(t), scorerBuilder(bottom), []BuildFunc{
		func(env *Env) (Node, error) {
			n, err := fanoutBuilder("middle", 3, core.LabelSimple)(env)
			middle = n.(*fanout)
			return n, err
		},
		func(env *Env) (Node, error) {
			n, err := fanoutBuilder("top", 2, core.LabelCS)(env)
			top = n.(*fanout)
			return n, err
		},
	}, WithName("test"))
	require.NoError(t, err)

	assert.Equal(t, uint64(6), s.Stride())
	assert.Equal(t, uint64(6), bottom.stride)
	assert.Equal(t, uint64(1), middle.base.Increment())
	assert.Equal(t, uint64(3), top.base.Increment())
	assert.Equal(t, []string{"scorer", "middle", "top"}, s.NodeNames())
	assert.Equal(t, core.LabelCS, s.LabelParser().Type())
	assert.Equal(t, "test", s.Name())

	ec := core.NewExample()
	require.NoError(t, s.Learn(ec))
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5}, bottom.offsets)
}

func TestNewStackRejectsIncompatibleNodes(t *testing.T) {
	bad := func(*Env) (Node, error) {
		return &fanout{name: "bad", k: 1, input: core.LabelCS}, nil
	}
	csBase := func(*Env) (Node, error) {
		return &fanout{name: "cs-bottom", k: 1, input: core.LabelCS}, nil
	}
	_, err := NewStack(squared(t), csBase, []BuildFunc{bad})
	require.Error(t, err)
	assert.True(t, core.IsIncompatible(err), "%v", err)
}

func TestNewStackSetupErrors(t *testing.T) {
	_, err := NewStack(nil, scorerBuilder(&scorer{}), nil)
	assert.True(t, core.IsInvalidConfig(err))

	_, err = NewStack(squared(t), nil, nil)
	assert.True(t, core.IsInvalidConfig(err))

	boom := errors.New("boom")
	_, err = NewStack(squared(t), scorerBuilder(&scorer{}), []BuildFunc{
		func(*Env) (Node, error) { return nil, boom },
	})
	assert.ErrorIs(t, err, boom)
}

func TestStackSaveLoad(t *testing.T) {
	for _, text := range []bool{false, true} {
		src := &scorer{bias: 0.25}
		s, err := NewStack(squared(t), scorerBuilder(src), []BuildFunc{fanoutBuilder("fan", 2, core.LabelSimple)})
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, s.Save(modelio.NewWriter(&buf, text)))
		data := buf.Bytes()

		dst := &scorer{}
		s2, err := NewStack(squared(t), scorerBuilder(dst), []BuildFunc{fanoutBuilder("fan", 2, core.LabelSimple)})
		require.NoError(t, err)
		require.NoError(t, s2.Load(modelio.NewReader(bytes.NewReader(data), text)))
		assert.Equal(t, float32(0.25), dst.bias)

		s3, err := NewStack(squared(t), scorerBuilder(&scorer{}), []BuildFunc{fanoutBuilder("other", 2, core.LabelSimple)})
		require.NoError(t, err)
		err = s3.Load(modelio.NewReader(bytes.NewReader(data), text))
		assert.True(t, core.IsIncompatible(err), "%v", err)
	}
}

func TestStackCloseTopDown(t *testing.T) {
	var closed []string
	s, err := NewStack(squared(t), scorerBuilder(&scorer{closed: &closed}), nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"scorer"}, closed)
}

const testConfig = `
stack:
  name: demo
  loss:
    function: expectile
    parameter: 0.4
  base:
    type: scorer
  reductions:
    - type: fanout
      config: {k: 3}
pipeline:
  strict: true
  workers: 2
`

func testFactory() *NodeFactory {
	f := NewNodeFactory()
	f.Register("scorer", func(*Env, map[string]interface{}) (Node, error) {
		return &scorer{scores: map[uint64]float32{}}, nil
	})
	f.Register("fanout", func(env *Env, cfg map[string]interface{}) (Node, error) {
		k, _ := cfg["k"].(int)
		return &fanout{name: "fanout", k: uint64(k), input: core.LabelCS, base: env.Base}, nil
	})
	return f
}

func TestConfigBuildStack(t *testing.T) {
	cfg, err := ParseConfigYAML([]byte(testConfig))
	require.NoError(t, err)
	assert.True(t, cfg.Pipeline.Strict)
	assert.Equal(t, 2, cfg.Pipeline.Workers)

	s, err := cfg.BuildStack(testFactory())
	require.NoError(t, err)
	assert.Equal(t, "demo", s.Name())
	assert.Equal(t, uint64(3), s.Stride())
	assert.Equal(t, loss.ExpectileName, s.Loss().Type())
	assert.Equal(t, float32(0.4), s.Loss().Parameter())
}

func TestLoadConfigFromFiles(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "stack.yaml")
	jsonPath := filepath.Join(dir, "stack.json")
	require.NoError(t, os.WriteFile(yamlPath, []byte(testConfig), 0o644))
	require.NoError(t, os.WriteFile(jsonPath, []byte(
		`{"stack": {"name": "demo", "loss": {"function": "squared"}, "base": {"type": "scorer"}}, "pipeline": {"workers": 3}}`), 0o644))

	fromYAML, err := LoadConfigFromYAML(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "demo", fromYAML.Stack.Name)

	fromJSON, err := LoadConfigFromJSON(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 3, fromJSON.Pipeline.Workers)
	s, err := fromJSON.BuildStack(testFactory())
	require.NoError(t, err)
	assert.Equal(t, loss.SquaredName, s.Loss().Type())

	_, err = LoadConfigFromJSON(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "%v", err)
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		json  string
		check func(error) bool
	}{
		{
			name:  "missing name",
			json:  `{"stack": {"loss": {"function": "squared"}, "base": {"type": "scorer"}}}`,
			check: core.IsInvalidConfig,
		},
		{
			name:  "unknown node type",
			json:  `{"stack": {"name": "x", "loss": {"function": "squared"}, "base": {"type": "nope"}}}`,
			check: core.IsInvalidConfig,
		},
		{
			name:  "unknown loss",
			json:  `{"stack": {"name": "x", "loss": {"function": "huber"}, "base": {"type": "scorer"}}}`,
			check: core.IsInvalidConfig,
		},
		{
			name:  "loss parameter out of range",
			json:  `{"stack": {"name": "x", "loss": {"function": "expectile", "parameter": 1.5}, "base": {"type": "scorer"}}}`,
			check: core.IsInvalidConfig,
		},
		{
			name:  "reduction without type",
			json:  `{"stack": {"name": "x", "loss": {"function": "squared"}, "base": {"type": "scorer"}, "reductions": [{}]}}`,
			check: core.IsInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfigJSON([]byte(tt.json))
			require.NoError(t, err)
			_, err = cfg.BuildStack(testFactory())
			require.Error(t, err)
			assert.True(t, tt.check(err), "%v", err)
		})
	}
}
