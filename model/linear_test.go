package model

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/loss"
	"github.com/rushteam/learnkit/pkg/modelio"
)

type recorder struct {
	outcomes []core.Outcome
}

func (r *recorder) Report(o core.Outcome) { r.outcomes = append(r.outcomes, o) }

func newLinear(t *testing.T, cfg LinearConfig) *Linear {
	t.Helper()
	l, err := loss.New(loss.SquaredName)
	require.NoError(t, err)
	if cfg.LearningRate == 0 {
		cfg.LearningRate = DefaultLearningRate
	}
	m, err := NewLinear(l, core.NewSharedData(), cfg, nil)
	require.NoError(t, err)
	return m
}

func example(label float32, features map[uint64]float32) *core.Example {
	ec := core.NewExample()
	ec.Label = &core.SimpleLabel{Label: label}
	fs := ec.AddNamespace('a')
	for h, v := range features {
		fs.Push(h, v)
	}
	return ec
}

func TestLinearLearnMovesTowardLabel(t *testing.T) {
	m := newLinear(t, LinearConfig{Bits: 10})
	ec := example(0.8, map[uint64]float32{1: 1})

	require.NoError(t, m.Learn(ec))
	assert.Equal(t, float32(0), ec.Pred.Scalar)

	want := 0.8 * (1 - math.Exp(-1))
	assert.InDelta(t, want, m.Weight(1, 0), 1e-6)

	require.NoError(t, m.Predict(ec))
	assert.InDelta(t, want, ec.Pred.Scalar, 1e-6)
	assert.InDelta(t, want, ec.PartialPrediction, 1e-6)
}

func TestLinearSkipsTestAndZeroWeightExamples(t *testing.T) {
	m := newLinear(t, LinearConfig{Bits: 10})

	ec := example(core.FLTMax, map[uint64]float32{1: 1})
	require.NoError(t, m.Learn(ec))
	assert.Equal(t, float32(0), m.Weight(1, 0))

	ec = example(1, map[uint64]float32{1: 1})
	ec.Weight = 0
	require.NoError(t, m.Learn(ec))
	assert.Equal(t, float32(0), m.Weight(1, 0))
}

func TestLinearClipsToLabelRange(t *testing.T) {
	m := newLinear(t, LinearConfig{Bits: 10, LearningRate: 10})
	ec := example(3, map[uint64]float32{5: 1})
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Learn(ec))
	}
	assert.Equal(t, float32(3), m.sd.MaxLabel)

	m.sd.MaxLabel = 1
	require.NoError(t, m.Predict(ec))
	assert.Equal(t, float32(1), ec.Pred.Scalar)
	assert.Greater(t, ec.PartialPrediction, float32(1))
}

func TestLinearMultipredictMatchesPredict(t *testing.T) {
	m := newLinear(t, LinearConfig{Bits: 12})
	m.SetStride(4)
	for offset := uint64(0); offset < 4; offset++ {
		ec := example(float32(offset)/4, map[uint64]float32{7: 1, 9: 0.5})
		ec.FtOffset = offset
		require.NoError(t, m.Learn(ec))
	}

	ec := example(core.FLTMax, map[uint64]float32{7: 1, 9: 0.5})
	preds := make([]core.Prediction, 4)
	require.NoError(t, m.Multipredict(ec, 1, 4, preds, true))
	for c := uint64(0); c < 4; c++ {
		ec.FtOffset = c
		require.NoError(t, m.Predict(ec))
		assert.Equal(t, ec.Pred.Scalar, preds[c].Scalar, "offset %d", c)
	}
}

func TestLinearFinishExampleReportsLoss(t *testing.T) {
	m := newLinear(t, LinearConfig{Bits: 10})
	r := &recorder{}

	ec := example(1, map[uint64]float32{1: 1})
	ec.Weight = 2
	require.NoError(t, m.Predict(ec))
	m.FinishExample(r, ec)

	ec = example(core.FLTMax, map[uint64]float32{1: 1})
	require.NoError(t, m.Predict(ec))
	m.FinishExample(r, ec)

	require.Len(t, r.outcomes, 2)
	assert.Equal(t, float32(2), r.outcomes[0].Loss)
	assert.False(t, r.outcomes[0].Test)
	assert.Equal(t, 1, r.outcomes[0].NumFeatures)
	assert.Equal(t, float32(0), r.outcomes[1].Loss)
	assert.True(t, r.outcomes[1].Test)
}

func TestLinearSaveLoad(t *testing.T) {
	for _, text := range []bool{false, true} {
		src := newLinear(t, LinearConfig{Bits: 8})
		require.NoError(t, src.Learn(example(0.5, map[uint64]float32{3: 1, 200: 2})))
		src.sd.MaxLabel = 4

		var buf bytes.Buffer
		w := modelio.NewWriter(&buf, text)
		require.NoError(t, src.Save(w))
		require.NoError(t, w.Flush())
		data := buf.Bytes()

		dst := newLinear(t, LinearConfig{Bits: 8})
		require.NoError(t, dst.Load(modelio.NewReader(bytes.NewReader(data), text)))
		assert.Equal(t, src.weights, dst.weights)
		assert.Equal(t, float32(4), dst.sd.MaxLabel)
		assert.Equal(t, src.t, dst.t)

		other := newLinear(t, LinearConfig{Bits: 9})
		err := other.Load(modelio.NewReader(bytes.NewReader(data), text))
		assert.True(t, core.IsIncompatible(err), "%v", err)
	}
}

func TestNewLinearRejectsBadConfig(t *testing.T) {
	l, err := loss.New(loss.SquaredName)
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  LinearConfig
	}{
		{"too many bits", LinearConfig{Bits: 31, LearningRate: 1}},
		{"zero learning rate", LinearConfig{Bits: 4}},
		{"negative power", LinearConfig{Bits: 4, LearningRate: 1, PowerT: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLinear(l, nil, tt.cfg, nil)
			assert.True(t, core.IsInvalidConfig(err), "%v", err)
		})
	}

	_, err = NewLinear(nil, nil, LinearConfig{LearningRate: 1}, nil)
	assert.True(t, core.IsInvalidConfig(err))
}

func TestLinearPowerTDecaysLearningRate(t *testing.T) {
	decayed := newLinear(t, LinearConfig{Bits: 10, PowerT: 0.5})
	flat := newLinear(t, LinearConfig{Bits: 10})
	for i := 0; i < 2; i++ {
		require.NoError(t, decayed.Learn(example(1, map[uint64]float32{1: 1})))
		require.NoError(t, flat.Learn(example(1, map[uint64]float32{1: 1})))
	}
	assert.Less(t, decayed.Weight(1, 0), flat.Weight(1, 0))
}
