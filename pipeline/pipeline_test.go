package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/filter"
	"github.com/rushteam/learnkit/label"
	"github.com/rushteam/learnkit/pkg/modelio"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeLearner 记录驱动对学习栈的调用顺序。
type fakeLearner struct {
	labels      label.Parser
	returnsPred bool
	failOn      string
	calls       []string
}

var errLearn = errors.New("learn failed")

func newFake(t *testing.T) *fakeLearner {
	t.Helper()
	labels, err := label.New(core.LabelSimple, nil)
	require.NoError(t, err)
	return &fakeLearner{labels: labels}
}

func (f *fakeLearner) LabelParser() label.Parser    { return f.labels }
func (f *fakeLearner) LearnReturnsPrediction() bool { return f.returnsPred }

func (f *fakeLearner) Learn(ec *core.Example) error {
	f.calls = append(f.calls, "learn:"+ec.Tag)
	if ec.Tag == f.failOn {
		return errLearn
	}
	return nil
}

func (f *fakeLearner) Predict(ec *core.Example) error {
	f.calls = append(f.calls, "predict:"+ec.Tag)
	return nil
}

func (f *fakeLearner) FinishExample(r core.Reporter, ec *core.Example) {
	f.calls = append(f.calls, "finish:"+ec.Tag)
	if r != nil {
		r.Report(core.Outcome{Weight: ec.Weight, Test: f.labels.IsTestLabel(ec.Label)})
	}
}

type countingReporter struct{ n int }

func (c *countingReporter) Report(core.Outcome) { c.n++ }

const mixedInput = `1 'a| f

'b| f
1 2 3 4 'c| f
0.5 'd| f
`

func TestRunDispatchesLearnAndPredict(t *testing.T) {
	obsCore, logs := observer.New(zapcore.WarnLevel)
	f := newFake(t)
	r := &countingReporter{}
	p := New(f, WithLogger(zap.New(obsCore)), WithReporter(r))

	res, err := p.Run(context.Background(), strings.NewReader(mixedInput))
	require.NoError(t, err)
	assert.Equal(t, Result{Lines: 5, Examples: 3, Skipped: 1}, res)
	assert.Equal(t, []string{
		"predict:a", "learn:a", "finish:a",
		"predict:b", "finish:b",
		"predict:d", "learn:d", "finish:d",
	}, f.calls)
	assert.Equal(t, 3, r.n)
	assert.Equal(t, 1, logs.FilterMessage("skipping malformed example").Len())
}

func TestRunLearnReturnsPrediction(t *testing.T) {
	f := newFake(t)
	f.returnsPred = true
	_, err := New(f).Run(context.Background(), strings.NewReader("1 'a| f\n'b| f\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"learn:a", "finish:a", "predict:b", "finish:b"}, f.calls)
}

func TestRunTestOnly(t *testing.T) {
	f := newFake(t)
	var testOnly []bool
	p := New(f, WithTestOnly(true), WithHook(func(ec *core.Example) { testOnly = append(testOnly, ec.TestOnly) }))
	_, err := p.Run(context.Background(), strings.NewReader("1 'a| f\n0 'b| f\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"predict:a", "finish:a", "predict:b", "finish:b"}, f.calls)
	assert.Equal(t, []bool{true, true}, testOnly)
}

func TestRunStrictAbortsOnParseError(t *testing.T) {
	f := newFake(t)
	res, err := New(f, WithStrict(true)).Run(context.Background(), strings.NewReader(mixedInput))
	require.Error(t, err)
	assert.True(t, core.IsParseError(err), "%v", err)
	assert.Equal(t, uint64(2), res.Examples)
	assert.Equal(t, uint64(4), res.Lines)
}

func TestRunAbortsOnLearnError(t *testing.T) {
	f := newFake(t)
	f.failOn = "b"
	res, err := New(f).Run(context.Background(), strings.NewReader("1 'a| f\n1 'b| f\n1 'c| f\n"))
	assert.ErrorIs(t, err, errLearn)
	assert.Equal(t, uint64(1), res.Examples)
	assert.Equal(t, []string{"predict:a", "learn:a", "finish:a", "predict:b", "learn:b"}, f.calls)
}

func TestRunFilters(t *testing.T) {
	expr, err := filter.NewExpr("example.weight > 1.0")
	require.NoError(t, err)
	f := newFake(t)
	res, err := New(f, WithFilters(expr)).Run(context.Background(), strings.NewReader("1 2 'a| f\n1 'b| f\n"))
	require.NoError(t, err)
	assert.Equal(t, Result{Lines: 2, Examples: 1, Filtered: 1}, res)
	assert.Equal(t, []string{"predict:a", "learn:a", "finish:a"}, f.calls)
}

func TestRunHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := newFake(t)
	res, err := New(f).Run(ctx, strings.NewReader("1 'a| f\n"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), res.Examples)
	assert.Empty(t, f.calls)
}

func TestRunPassthrough(t *testing.T) {
	f := newFake(t)
	var seen int
	p := New(f, WithPassthrough(true), WithHook(func(ec *core.Example) {
		require.NotNil(t, ec.Passthrough)
		seen++
	}))
	_, err := p.Run(context.Background(), strings.NewReader("1 'a| f\n1 'b| f\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, seen)
}

func TestCacheRoundTrip(t *testing.T) {
	for _, text := range []bool{false, true} {
		writer := newFake(t)
		var buf bytes.Buffer
		res, err := New(writer).WriteCache(context.Background(), strings.NewReader(mixedInput), modelio.NewWriter(&buf, text))
		require.NoError(t, err)
		assert.Equal(t, Result{Lines: 5, Examples: 3, Skipped: 1}, res)
		assert.Empty(t, writer.calls)

		f := newFake(t)
		res, err = New(f).RunCache(context.Background(), modelio.NewReader(&buf, text))
		require.NoError(t, err, "text=%v", text)
		assert.Equal(t, Result{Lines: 3, Examples: 3}, res)
		assert.Equal(t, []string{
			"predict:a", "learn:a", "finish:a",
			"predict:b", "finish:b",
			"predict:d", "learn:d", "finish:d",
		}, f.calls)
	}
}

func TestRunCacheTruncated(t *testing.T) {
	var buf bytes.Buffer
	_, err := New(newFake(t)).WriteCache(context.Background(), strings.NewReader("1 'a| f g h\n"), modelio.NewWriter(&buf, false))
	require.NoError(t, err)
	data := buf.Bytes()[:buf.Len()-3]

	_, err = New(newFake(t)).RunCache(context.Background(), modelio.NewReader(bytes.NewReader(data), false))
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestRunParallelRejectsMismatchedInputs(t *testing.T) {
	_, err := RunParallel(context.Background(), []*Pipeline{New(newFake(t))}, nil)
	assert.Error(t, err)
}

func TestRunParallelCancelsOnError(t *testing.T) {
	bad := newFake(t)
	bad.failOn = "x"
	good := newFake(t)
	results, err := RunParallel(context.Background(),
		[]*Pipeline{New(bad), New(good)},
		[]io.Reader{strings.NewReader("1 'x| f\n"), strings.NewReader("1 'a| f\n")})
	assert.ErrorIs(t, err, errLearn)
	require.Len(t, results, 2)
	assert.Equal(t, uint64(0), results[0].Examples)
}
