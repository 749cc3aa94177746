package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/store"
)

func testExample(weight float32, tag string, lbl core.Label) *core.Example {
	ec := core.NewExample()
	ec.Weight = weight
	ec.Tag = tag
	ec.Label = lbl
	fs := ec.AddNamespace('a')
	fs.Push(1, 1)
	fs.Push(2, 1)
	return ec
}

func TestExpr(t *testing.T) {
	labeled := testExample(2, "train_1", &core.CSLabel{Costs: []core.CSClass{{ClassIndex: 1, Cost: 0}}})
	unlabeled := testExample(1, "eval_1", &core.CSLabel{})

	tests := []struct {
		expr      string
		labeled   bool
		unlabeled bool
	}{
		{"example.weight > 1.0", true, false},
		{"!example.test", true, false},
		{`example.tag.startsWith("eval_")`, false, true},
		{`example.label_type == "cs" && example.num_features == 2`, true, true},
		{`"a" in example.namespaces`, true, true},
		{`"b" in example.namespaces`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e, err := NewExpr(tt.expr)
			require.NoError(t, err)

			keep, err := e.Keep(labeled)
			require.NoError(t, err)
			assert.Equal(t, tt.labeled, keep)

			filtered, err := e.ShouldFilter(context.Background(), unlabeled)
			require.NoError(t, err)
			assert.Equal(t, !tt.unlabeled, filtered)
		})
	}
}

func TestExprErrors(t *testing.T) {
	_, err := NewExpr("example.weight >")
	assert.True(t, core.IsInvalidConfig(err), "%v", err)

	e, err := NewExpr("example.weight + 1.0")
	require.NoError(t, err)
	_, err = e.Keep(testExample(1, "", &core.SimpleLabel{}))
	assert.Error(t, err)

	e, err = NewExpr("example.missing > 1")
	require.NoError(t, err)
	_, err = e.Keep(testExample(1, "", &core.SimpleLabel{}))
	assert.Error(t, err)
}

func TestTagBlacklist(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	defer s.Close()
	require.NoError(t, s.Set(ctx, "blocked:ex3", []byte("1")))

	f := NewTagBlacklist([]string{"ex1"}, s, "blocked:")
	for tag, want := range map[string]bool{"ex1": true, "ex2": false, "ex3": true, "": false} {
		got, err := f.ShouldFilter(ctx, testExample(1, tag, &core.SimpleLabel{}))
		require.NoError(t, err)
		assert.Equal(t, want, got, "tag %q", tag)
	}
}

type failing struct{}

func (failing) Name() string { return "failing" }

func (failing) ShouldFilter(context.Context, *core.Example) (bool, error) {
	return false, errors.New("boom")
}

func TestChain(t *testing.T) {
	obsCore, logs := observer.New(zapcore.WarnLevel)
	positive, err := NewExpr("example.weight > 0.0")
	require.NoError(t, err)
	c := &Chain{
		Filters: []Filter{failing{}, positive, NewTagBlacklist([]string{"skip"}, nil, "")},
		Logger:  zap.New(obsCore),
	}

	ok, name := c.ShouldFilter(context.Background(), testExample(1, "keep", &core.SimpleLabel{}))
	assert.False(t, ok)
	assert.Empty(t, name)

	ok, name = c.ShouldFilter(context.Background(), testExample(0, "keep", &core.SimpleLabel{}))
	assert.True(t, ok)
	assert.Equal(t, "filter.expr", name)

	ok, name = c.ShouldFilter(context.Background(), testExample(1, "skip", &core.SimpleLabel{}))
	assert.True(t, ok)
	assert.Equal(t, "filter.tag_blacklist", name)

	assert.Equal(t, 3, logs.Len())
}
