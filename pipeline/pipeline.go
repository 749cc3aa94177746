// Package pipeline 是样本处理驱动：读入文本或缓存流，逐个样本解析、过滤、
// 交给学习栈 learn/predict，并在每个样本结束时恰好调用一次 finish_example。
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/feature"
	"github.com/rushteam/learnkit/filter"
	"github.com/rushteam/learnkit/label"
	"github.com/rushteam/learnkit/pkg/modelio"
)

// maxLineSize 是单行样本的上限。
const maxLineSize = 16 << 20

// Result 是一次运行的计数。
type Result struct {
	Lines    uint64 // 读到的行数（缓存流为样本数）
	Examples uint64 // 完成 finish_example 的样本数
	Skipped  uint64 // 解析失败被跳过的样本数
	Filtered uint64 // 被过滤器跳过的样本数
}

// Pipeline 驱动一个学习栈。Pipeline 不是并发安全的：它复用同一个样本与解析缓冲。
type Pipeline struct {
	learner  Learner
	parser   *feature.Parser
	filters  filter.Chain
	reporter core.Reporter
	hooks    []Hook
	logger   *zap.Logger

	strict      bool
	passthrough bool
	testOnly    bool

	ec  *core.Example
	mem label.ReuseMem
}

// Option 配置 Pipeline。
type Option func(*Pipeline)

// WithLogger 设置日志。
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithReporter 设置 finish_example 的统计接收端。
func WithReporter(r core.Reporter) Option {
	return func(p *Pipeline) {
		p.reporter = r
	}
}

// WithFilters 追加过滤器。
func WithFilters(filters ...filter.Filter) Option {
	return func(p *Pipeline) {
		p.filters.Filters = append(p.filters.Filters, filters...)
	}
}

// WithHook 追加样本结束后的回调。
func WithHook(h Hook) Option {
	return func(p *Pipeline) {
		if h != nil {
			p.hooks = append(p.hooks, h)
		}
	}
}

// WithStrict 为 true 时解析失败中止整个运行，否则记录日志并跳过该样本。
func WithStrict(strict bool) Option {
	return func(p *Pipeline) {
		p.strict = strict
	}
}

// WithPassthrough 为 true 时为每个样本收集 passthrough 诊断特征。
func WithPassthrough(on bool) Option {
	return func(p *Pipeline) {
		p.passthrough = on
	}
}

// WithTestOnly 为 true 时只预测不学习。
func WithTestOnly(on bool) Option {
	return func(p *Pipeline) {
		p.testOnly = on
	}
}

// New 创建驱动 l 的 Pipeline。
func New(l Learner, opts ...Option) *Pipeline {
	p := &Pipeline{
		learner: l,
		logger:  zap.NewNop(),
		ec:      core.NewExample(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.filters.Logger = p.logger
	p.parser = feature.NewParser(l.LabelParser(), feature.WithLogger(p.logger))
	if p.passthrough {
		p.ec.Passthrough = &core.Features{}
	}
	return p
}

// Learner 返回被驱动的学习栈。
func (p *Pipeline) Learner() Learner { return p.learner }

// Run 逐行读取文本样本并处理；空行被跳过。
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (Result, error) {
	var res Result
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Lines++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := p.parser.ParseLine(p.ec, &p.mem, line); err != nil {
			if err := p.parseFailed(&res, err, zap.Uint64("line", res.Lines)); err != nil {
				return res, err
			}
			continue
		}
		if err := p.process(ctx, &res); err != nil {
			return res, err
		}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read examples: %w", err)
	}
	return res, nil
}

// RunCache 从缓存流读取样本并处理，直到流在样本边界结束。
func (p *Pipeline) RunCache(ctx context.Context, r *modelio.Reader) (Result, error) {
	var res Result
	labels := p.learner.LabelParser()
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, err := feature.ReadCachedExample(r, labels, p.ec)
		if err == io.EOF { // 只有样本边界处的 EOF 未被包装
			return res, nil
		}
		res.Lines++
		if err != nil {
			// 缓存流损坏后无法重新对齐到下一个样本
			return res, fmt.Errorf("read cached example %d: %w", res.Lines, err)
		}
		if err := p.process(ctx, &res); err != nil {
			return res, err
		}
	}
}

// WriteCache 解析文本样本并写入缓存流，不经过学习栈。解析失败的处理与 Run 相同。
func (p *Pipeline) WriteCache(ctx context.Context, r io.Reader, w *modelio.Writer) (Result, error) {
	var res Result
	labels := p.learner.LabelParser()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Lines++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := p.parser.ParseLine(p.ec, &p.mem, line); err != nil {
			if err := p.parseFailed(&res, err, zap.Uint64("line", res.Lines)); err != nil {
				return res, err
			}
			continue
		}
		if _, err := feature.CacheExample(w, labels, p.ec); err != nil {
			return res, fmt.Errorf("write cache: %w", err)
		}
		res.Examples++
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read examples: %w", err)
	}
	return res, w.Flush()
}

func (p *Pipeline) parseFailed(res *Result, err error, fields ...zap.Field) error {
	if p.strict || !core.IsParseError(err) {
		return err
	}
	res.Skipped++
	p.logger.Warn("skipping malformed example", append(fields, zap.Error(err))...)
	return nil
}

// process 处理已解析好的 p.ec。
func (p *Pipeline) process(ctx context.Context, res *Result) error {
	ec := p.ec
	// 被过滤的样本不进入学习栈，也不上报统计。
	if len(p.filters.Filters) > 0 {
		if skip, name := p.filters.ShouldFilter(ctx, ec); skip {
			res.Filtered++
			p.logger.Debug("example filtered", zap.String("filter", name), zap.String("tag", ec.Tag))
			return nil
		}
	}

	ec.TestOnly = p.testOnly
	if err := p.learnOrPredict(ec); err != nil {
		return err
	}
	p.learner.FinishExample(p.reporter, ec)
	res.Examples++
	for _, h := range p.hooks {
		h(ec)
	}
	return nil
}

func (p *Pipeline) learnOrPredict(ec *core.Example) error {
	if ec.TestOnly || p.learner.LabelParser().IsTestLabel(ec.Label) {
		return p.learner.Predict(ec)
	}
	if !p.learner.LearnReturnsPrediction() {
		if err := p.learner.Predict(ec); err != nil {
			return err
		}
	}
	return p.learner.Learn(ec)
}
