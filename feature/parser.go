// Package feature 把文本样本行解析为 core.Example，并提供样本缓存的读写。
//
// 文本格式：
//
//	<label words> ['tag] |<namespace>[:<scale>] <feature>[:<value>] ... |<namespace> ...
//
// 第一个 '|' 之前是 label 区，交给 label.Parser 解析；label 区最后一个以 ' 开头的词是 tag。
// 紧跟 '|' 的词是 namespace 名（取首字节作为 namespace 标识），'|' 后直接是空白则为默认 namespace。
// 特征名为纯数字时直接作为索引（加上 namespace 哈希），否则按 namespace 哈希为种子做 xxhash。
package feature

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/label"
)

// DefaultNamespace 是 '|' 后不带名字时使用的 namespace。
const DefaultNamespace = byte(' ')

// Parser 是文本样本解析器。内部持有哈希状态，不能被多个 goroutine 同时使用；
// 并行处理时每个 worker 各持有一个。
type Parser struct {
	labels     label.Parser
	logger     *zap.Logger
	noConstant bool
	digest     *xxhash.Digest
}

// ParserOption 解析器配置选项
type ParserOption func(*Parser)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) ParserOption {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithoutConstant 不追加常数特征
func WithoutConstant() ParserOption {
	return func(p *Parser) {
		p.noConstant = true
	}
}

// NewParser 创建样本解析器，labels 是本次运行选定的 label 描述符。
func NewParser(labels label.Parser, opts ...ParserOption) *Parser {
	p := &Parser{
		labels: labels,
		logger: zap.NewNop(),
		digest: xxhash.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Labels 返回解析器使用的 label 描述符。
func (p *Parser) Labels() label.Parser { return p.labels }

// Hash 以 seed 为种子计算特征名哈希。
func Hash(name string, seed uint64) uint64 {
	d := xxhash.NewWithSeed(seed)
	_, _ = d.WriteString(name)
	return d.Sum64()
}

// NamespaceHash 返回 namespace 名的哈希，默认 namespace 为 0。
func NamespaceHash(name string) uint64 {
	if name == "" || name == string(DefaultNamespace) {
		return 0
	}
	return Hash(name, 0)
}

func (p *Parser) hash(name string, seed uint64) uint64 {
	p.digest.ResetWithSeed(seed)
	_, _ = p.digest.WriteString(name)
	return p.digest.Sum64()
}

// PrepareLabel 保证 ec.Label 是描述符对应的 label 变体并恢复为默认值。
func (p *Parser) PrepareLabel(ec *core.Example) {
	if ec.Label == nil || ec.Label.Type() != p.labels.Type() {
		ec.Label = p.labels.NewLabel()
		return
	}
	p.labels.DefaultLabel(ec.Label)
}

// ParseLine 把一行文本解析到 ec。ec 先被 Reset，label 对象被复用；mem 在解析前清空。
// 返回的错误为 core.ErrorCodeParse 时只影响当前样本。
func (p *Parser) ParseLine(ec *core.Example, mem *label.ReuseMem, line string) error {
	ec.Reset()
	p.PrepareLabel(ec)
	mem.Clear()

	labelPart, rest, hasFeatures := strings.Cut(line, "|")
	words := mem.SplitWords(labelPart)
	if n := len(words); n > 0 && strings.HasPrefix(words[n-1], "'") {
		ec.Tag = words[n-1][1:]
		words = words[:n-1]
	}
	if err := p.labels.ParseLabel(ec.Label, &ec.ReductionFeatures, mem, words); err != nil {
		return err
	}
	ec.Weight = p.labels.Weight(ec.Label, &ec.ReductionFeatures)

	if hasFeatures {
		for _, section := range strings.Split(rest, "|") {
			if err := p.parseNamespace(ec, mem, section); err != nil {
				return err
			}
		}
	}
	if !p.noConstant {
		ec.AddNamespace(core.ConstantNamespace).Push(core.ConstantHash, 1)
	}
	return nil
}

func (p *Parser) parseNamespace(ec *core.Example, mem *label.ReuseMem, section string) error {
	words := mem.SplitWords(section)
	name := string(DefaultNamespace)
	scale := float32(1)
	if section != "" && section[0] != ' ' && section[0] != '\t' && len(words) > 0 {
		var scaleStr string
		var hasScale bool
		name, scaleStr, hasScale = strings.Cut(words[0], ":")
		if hasScale {
			v, err := strconv.ParseFloat(scaleStr, 32)
			if err != nil {
				return core.Errorf(core.ModuleFeature, core.ErrorCodeParse,
					"invalid namespace scale %q: %v", words[0], err)
			}
			scale = float32(v)
		}
		words = words[1:]
		if name == "" {
			name = string(DefaultNamespace)
		}
	}
	if len(words) == 0 {
		return nil
	}

	nsHash := NamespaceHash(name)
	fs := ec.AddNamespace(name[0])
	for _, word := range words {
		fname, valueStr, hasValue := strings.Cut(word, ":")
		value := scale
		if hasValue {
			v, err := strconv.ParseFloat(valueStr, 32)
			if err != nil {
				p.logger.Warn("malformed feature value, skipping feature",
					zap.String("feature", word), zap.Error(err))
				continue
			}
			value *= float32(v)
		}
		if value == 0 {
			continue
		}
		fs.Push(p.index(fname, nsHash), value)
	}
	return nil
}

func (p *Parser) index(name string, nsHash uint64) uint64 {
	if n, err := strconv.ParseUint(name, 10, 64); err == nil {
		return n + nsHash
	}
	return p.hash(name, nsHash)
}
