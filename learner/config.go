package learner

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/loss"
)

var configValidate = validator.New()

// Config 是一次运行的配置（支持 YAML/JSON）：学习栈 + 样本驱动选项。
type Config struct {
	Stack    StackConfig `yaml:"stack" json:"stack"`
	Pipeline RunConfig   `yaml:"pipeline" json:"pipeline"`
}

// StackConfig 描述学习栈：损失函数、底层 learner、自下而上的 reductions。
type StackConfig struct {
	Name       string       `yaml:"name" json:"name" validate:"required"`
	Loss       LossConfig   `yaml:"loss" json:"loss"`
	Base       NodeConfig   `yaml:"base" json:"base"`
	Reductions []NodeConfig `yaml:"reductions" json:"reductions" validate:"dive"`
}

// LossConfig 是损失函数名与可选的形状参数。
type LossConfig struct {
	Function  string   `yaml:"function" json:"function" validate:"required"`
	Parameter *float32 `yaml:"parameter,omitempty" json:"parameter,omitempty"`
}

// NodeConfig 是单个节点的配置。
type NodeConfig struct {
	Type   string                 `yaml:"type" json:"type" validate:"required"` // gd / csoaa 等
	Config map[string]interface{} `yaml:"config" json:"config"`                 // 节点特定配置
}

// RunConfig 是样本驱动的选项。
type RunConfig struct {
	Filter      string `yaml:"filter" json:"filter"`           // CEL 过滤表达式，空表示不过滤
	Strict      bool   `yaml:"strict" json:"strict"`           // 解析失败时中止整个运行
	Passthrough bool   `yaml:"passthrough" json:"passthrough"` // 收集 passthrough 诊断特征
	TestOnly    bool   `yaml:"test_only" json:"test_only"`     // 只预测不学习
	Workers     int    `yaml:"workers" json:"workers" validate:"gte=0,lte=1024"`
	ModelKey    string `yaml:"model_key" json:"model_key"` // 模型在 Store 中的 key
}

// LoadConfigFromYAML 从 YAML 文件加载配置。
func LoadConfigFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseConfigYAML(data)
}

// LoadConfigFromJSON 从 JSON 文件加载配置。
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseConfigJSON(data)
}

// ParseConfigYAML 解析 YAML 配置内容。
func ParseConfigYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &cfg, nil
}

// ParseConfigJSON 解析 JSON 配置内容。
func ParseConfigJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return &cfg, nil
}

// Validate 按 struct tag 校验配置，失败返回 INVALID_CONFIG 错误。
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", core.Errorf(core.ModuleLearner, core.ErrorCodeInvalidConfig,
			"invalid config"), err)
	}
	return nil
}

// NewLoss 按配置构建损失函数。
func (c *LossConfig) NewLoss() (loss.Func, error) {
	if c.Parameter != nil {
		return loss.New(c.Function, *c.Parameter)
	}
	return loss.New(c.Function)
}

// BuildStack 根据配置构建学习栈（需要 NodeFactory 注册节点构建器）。
func (c *Config) BuildStack(factory *NodeFactory, opts ...StackOption) (*Stack, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	sc := &c.Stack
	for _, nc := range append([]NodeConfig{sc.Base}, sc.Reductions...) {
		if !factory.Has(nc.Type) {
			return nil, core.Errorf(core.ModuleLearner, core.ErrorCodeInvalidConfig,
				"unsupported node type %q (supported: %v)", nc.Type, factory.Types())
		}
	}
	lossFn, err := sc.Loss.NewLoss()
	if err != nil {
		return nil, err
	}
	reductions := make([]BuildFunc, 0, len(sc.Reductions))
	for _, nc := range sc.Reductions {
		reductions = append(reductions, factory.BuildFunc(nc.Type, nc.Config))
	}
	opts = append([]StackOption{WithName(sc.Name)}, opts...)
	return NewStack(lossFn, factory.BuildFunc(sc.Base.Type, sc.Base.Config), reductions, opts...)
}
