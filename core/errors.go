package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX），可穿透 fmt.Errorf("%w") 包装
//
// 错误分类：
//   - 启动期致命错误：INVALID_CONFIG（未知损失函数、参数越界、冲突选项）、INCOMPATIBLE（相邻节点 label/prediction 类型不匹配）
//   - 样本级解析错误：PARSE_ERROR（NaN cost、token 数量错误、缺少首个标记），只中止当前样本
//   - Store 错误：NOT_FOUND, NOT_SUPPORTED
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "PARSE_ERROR"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "label", "loss"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// IsDomainError 检查错误是否为 DomainError 类型
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取 DomainError，如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// Errorf 以格式化消息创建领域错误。
func Errorf(module, code, format string, args ...any) *DomainError {
	return NewDomainError(module, code, fmt.Sprintf(format, args...))
}

// 错误代码常量
const (
	// 通用错误代码
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误

	// 学习栈相关
	ErrorCodeInvalidConfig = "INVALID_CONFIG" // 启动期配置错误
	ErrorCodeIncompatible  = "INCOMPATIBLE"   // 相邻节点类型不兼容
	ErrorCodeParse         = "PARSE_ERROR"    // 样本解析失败
)

// 模块名称常量
const (
	ModuleStore     = "store"     // 存储模块
	ModuleLoss      = "loss"      // 损失函数
	ModuleLabel     = "label"     // label 解析与缓存
	ModuleFeature   = "feature"   // 样本解析
	ModuleLearner   = "learner"   // 学习栈
	ModuleReduction = "reduction" // 具体 reduction
	ModuleModelIO   = "modelio"   // 模型字段编解码
	ModulePipeline  = "pipeline"  // 样本驱动
)

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsInvalidConfig 检查错误是否为启动期配置错误
func IsInvalidConfig(err error) bool { return hasCode(err, ErrorCodeInvalidConfig) }

// IsIncompatible 检查错误是否为节点类型不兼容
func IsIncompatible(err error) bool { return hasCode(err, ErrorCodeIncompatible) }

// IsParseError 检查错误是否为样本级解析错误
func IsParseError(err error) bool { return hasCode(err, ErrorCodeParse) }
