package pipeline

import (
	"github.com/rushteam/learnkit/core"
	"github.com/rushteam/learnkit/label"
	"github.com/rushteam/learnkit/learner"
)

// Learner 是驱动所需的学习栈能力，*learner.Stack 实现它。
type Learner interface {
	LabelParser() label.Parser
	LearnReturnsPrediction() bool
	Learn(ec *core.Example) error
	Predict(ec *core.Example) error
	FinishExample(r core.Reporter, ec *core.Example)
}

var _ Learner = (*learner.Stack)(nil)

// Hook 在 finish_example 之后以只读方式观察样本（例如输出预测）。
type Hook func(ec *core.Example)
