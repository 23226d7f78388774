// internal/service/notification/infrastructure/cel_rules.go
package infrastructure

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"orderflow/internal/service/notification/domain"
)

// CelRuleEngine 用一条 CEL 表达式决定通知是否被抑制，
// 运营可通过配置下发规则而无需改代码重新发布。
// 表达式可引用 type/customerId/message，返回 true 表示抑制。
// 例: type == "PROCESSING_UPDATE" && message.contains("stock")
type CelRuleEngine struct {
	program cel.Program
}

// NewCelRuleEngine 编译规则表达式。expression 为空时返回 nil 引擎，
// 调用方按无规则处理。
func NewCelRuleEngine(expression string) (*CelRuleEngine, error) {
	if expression == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("type", cel.StringType),
		cel.Variable("customerId", cel.StringType),
		cel.Variable("message", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "rules: create cel environment")
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "rules: compile %q", expression)
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.Errorf("rules: expression %q must return bool", expression)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "rules: build program")
	}
	return &CelRuleEngine{program: program}, nil
}

func (e *CelRuleEngine) Suppressed(n *domain.Notification) (bool, error) {
	out, _, err := e.program.Eval(map[string]any{
		"type":       string(n.Type),
		"customerId": n.CustomerID,
		"message":    n.Message,
	})
	if err != nil {
		return false, errors.Wrap(err, "rules: evaluate")
	}
	suppressed, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("rules: expression returned %T, want bool", out.Value())
	}
	return suppressed, nil
}
