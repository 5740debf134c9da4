package security

import (
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"

	appctx "crm/internal/core/context"
)

// RuleSet holds compiled CEL expressions that grant operations beyond the
// role table. Each expression sees `role`, `user_id` and `permissions` and
// must evaluate to a bool.
//
//	{"deal.approve_finance": "role == 'MANAGER' && 'finance.delegate' in permissions"}
type RuleSet struct {
	programs map[Operation]cel.Program
}

// CompileRules compiles operation -> expression pairs.
func CompileRules(exprs map[Operation]string) (*RuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("role", cel.StringType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("permissions", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	rs := &RuleSet{programs: make(map[Operation]cel.Program, len(exprs))}
	for op, expr := range exprs {
		ast, iss := env.Compile(expr)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("compile rule for %s: %w", op, iss.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program rule for %s: %w", op, err)
		}
		rs.programs[op] = prg
	}
	return rs, nil
}

// ParseRules decodes a JSON object of operation -> expression and compiles it.
// An empty string yields an empty rule set.
func ParseRules(raw string) (*RuleSet, error) {
	if raw == "" {
		return &RuleSet{}, nil
	}
	var exprs map[Operation]string
	if err := json.Unmarshal([]byte(raw), &exprs); err != nil {
		return nil, fmt.Errorf("decode policy rules: %w", err)
	}
	return CompileRules(exprs)
}

// Allows evaluates the rule for op. Missing rules and evaluation errors deny.
func (rs *RuleSet) Allows(op Operation, user *appctx.UserContext) bool {
	if rs == nil || user == nil {
		return false
	}
	prg, ok := rs.programs[op]
	if !ok {
		return false
	}
	perms := user.Permissions
	if perms == nil {
		perms = []string{}
	}
	out, _, err := prg.Eval(map[string]any{
		"role":        user.Role,
		"user_id":     user.UserID,
		"permissions": perms,
	})
	if err != nil {
		return false
	}
	allowed, ok := out.Value().(bool)
	return ok && allowed
}
