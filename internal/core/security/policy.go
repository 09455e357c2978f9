package security

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"

	"milkwms/internal/core/apperror"
	appctx "milkwms/internal/core/context"
)

// Authorizer checks whether the caller in ctx may perform action.
type Authorizer interface {
	Authorize(ctx context.Context, action Action) error
}

// CELPolicy evaluates one compiled CEL program per action.
// Unknown actions are denied.
type CELPolicy struct {
	programs map[Action]cel.Program
}

var _ Authorizer = (*CELPolicy)(nil)

// NewCELPolicy compiles rules. Overrides replace individual default rules.
func NewCELPolicy(rules map[Action]string) (*CELPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("roles", cel.ListType(cel.StringType)),
		cel.Variable("is_admin", cel.BoolType),
		cel.Variable("user_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	actions := make([]string, 0, len(rules))
	for a := range rules {
		actions = append(actions, string(a))
	}
	sort.Strings(actions)

	p := &CELPolicy{programs: make(map[Action]cel.Program, len(rules))}
	for _, name := range actions {
		action := Action(name)
		ast, iss := env.Compile(rules[action])
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("compile rule %s: %w", action, iss.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %s must evaluate to bool, got %s", action, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program rule %s: %w", action, err)
		}
		p.programs[action] = prg
	}
	return p, nil
}

// NewDefaultPolicy compiles DefaultRules with overrides applied.
func NewDefaultPolicy(overrides map[Action]string) (*CELPolicy, error) {
	rules := DefaultRules()
	for a, expr := range overrides {
		rules[a] = expr
	}
	return NewCELPolicy(rules)
}

// Authorize implements Authorizer.
func (p *CELPolicy) Authorize(ctx context.Context, action Action) error {
	user := appctx.GetUser(ctx)
	if user == nil {
		return apperror.NewUnauthorized("authentication required")
	}
	if user.IsAdmin {
		return nil
	}

	prg, ok := p.programs[action]
	if !ok {
		return apperror.NewForbidden("action is not permitted").WithDetail("action", string(action))
	}

	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}
	out, _, err := prg.Eval(map[string]any{
		"roles":    roles,
		"is_admin": user.IsAdmin,
		"user_id":  user.UserID,
	})
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("evaluate rule %s: %w", action, err))
	}

	if allowed, ok := out.Value().(bool); ok && allowed {
		return nil
	}
	return apperror.NewForbidden("insufficient permissions").
		WithDetail("action", string(action)).
		WithDetail("user_id", user.UserID)
}
