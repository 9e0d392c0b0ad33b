package security

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/cel-go/cel"

	"stockwise/internal/core/apperror"
	appctx "stockwise/internal/core/context"
)

// Resource describes what a request touches. Empty fields are unknown.
type Resource struct {
	Kind            string
	ID              string
	LocationID      string
	OperatingUnitID string
}

func (r Resource) toMap() map[string]any {
	return map[string]any{
		"kind":              r.Kind,
		"id":                r.ID,
		"location_id":       r.LocationID,
		"operating_unit_id": r.OperatingUnitID,
	}
}

// Authorizer decides whether the caller in ctx may perform perm on res.
// It returns nil when allowed and a FORBIDDEN AppError otherwise.
type Authorizer interface {
	Authorize(ctx context.Context, perm Permission, res Resource) error
}

// AllowAll grants every request.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, Permission, Resource) error { return nil }

// DefaultRuleKey selects the rule applied to permissions without their own rule.
const DefaultRuleKey = "*"

// CELPolicy evaluates one CEL expression per permission. Expressions see
// three variables: user (id, roles, permissions, is_admin), resource (kind,
// id, location_id, operating_unit_id) and permission.
//
// Example rule: `user.is_admin || permission in user.permissions`.
type CELPolicy struct {
	programs map[string]cel.Program
}

// NewCELPolicy compiles rules keyed by permission name. A missing default
// rule means "true".
func NewCELPolicy(rules map[string]string) (*CELPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("user", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("resource", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("permission", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	if _, ok := rules[DefaultRuleKey]; !ok {
		merged := make(map[string]string, len(rules)+1)
		for k, v := range rules {
			merged[k] = v
		}
		merged[DefaultRuleKey] = "true"
		rules = merged
	}

	programs := make(map[string]cel.Program, len(rules))
	for perm, expr := range rules {
		if perm != DefaultRuleKey && !slices.Contains(AllPermissions(), Permission(perm)) {
			return nil, fmt.Errorf("rule for unknown permission %q", perm)
		}
		ast, iss := env.Compile(expr)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("compile rule %q: %w", perm, iss.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program rule %q: %w", perm, err)
		}
		programs[perm] = prg
	}

	return &CELPolicy{programs: programs}, nil
}

// Authorize implements Authorizer.
func (p *CELPolicy) Authorize(ctx context.Context, perm Permission, res Resource) error {
	prg, ok := p.programs[string(perm)]
	if !ok {
		prg = p.programs[DefaultRuleKey]
	}

	out, _, err := prg.ContextEval(ctx, map[string]any{
		"user":       userToMap(appctx.GetUser(ctx)),
		"resource":   res.toMap(),
		"permission": string(perm),
	})
	if err != nil {
		return apperror.NewForbidden("access policy could not be evaluated").
			WithDetail("permission", string(perm)).
			WithCause(err)
	}

	allowed, ok := out.Value().(bool)
	if !ok || !allowed {
		return apperror.NewForbidden(fmt.Sprintf("permission %s required", perm)).
			WithDetail("permission", string(perm))
	}
	return nil
}

func userToMap(u *appctx.UserContext) map[string]any {
	if u == nil {
		return map[string]any{
			"id":          "",
			"roles":       []string{},
			"permissions": []string{},
			"is_admin":    false,
		}
	}
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	perms := u.Permissions
	if perms == nil {
		perms = []string{}
	}
	return map[string]any{
		"id":          u.UserID,
		"roles":       roles,
		"permissions": perms,
		"is_admin":    u.IsAdmin,
	}
}
