// Package authorization decides which caller roles may reach which routes.
// Policies live in the casbin_rule table so operators can grant extra roles
// without a deploy.
package authorization

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("authorization",
	fx.Provide(NewAuthorizer),
)

const RoleAdmin = "ADMIN"

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// defaultPolicies are written on startup when missing.
var defaultPolicies = [][]string{
	{RoleAdmin, "/admin/*", "(GET)|(POST)"},
}

type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
	log      *zap.Logger
}

func NewAuthorizer(conn *gorm.DB, log *zap.Logger) (*Authorizer, error) {
	adapter, err := gormadapter.NewAdapterByDB(conn)
	if err != nil {
		return nil, fmt.Errorf("casbin adapter: %w", err)
	}
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("casbin enforcer: %w", err)
	}

	for _, rule := range defaultPolicies {
		if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
			return nil, fmt.Errorf("seed policy %v: %w", rule, err)
		}
	}

	return &Authorizer{enforcer: enforcer, log: log.Named("authorization")}, nil
}

// Allowed reports whether role may call method on path. An empty role is
// never allowed.
func (a *Authorizer) Allowed(role, path, method string) (bool, error) {
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		return false, nil
	}
	ok, err := a.enforcer.Enforce(role, path, strings.ToUpper(method))
	if err != nil {
		a.log.Warn("policy evaluation failed", zap.String("role", role), zap.String("path", path), zap.Error(err))
		return false, err
	}
	return ok, nil
}

// Grant lets role inherit the permissions of parent, e.g. SUPPORT from ADMIN.
func (a *Authorizer) Grant(role, parent string) error {
	_, err := a.enforcer.AddGroupingPolicy(strings.ToUpper(role), strings.ToUpper(parent))
	return err
}
