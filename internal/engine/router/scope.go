package router

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
	"github.com/kestrel-labs/scriptrt/internal/engine/env"
)

// scopeEnv is the expr-lang evaluation environment for a required_scope
// expression: "scopes" holds the caller's access scopes, "has(s)" is sugar
// for checking membership without hand-rolling `"s" in scopes`.
type scopeEnv struct {
	Scopes []string          `expr:"scopes"`
	Has    func(string) bool `expr:"has"`
}

// scopeCache memoizes compiled required_scope programs, keyed by the
// expression text, mirroring the teacher's bounded compiled-expression cache
// for PA-BT conditions (evaluation.go's exprCache) — here unbounded since the
// key space is the fixed set of required_scope strings a deployed build
// declares, not arbitrary runtime-generated text.
var scopeCache sync.Map // map[string]*vm.Program

func compileScope(expression string) (*vm.Program, error) {
	if cached, ok := scopeCache.Load(expression); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(expression,
		expr.Env(scopeEnv{}),
		expr.AsBool(),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, err
	}
	actual, _ := scopeCache.LoadOrStore(expression, program)
	return actual.(*vm.Program), nil
}

// checkScope evaluates a required_scope expression (set via register/
// registerSession's optional third argument, an [FULL] enrichment of §3's
// Environment model) against e.AccessScopes. An empty expression always
// passes. A compile/eval failure or a false result is reported as
// APIError(403, ...), matching the wire error shape every other dispatch
// failure uses.
func checkScope(expression string, e env.Environment) error {
	if expression == "" {
		return nil
	}
	program, err := compileScope(expression)
	if err != nil {
		return enginerr.NewAPIError(403, "invalid required_scope expression: "+err.Error())
	}
	result, err := expr.Run(program, scopeEnv{
		Scopes: e.AccessScopes,
		Has:    e.HasScope,
	})
	if err != nil {
		return enginerr.NewAPIError(403, "required_scope evaluation failed: "+err.Error())
	}
	if allowed, _ := result.(bool); !allowed {
		return enginerr.NewAPIError(403, "access scope not permitted")
	}
	return nil
}
