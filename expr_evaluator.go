package sop

import (
	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// exprEvaluator runs filters with github.com/expr-lang/expr. Registered
// functions are callable by name, e.g. prefix(partNumber) == "H".
type exprEvaluator struct {
	cfg engineConfig
}

// NewExprEvaluator returns the default filter engine.
func NewExprEvaluator(opts ...EngineOption) Evaluator {
	return &exprEvaluator{cfg: newEngineConfig(opts)}
}

func (e *exprEvaluator) Engine() string { return EngineExpr }

func (e *exprEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	ctx = ctx.withDefaults()
	program, err := e.program(expression)
	if err != nil {
		return nil, evalFailure(EngineExpr, expression, ctx.EntityType, err)
	}
	return e.run(ctx, expression, program)
}

func (e *exprEvaluator) Compile(expression string) (CompiledRule, error) {
	program, err := e.program(expression)
	if err != nil {
		return nil, evalFailure(EngineExpr, expression, "", err)
	}
	return compiledRule(func(ctx RuleContext) (any, error) {
		return e.run(ctx.withDefaults(), expression, program)
	}), nil
}

func (e *exprEvaluator) run(ctx RuleContext, expression string, program *exprvm.Program) (any, error) {
	out, err := exprlang.Run(program, bindings(ctx))
	if err != nil {
		return nil, evalFailure(EngineExpr, expression, ctx.EntityType, err)
	}
	return out, nil
}

func (e *exprEvaluator) program(expression string) (*exprvm.Program, error) {
	if expression == "" {
		return nil, errEmptyExpression
	}
	return cached(e.cfg, EngineExpr, expression, func() (*exprvm.Program, error) {
		options := []exprlang.Option{
			exprlang.Env(map[string]any{}),
			exprlang.AllowUndefinedVariables(),
		}
		for _, name := range e.cfg.functions.Names() {
			options = append(options, exprlang.Function(name, e.cfg.functions.bound(name)))
		}
		return exprlang.Compile(expression, options...)
	})
}
