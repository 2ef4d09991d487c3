//go:build js_eval

package sop

import (
	"github.com/dop251/goja"
)

// jsEvaluator runs filters as JavaScript expressions with goja.
type jsEvaluator struct {
	cfg engineConfig
}

// NewJSEvaluator returns a filter engine backed by goja. Registered functions
// are bound as globals.
func NewJSEvaluator(opts ...EngineOption) Evaluator {
	return &jsEvaluator{cfg: newEngineConfig(opts)}
}

func (e *jsEvaluator) Engine() string { return EngineJS }

func (e *jsEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	ctx = ctx.withDefaults()
	program, err := e.program(expression)
	if err != nil {
		return nil, evalFailure(EngineJS, expression, ctx.EntityType, err)
	}
	return e.run(ctx, expression, program)
}

func (e *jsEvaluator) Compile(expression string) (CompiledRule, error) {
	program, err := e.program(expression)
	if err != nil {
		return nil, evalFailure(EngineJS, expression, "", err)
	}
	return compiledRule(func(ctx RuleContext) (any, error) {
		return e.run(ctx.withDefaults(), expression, program)
	}), nil
}

func (e *jsEvaluator) program(expression string) (*goja.Program, error) {
	if expression == "" {
		return nil, errEmptyExpression
	}
	return cached(e.cfg, EngineJS, expression, func() (*goja.Program, error) {
		return goja.Compile("filter", "(function(){ return ("+expression+"); })()", true)
	})
}

// run uses a fresh runtime per call; a goja.Runtime is not safe for
// concurrent use.
func (e *jsEvaluator) run(ctx RuleContext, expression string, program *goja.Program) (any, error) {
	vm := goja.New()
	for name, value := range bindings(ctx) {
		if err := vm.Set(name, value); err != nil {
			return nil, evalFailure(EngineJS, expression, ctx.EntityType, err)
		}
	}
	for _, name := range e.cfg.functions.Names() {
		if err := vm.Set(name, e.cfg.functions.bound(name)); err != nil {
			return nil, evalFailure(EngineJS, expression, ctx.EntityType, err)
		}
	}
	value, err := vm.RunProgram(program)
	if err != nil {
		return nil, evalFailure(EngineJS, expression, ctx.EntityType, err)
	}
	return value.Export(), nil
}

func jsEvaluatorAvailable() bool {
	return true
}
