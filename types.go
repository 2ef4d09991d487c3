package sop

import (
	"time"

	"github.com/goliatone/go-sop/pkg/model"
)

// RuleContext carries inputs needed when evaluating a filter expression.
// Record holds the candidate entity's fields, bound as top-level variables.
type RuleContext struct {
	Record     map[string]any
	EntityType model.Type
	Now        *time.Time
	Args       map[string]any
	Metadata   map[string]any
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	if ctx.Record == nil {
		ctx.Record = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

// bindings returns the variables visible to an expression: the record
// fields plus now, args, metadata and entityType. Record fields never
// shadow those four.
func bindings(ctx RuleContext) map[string]any {
	env := make(map[string]any, len(ctx.Record)+4)
	for key, value := range ctx.Record {
		env[key] = value
	}
	env["now"] = ctx.timestamp()
	env["args"] = ctx.Args
	env["metadata"] = ctx.Metadata
	env["entityType"] = string(ctx.EntityType)
	return env
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

type compiledRule func(RuleContext) (any, error)

func (r compiledRule) Evaluate(ctx RuleContext) (any, error) {
	return r(ctx)
}
