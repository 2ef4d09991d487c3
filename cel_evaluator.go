package sop

import (
	"sort"
	"strings"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// celReserved lists names a record field cannot be declared under: the
// bound variables and the identifiers CEL already owns.
var celReserved = map[string]struct{}{
	"now": {}, "args": {}, "metadata": {}, "entityType": {},
	"type": {}, "int": {}, "uint": {}, "double": {}, "bool": {},
	"string": {}, "bytes": {}, "list": {}, "map": {}, "null_type": {},
	"dyn": {}, "in": {}, "null": {}, "true": {}, "false": {},
}

// celEvaluator runs filters with cel-go. Record fields are declared as dyn
// variables, so a program is bound to the field set it was compiled for;
// the cache key carries that set.
type celEvaluator struct {
	cfg engineConfig
}

// NewCELEvaluator returns a filter engine backed by cel-go. Registered
// functions take one or two arguments, e.g. prefix(partNumber); call(name,
// [args]) reaches any arity.
func NewCELEvaluator(opts ...EngineOption) Evaluator {
	return &celEvaluator{cfg: newEngineConfig(opts)}
}

func (e *celEvaluator) Engine() string { return EngineCEL }

func (e *celEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	ctx = ctx.withDefaults()
	program, err := e.program(expression, ctx.Record)
	if err != nil {
		return nil, evalFailure(EngineCEL, expression, ctx.EntityType, err)
	}
	out, _, err := program.Eval(bindings(ctx))
	if err != nil {
		return nil, evalFailure(EngineCEL, expression, ctx.EntityType, err)
	}
	return out.Value(), nil
}

// Compile defers the build to the first evaluation since the declared
// variables depend on the record.
func (e *celEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, evalFailure(EngineCEL, expression, "", errEmptyExpression)
	}
	return compiledRule(func(ctx RuleContext) (any, error) {
		return e.Evaluate(ctx, expression)
	}), nil
}

func (e *celEvaluator) program(expression string, record map[string]any) (celgo.Program, error) {
	if expression == "" {
		return nil, errEmptyExpression
	}
	fields := make([]string, 0, len(record))
	for name := range record {
		if _, skip := celReserved[name]; skip {
			continue
		}
		fields = append(fields, name)
	}
	sort.Strings(fields)
	key := strings.Join(fields, ",") + "|" + expression

	return cached(e.cfg, EngineCEL, key, func() (celgo.Program, error) {
		env, err := e.env(fields)
		if err != nil {
			return nil, err
		}
		ast, issues := env.Compile(expression)
		if issues != nil && issues.Err() != nil {
			return nil, issues.Err()
		}
		return env.Program(ast)
	})
}

func (e *celEvaluator) env(fields []string) (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("now", celgo.TimestampType),
		celgo.Variable("args", celgo.DynType),
		celgo.Variable("metadata", celgo.DynType),
		celgo.Variable("entityType", celgo.StringType),
	}
	for _, name := range fields {
		opts = append(opts, celgo.Variable(name, celgo.DynType))
	}
	if fns := e.cfg.functions; fns.Len() > 0 {
		opts = append(opts, celgo.Function("call", celgo.Overload(
			"call_string_list",
			[]*celgo.Type{celgo.StringType, celgo.ListType(celgo.DynType)},
			celgo.DynType,
			celgo.BinaryBinding(func(name, list ref.Val) ref.Val {
				fn, _ := name.Value().(string)
				return celResult(fns.Call(fn, celList(list)...))
			}),
		)))
		for _, name := range fns.Names() {
			fn := fns.bound(name)
			opts = append(opts, celgo.Function(name,
				celgo.Overload(name+"_dyn",
					[]*celgo.Type{celgo.DynType}, celgo.DynType,
					celgo.UnaryBinding(func(a ref.Val) ref.Val {
						return celResult(fn(a.Value()))
					}),
				),
				celgo.Overload(name+"_dyn_dyn",
					[]*celgo.Type{celgo.DynType, celgo.DynType}, celgo.DynType,
					celgo.BinaryBinding(func(a, b ref.Val) ref.Val {
						return celResult(fn(a.Value(), b.Value()))
					}),
				),
			))
		}
	}
	return celgo.NewEnv(opts...)
}

func celList(v ref.Val) []any {
	list, ok := v.(interface {
		Size() ref.Val
		Get(ref.Val) ref.Val
	})
	if !ok {
		return nil
	}
	size, _ := list.Size().Value().(int64)
	out := make([]any, 0, size)
	for i := int64(0); i < size; i++ {
		out = append(out, list.Get(types.Int(i)).Value())
	}
	return out
}

func celResult(value any, err error) ref.Val {
	if err != nil {
		return types.NewErr("%s", err.Error())
	}
	if value == nil {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(value)
}
