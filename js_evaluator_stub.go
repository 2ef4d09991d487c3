//go:build !js_eval

package sop

// NewJSEvaluator returns nil unless the module is built with the js_eval tag.
// Config.Validate rejects the js engine in that case.
func NewJSEvaluator(...EngineOption) Evaluator {
	return nil
}

func jsEvaluatorAvailable() bool {
	return false
}
