package gatewayhttp

import (
	"github.com/n9te9/federation-gateway/internal/execute"
	"github.com/n9te9/federation-gateway/internal/plan"
	"github.com/n9te9/federation-gateway/internal/response"
)

// renderFields walks a Result's top-level field values into the plain
// map[string]any tree encoding/json expects, resolving nested objects and
// lists through the compiled shapes and shared arena.
func renderFields(result *execute.Result, compiled *plan.Compiled) map[string]any {
	r := &renderer{compiled: compiled, arena: result.Arena}
	out := make(map[string]any, len(result.Fields))
	for key, v := range result.Fields {
		out[key] = r.value(v)
	}
	return out
}

type renderer struct {
	compiled *plan.Compiled
	arena    *response.Arena
}

func (r *renderer) value(v response.Value) any {
	switch v.Kind {
	case response.ValueNull:
		return nil
	case response.ValueObject:
		return r.object(r.arena.Get(v.Object))
	case response.ValueList:
		elems := make([]any, len(v.List))
		for i, e := range v.List {
			elems[i] = r.value(e)
		}
		return elems
	case response.ValueString, response.ValueEnum:
		return v.Str
	case response.ValueInt:
		return v.Int
	case response.ValueFloat:
		return v.Float
	case response.ValueBool:
		return v.Bool
	default:
		return nil
	}
}

// object renders one decoded object by walking its ConcreteShape's field
// list in the same order decode.go populated obj.Values in.
func (r *renderer) object(obj *response.Object) map[string]any {
	if obj.Shape == plan.NoShape || int(obj.Shape) >= len(r.compiled.Shapes) {
		return nil
	}
	concrete := r.compiled.Shapes[obj.Shape].Concrete
	out := make(map[string]any, len(concrete.Fields))
	for i, fs := range concrete.Fields {
		out[fs.ResponseKey] = r.value(obj.Values[i])
	}
	return out
}
