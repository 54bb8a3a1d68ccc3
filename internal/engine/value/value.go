// Package value implements the host-side conversion of JS return values into
// plain Go data, per spec §6 "Return value conversion": arrays become
// ordered sequences, plain objects become string-keyed maps, functions
// become a literal placeholder string, and primitives pass through
// unchanged. The conversion is recursive and depth-unbounded.
package value

import (
	"strconv"

	"github.com/dop251/goja"
)

// FunctionPlaceholder is substituted for any JS function value encountered
// during conversion.
const FunctionPlaceholder = "[function Function]"

// Convert exports a goja.Value into plain Go data (nil, bool, int64, float64,
// string, []any, or map[string]any) following the spec's conversion rules.
// It must be called on the worker goroutine that owns rt.
func Convert(rt *goja.Runtime, v goja.Value) any {
	return convert(rt, v, make(map[goja.Value]bool))
}

func convert(rt *goja.Runtime, v goja.Value, seen map[goja.Value]bool) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}

	if obj, ok := v.(*goja.Object); ok {
		if seen[v] {
			// Recursive structures have no JSON representation; mirror the
			// conversion of a function rather than infinite-looping or
			// panicking mid-response.
			return FunctionPlaceholder
		}

		switch obj.ClassName() {
		case "Function", "GeneratorFunction", "AsyncFunction":
			return FunctionPlaceholder
		}
		if _, callable := goja.AssertFunction(v); callable {
			return FunctionPlaceholder
		}

		seen[v] = true
		defer delete(seen, v)

		if obj.ClassName() == "Array" {
			length := obj.Get("length").ToInteger()
			out := make([]any, 0, length)
			for i := int64(0); i < length; i++ {
				out = append(out, convert(rt, obj.Get(strconv.FormatInt(i, 10)), seen))
			}
			return out
		}

		out := make(map[string]any, len(obj.Keys()))
		for _, key := range obj.Keys() {
			out[key] = convert(rt, obj.Get(key), seen)
		}
		return out
	}

	exported := v.Export()
	switch x := exported.(type) {
	case int64:
		return x
	case float64:
		return x
	case bool:
		return x
	case string:
		return x
	default:
		return exported
	}
}
