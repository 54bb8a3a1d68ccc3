package hostapi

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/kestrel-labs/scriptrt/internal/engine/bridge"
)

// jsProfile implements the profile namespace: get(path?), update(profile,
// path, merge), query(query, limit) (spec §4.4).
func (s *Surface) jsProfile(vm *goja.Runtime, h *bridge.Handler) *goja.Object {
	obj := vm.NewObject()

	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		path := call.Argument(0).String()
		cacheKey := ""
		if path != "" {
			cacheKey = fmt.Sprintf("profile:%s", path)
		}
		return s.cachedDelegate(vm, h, cacheKey, "profile", "get", map[string]any{"path": path})
	})

	_ = obj.Set("update", func(call goja.FunctionCall) goja.Value {
		args := map[string]any{
			"profile": call.Argument(0).Export(),
			"path":    call.Argument(1).Export(),
			"merge":   call.Argument(2).Export(),
		}
		return s.cachedDelegate(vm, h, "", "profile", "update", args)
	})

	_ = obj.Set("query", func(call goja.FunctionCall) goja.Value {
		args := map[string]any{
			"query": call.Argument(0).Export(),
			"limit": call.Argument(1).Export(),
		}
		return s.cachedDelegate(vm, h, "", "profile", "query", args)
	})

	return obj
}
