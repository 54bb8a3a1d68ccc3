package hostapi

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/kestrel-labs/scriptrt/internal/engine/bridge"
)

// jsStore implements the store namespace: get (cached per-handler under
// "store:<name>"), new_order, update_order, update_orders — all delegating
// to the external store service (spec §4.4).
func (s *Surface) jsStore(vm *goja.Runtime, h *bridge.Handler) *goja.Object {
	obj := vm.NewObject()

	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		return s.cachedDelegate(vm, h, fmt.Sprintf("store:%s", name), "store", "get", map[string]any{"name": name})
	})

	_ = obj.Set("new_order", func(call goja.FunctionCall) goja.Value {
		args := exportArgs(call)
		return s.cachedDelegate(vm, h, "", "store", "new_order", args)
	})

	_ = obj.Set("update_order", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		return s.cachedDelegate(vm, h, "", "store", "update_order", map[string]any{"id": id})
	})

	_ = obj.Set("update_orders", func(call goja.FunctionCall) goja.Value {
		return s.cachedDelegate(vm, h, "", "store", "update_orders", nil)
	})

	return obj
}

// exportArgs flattens positional JS call arguments into a Go args map keyed
// by position, the shape Downstream.request forwards on as the RPC body.
func exportArgs(call goja.FunctionCall) map[string]any {
	args := make(map[string]any, len(call.Arguments))
	for i, a := range call.Arguments {
		args[fmt.Sprintf("arg%d", i)] = a.Export()
	}
	return args
}
