package hostapi

import (
	"github.com/dop251/goja"

	"github.com/kestrel-labs/scriptrt/internal/engine/bridge"
)

// jsEvent implements the event namespace: list(extraStart, extraEnd),
// update_event_profile(id, profile, path, merge) (spec §4.4).
func (s *Surface) jsEvent(vm *goja.Runtime, h *bridge.Handler) *goja.Object {
	obj := vm.NewObject()

	_ = obj.Set("list", func(call goja.FunctionCall) goja.Value {
		args := map[string]any{
			"extraStart": call.Argument(0).Export(),
			"extraEnd":   call.Argument(1).Export(),
		}
		return s.cachedDelegate(vm, h, "", "event", "list", args)
	})

	_ = obj.Set("update_event_profile", func(call goja.FunctionCall) goja.Value {
		args := map[string]any{
			"id":      call.Argument(0).Export(),
			"profile": call.Argument(1).Export(),
			"path":    call.Argument(2).Export(),
			"merge":   call.Argument(3).Export(),
		}
		return s.cachedDelegate(vm, h, "", "event", "update_event_profile", args)
	})

	return obj
}
