package hostapi

import (
	"github.com/dop251/goja"

	"github.com/kestrel-labs/scriptrt/internal/engine/bridge"
)

// jsMessage implements the message namespace: send_batch(sender, messages,
// authoritative) (spec §4.4).
func (s *Surface) jsMessage(vm *goja.Runtime, h *bridge.Handler) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("send_batch", func(call goja.FunctionCall) goja.Value {
		args := map[string]any{
			"sender":        call.Argument(0).Export(),
			"messages":      call.Argument(1).Export(),
			"authoritative": call.Argument(2).Export(),
		}
		return s.cachedDelegate(vm, h, "", "message", "send_batch", args)
	})
	return obj
}
