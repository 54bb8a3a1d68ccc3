package hostapi

import (
	"context"
	"time"

	"github.com/dop251/goja"

	"github.com/kestrel-labs/scriptrt/internal/engine/bridge"
)

// jsPromo implements the promo namespace: use_code(key), which unwraps and
// returns result.result from the promo service response (spec §4.4).
func (s *Surface) jsPromo(vm *goja.Runtime, h *bridge.Handler) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("use_code", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		return bridge.Async(s.Worker, vm, func() (any, error) {
			resp, err := s.Downstream.Request(context.Background(), "promo", "use_code", map[string]any{"key": key}, 10*time.Second)
			if err != nil {
				return nil, err
			}
			if m, ok := resp.(map[string]any); ok {
				return m["result"], nil
			}
			return resp, nil
		})
	})
	return obj
}
