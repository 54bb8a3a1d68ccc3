package hostapi

import (
	"context"

	"github.com/dop251/goja"

	"github.com/kestrel-labs/scriptrt/internal/engine/bridge"
)

// jsAdmin implements the admin namespace: delete_accounts(accounts,
// gamespace_only), injected only into the Server Code build, which publishes
// a message rather than calling a downstream service directly (spec §4.4,
// §4.8).
func (s *Surface) jsAdmin(vm *goja.Runtime, h *bridge.Handler) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("delete_accounts", func(call goja.FunctionCall) goja.Value {
		accounts := call.Argument(0).Export()
		gamespaceOnly := call.Argument(1).Export()
		return bridge.Async(s.Worker, vm, func() (any, error) {
			payload := map[string]any{
				"gamespace_id":   h.Env.GamespaceID,
				"accounts":       accounts,
				"gamespace_only": gamespaceOnly,
			}
			if s.Publisher == nil {
				return goja.Undefined(), nil
			}
			if err := s.Publisher.Publish(context.Background(), "admin.delete_accounts", payload); err != nil {
				return nil, err
			}
			return goja.Undefined(), nil
		})
	})
	return obj
}
