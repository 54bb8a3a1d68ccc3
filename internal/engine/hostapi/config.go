package hostapi

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/kestrel-labs/scriptrt/internal/engine/bridge"
)

// jsConfig implements config.get(): fetches config for the current
// (app_name, app_version), cached in the per-handler cache under
// "config:app:ver" (spec §4.4).
func (s *Surface) jsConfig(vm *goja.Runtime, h *bridge.Handler) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		key := fmt.Sprintf("config:%s:%s", h.Env.ApplicationName, h.Env.ApplicationVersion)
		if v, ok := h.Cache.Get(key); ok {
			promise, resolve, _ := vm.NewPromise()
			_ = resolve(vm.ToValue(v))
			return vm.ToValue(promise)
		}
		return bridge.Async(s.Worker, vm, func() (any, error) {
			if s.Config == nil {
				return map[string]any{}, nil
			}
			cfg, err := s.Config.GetConfig(context.Background(), h.Env.ApplicationName, h.Env.ApplicationVersion)
			if err != nil {
				return nil, err
			}
			h.Cache.Set(key, cfg)
			return cfg, nil
		})
	})
	return obj
}
