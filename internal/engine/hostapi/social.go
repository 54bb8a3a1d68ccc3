package hostapi

import (
	"github.com/dop251/goja"

	"github.com/kestrel-labs/scriptrt/internal/engine/bridge"
)

// jsSocial implements the social namespace: acquire_name, check_name,
// release_name, update_profile, update_group_profiles (spec §4.4).
func (s *Surface) jsSocial(vm *goja.Runtime, h *bridge.Handler) *goja.Object {
	obj := vm.NewObject()

	delegate := func(method string) func(call goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			return s.cachedDelegate(vm, h, "", "social", method, exportArgs(call))
		}
	}

	_ = obj.Set("acquire_name", delegate("acquire_name"))
	_ = obj.Set("check_name", delegate("check_name"))
	_ = obj.Set("release_name", delegate("release_name"))
	_ = obj.Set("update_profile", delegate("update_profile"))
	_ = obj.Set("update_group_profiles", delegate("update_group_profiles"))

	return obj
}
