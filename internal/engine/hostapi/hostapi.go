// Package hostapi installs the readonly host API globals described in spec
// §4.4 into a Build's goja.Runtime: log, sleep, moment, web.get,
// config.get, store.*, profile.*, social.*, message.*, promo.*, event.*,
// admin.* (server builds only), and the Error(code, message) constructor.
// Every async method is a thin Work closure handed to bridge.Async so the
// worker is never blocked waiting on it (spec §4.5).
package hostapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dop251/goja"
	"golang.org/x/sync/singleflight"

	"github.com/kestrel-labs/scriptrt/internal/downstream"
	"github.com/kestrel-labs/scriptrt/internal/engine/bridge"
	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
	"github.com/kestrel-labs/scriptrt/internal/httpclient"
)

// ConfigSource resolves the application config delegated to by config.get.
type ConfigSource interface {
	GetConfig(ctx context.Context, appName, appVersion string) (any, error)
}

// Surface bundles everything hostapi needs beyond the per-invocation
// Handler: the worker to bridge completions through, the downstream RPC
// client, the message publisher, the config source, and HTTP client config
// for web.get. One Surface is built per Build and shared by every Handler
// that runs against it.
type Surface struct {
	Worker      *worker.Worker
	Downstream  *downstream.Client
	Publisher   *downstream.Publisher
	Config      ConfigSource
	HTTPClient  *http.Client
	IsServer    bool // true only for the privileged Server Code build (§4.8)
	inFlightGet singleflight.Group
}

// NewSurface constructs a Surface, defaulting the HTTP client to an
// SSRF-safe one if none is given.
func NewSurface(w *worker.Worker, ds *downstream.Client, pub *downstream.Publisher, cfg ConfigSource, isServer bool) *Surface {
	return &Surface{
		Worker:     w,
		Downstream: ds,
		Publisher:  pub,
		Config:     cfg,
		HTTPClient: httpclient.New(httpclient.Config{Timeout: 10 * time.Second, MaxResponseBytes: 4 << 20}),
		IsServer:   isServer,
	}
}

// Install registers every host API global onto vm for the given per-call
// Handler. Called once per Handler (one-shot call, session call, or eval),
// immediately before the target function is invoked.
func (s *Surface) Install(vm *goja.Runtime, h *bridge.Handler) error {
	if err := vm.Set("log", s.jsLog(h)); err != nil {
		return err
	}
	if err := vm.Set("sleep", s.jsSleep(vm)); err != nil {
		return err
	}
	if err := vm.Set("moment", s.jsMoment(vm)); err != nil {
		return err
	}
	if err := vm.Set("web", s.jsWeb(vm, h)); err != nil {
		return err
	}
	if err := vm.Set("config", s.jsConfig(vm, h)); err != nil {
		return err
	}
	if err := vm.Set("store", s.jsStore(vm, h)); err != nil {
		return err
	}
	if err := vm.Set("profile", s.jsProfile(vm, h)); err != nil {
		return err
	}
	if err := vm.Set("social", s.jsSocial(vm, h)); err != nil {
		return err
	}
	if err := vm.Set("message", s.jsMessage(vm, h)); err != nil {
		return err
	}
	if err := vm.Set("promo", s.jsPromo(vm, h)); err != nil {
		return err
	}
	if err := vm.Set("event", s.jsEvent(vm, h)); err != nil {
		return err
	}
	if err := vm.Set("Error", s.jsErrorCtor(vm)); err != nil {
		return err
	}
	if s.IsServer {
		if err := vm.Set("admin", s.jsAdmin(vm, h)); err != nil {
			return err
		}
	}
	return nil
}

// jsLog implements log(msg): sync, appends to the handler's log sink and
// the server log.
func (s *Surface) jsLog(h *bridge.Handler) func(msg string) {
	return func(msg string) {
		slog.Info("script log", "gamespace_id", h.Env.GamespaceID, "message", msg)
		if h.Log != nil {
			h.Log(msg)
		}
		if h.Debug != nil {
			h.Debug(msg)
		}
	}
}

// jsSleep implements sleep(sec): resolves after sec seconds on the host
// scheduler, never blocking the worker goroutine.
func (s *Surface) jsSleep(vm *goja.Runtime) func(sec float64) goja.Value {
	return func(sec float64) goja.Value {
		return bridge.Async(s.Worker, vm, func() (any, error) {
			time.Sleep(time.Duration(sec * float64(time.Second)))
			return goja.Undefined(), nil
		})
	}
}

// jsMoment implements moment(): yields exactly one host scheduler tick.
func (s *Surface) jsMoment(vm *goja.Runtime) func() goja.Value {
	return func() goja.Value {
		return bridge.Async(s.Worker, vm, func() (any, error) {
			return goja.Undefined(), nil
		})
	}
}

// jsErrorCtor implements the in-JS Error(code, message) constructor: an
// APIUserError carrying (code, message) back across the bridge when thrown,
// matching the {code, message, name} shape bridge.ClassifyRejection and
// bridge.RejectionValue already understand.
func (s *Surface) jsErrorCtor(vm *goja.Runtime) func(call goja.ConstructorCall) *goja.Object {
	return func(call goja.ConstructorCall) *goja.Object {
		code := 500
		if len(call.Arguments) > 0 {
			code = int(call.Arguments[0].ToInteger())
		}
		msg := ""
		if len(call.Arguments) > 1 {
			msg = call.Arguments[1].String()
		}
		obj := call.This
		_ = obj.Set("code", code)
		_ = obj.Set("message", msg)
		_ = obj.Set("name", "APIUserError")
		_ = obj.Set("stack", fmt.Sprintf("APIUserError: %s", msg))
		return nil
	}
}

// cachedDelegate is the common shape of every store.*/profile.*/social.*/
// message.*/promo.*/event.* method: an async call to Downstream.Request,
// optionally read from / written to the handler cache first.
func (s *Surface) cachedDelegate(vm *goja.Runtime, h *bridge.Handler, cacheKey, service, method string, args map[string]any) goja.Value {
	if cacheKey != "" {
		if v, ok := h.Cache.Get(cacheKey); ok {
			promise, resolve, _ := vm.NewPromise()
			_ = resolve(vm.ToValue(v))
			return vm.ToValue(promise)
		}
	}
	return bridge.Async(s.Worker, vm, func() (any, error) {
		result, err := s.Downstream.Request(context.Background(), service, method, args, 10*time.Second)
		if err != nil {
			return nil, err
		}
		if cacheKey != "" {
			h.Cache.Set(cacheKey, result)
		}
		return result, nil
	})
}
