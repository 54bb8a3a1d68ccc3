// Package build implements spec §4.2: a Build is an initialized JS context
// (stdlib + user files evaluated in order) resident on one worker, exposing
// whitelisted top-level functions (allow_call) and session classes
// (allow_session).
package build

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/jellydator/ttlcache/v3"

	"github.com/kestrel-labs/scriptrt/internal/engine/bridge"
	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
	"github.com/kestrel-labs/scriptrt/internal/engine/hostapi"
	"github.com/kestrel-labs/scriptrt/internal/engine/value"
	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
	"github.com/kestrel-labs/scriptrt/internal/sourcestore"
	"github.com/kestrel-labs/scriptrt/internal/stdlib"
)

// ID identifies a Build: hash(gamespace, project, commit) (spec §3).
type ID string

// NewID computes a Build's identity, stable for identical
// (gamespace, project, commit).
func NewID(gamespace, project, commit string) ID {
	sum := sha256.Sum256([]byte(gamespace + "\x00" + project + "\x00" + commit))
	return ID(hex.EncodeToString(sum[:]))
}

// Build is a compiled, resident JS environment bound to one Worker.
type Build struct {
	ID      ID
	Gamespace string
	Project string
	Commit  string

	worker  *worker.Worker
	surface *hostapi.Surface

	callNames      map[string]bool
	sessionClasses map[string]bool
	callScopes     map[string]string // name -> required_scope expr, own property only
	sessionScopes  map[string]string

	// refcount, idle timer, and release hook are owned by buildcache, not
	// Build itself — Build only exposes the primitives it needs (Worker,
	// dispatch). See buildcache.Entry.
}

// Options configures New.
type Options struct {
	Gamespace, Project, Commit string
	Worker                     *worker.Worker
	Surface                    *hostapi.Surface
	Files                      []sourcestore.File
}

// New assembles a Build on opts.Worker: evaluates stdlib.js, then every user
// file in listing order, then scans globals for allow_call/allow_session
// markers (spec §4.2 steps 1-3).
func New(ctx context.Context, opts Options) (*Build, error) {
	b := &Build{
		ID:        NewID(opts.Gamespace, opts.Project, opts.Commit),
		Gamespace: opts.Gamespace,
		Project:   opts.Project,
		Commit:    opts.Commit,
		worker:    opts.Worker,
		surface:   opts.Surface,
	}

	_, err := opts.Worker.RunSync(func(vm *goja.Runtime) (any, error) {
		stdlibSrc, err := stdlib.Source()
		if err != nil {
			return nil, enginerr.NewBuildError(500, "loading stdlib.js: "+err.Error())
		}
		if _, err := vm.RunScript("stdlib.js", stdlibSrc); err != nil {
			return nil, enginerr.NewBuildError(500, "evaluating stdlib.js: "+bridge.ClassifyException(vm, err).Error())
		}

		for _, f := range opts.Files {
			if _, err := vm.RunScript(f.Name, f.Text); err != nil {
				return nil, enginerr.NewBuildError(500, fmt.Sprintf("compiling %s: %s", f.Name, bridge.ClassifyException(vm, err).Error()))
			}
		}

		callNames, sessionClasses, callScopes, sessionScopes := scanGlobals(vm)
		b.callNames = callNames
		b.sessionClasses = sessionClasses
		b.callScopes = callScopes
		b.sessionScopes = sessionScopes
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// scanGlobals walks the global object looking for own allow_call/
// allow_session markers set by stdlib.js's register()/registerSession()
// helpers, or set directly by a user file.
func scanGlobals(vm *goja.Runtime) (callNames, sessionClasses map[string]bool, callScopes, sessionScopes map[string]string) {
	callNames = map[string]bool{}
	sessionClasses = map[string]bool{}
	callScopes = map[string]string{}
	sessionScopes = map[string]string{}

	global := vm.GlobalObject()
	for _, key := range global.Keys() {
		v := global.Get(key)
		obj, ok := v.(*goja.Object)
		if !ok {
			continue
		}
		if allowed, _ := obj.Get("allow_call").Export().(bool); allowed {
			callNames[key] = true
			if scope, _ := obj.Get("required_scope").Export().(string); scope != "" {
				callScopes[key] = scope
			}
		}
		if allowed, _ := obj.Get("allow_session").Export().(bool); allowed {
			sessionClasses[key] = true
			if scope, _ := obj.Get("required_scope").Export().(string); scope != "" {
				sessionScopes[key] = scope
			}
		}
	}
	return callNames, sessionClasses, callScopes, sessionScopes
}

// Worker returns the Worker this Build is resident on.
func (b *Build) Worker() *worker.Worker { return b.worker }

// IsCallable reports whether name is a one-shot-callable top-level function
// (present, own allow_call===true), independent of the fixed blacklist
// enginerr.IsCallMethodAllowed already rejects.
func (b *Build) IsCallable(name string) bool { return b.callNames[name] }

// IsSessionClass reports whether name is a session-instantiable class
// (present, own allow_session===true).
func (b *Build) IsSessionClass(name string) bool { return b.sessionClasses[name] }

// RequiredCallScope returns the required_scope expression attached to a
// one-shot-callable function, if any.
func (b *Build) RequiredCallScope(name string) (string, bool) {
	s, ok := b.callScopes[name]
	return s, ok
}

// RequiredSessionScope returns the required_scope expression attached to a
// session class, if any.
func (b *Build) RequiredSessionScope(name string) (string, bool) {
	s, ok := b.sessionScopes[name]
	return s, ok
}

// DefaultCallTimeout bounds how long Call waits for a host future to settle before
// declaring an 408 timeout (spec §4.6.1 step 3, default 10s).
const DefaultCallTimeout = 10 * time.Second

// Call dispatches a one-shot call: installs h, invokes methodName(argsValue)
// on the Build's worker — a single positional argument carrying the whole
// parsed request body — and classifies the result per spec §4.6.1.
func (b *Build) Call(ctx context.Context, h *bridge.Handler, methodName string, argsValue any, timeout time.Duration) (any, error) {
	return b.invoke(ctx, h, nil, methodName, []any{argsValue}, timeout)
}

// invoke is shared by one-shot calls (thisVal nil ⇒ Undefined) and session
// method calls (thisVal the session instance). The synchronous apply (up to
// the point it returns or hands back a pending Promise) is bounded by the
// fixed micro-timeout, independent of and nested inside timeout — spec §5's
// guard against any single synchronous JS stretch wedging the worker for the
// whole call timeout. Only once the apply has returned does an async result
// (a Promise awaiting a host-posted resolution) get the caller's full
// timeout to settle.
func (b *Build) invoke(ctx context.Context, h *bridge.Handler, thisVal goja.Value, methodName string, args []any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	type outcome struct {
		val any
		err error
	}

	fut, err := b.worker.Submit(func(vm *goja.Runtime) (any, error) {
		if err := b.surface.Install(vm, h); err != nil {
			return nil, err
		}

		this := thisVal
		target := vm.GlobalObject().Get(methodName)
		if this != nil {
			target = this.(*goja.Object).Get(methodName)
		}

		callable, ok := goja.AssertFunction(target)
		if !ok {
			return nil, &enginerr.NoSuchMethod{Name: methodName}
		}

		jsArgs := make([]goja.Value, len(args))
		for i, a := range args {
			jsArgs[i] = vm.ToValue(a)
		}

		if this == nil {
			this = goja.Undefined()
		}
		result, err := callable(this, jsArgs...)
		if err != nil {
			return nil, bridge.ClassifyException(vm, err)
		}

		if bridge.IsPromise(result) {
			return bridge.AwaitPromise(vm, result), nil
		}
		return value.Convert(vm, result), nil
	})
	if err != nil {
		return nil, err
	}

	syncCh := make(chan outcome, 1)
	go func() {
		v, err := fut.Wait()
		syncCh <- outcome{v, err}
	}()

	var syncResult any
	select {
	case o := <-syncCh:
		if o.err != nil {
			return nil, o.err
		}
		syncResult = o.val
	case <-time.After(enginerr.DefaultMicroTimeout):
		b.worker.Terminate(fmt.Sprintf("synchronous call to %q exceeded micro-timeout (%s)", methodName, enginerr.DefaultMicroTimeout))
		return nil, enginerr.NewAPIError(408, fmt.Sprintf("function %q exceeded synchronous execution limit (%s)", methodName, enginerr.DefaultMicroTimeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	inner, ok := syncResult.(*worker.Future)
	if !ok {
		return syncResult, nil
	}

	// The apply returned a pending Promise: wait for its host-posted
	// resolution (bridge.CompleteOnWorker), which is itself guarded by the
	// same micro-timeout around the resolve/reject continuation. Here we
	// only bound the overall round trip by the caller's full call timeout.
	asyncCh := make(chan outcome, 1)
	go func() {
		v, err := inner.Wait()
		asyncCh <- outcome{v, err}
	}()

	select {
	case o := <-asyncCh:
		return o.val, o.err
	case <-time.After(timeout):
		b.worker.Terminate(fmt.Sprintf("call timeout (%s)", timeout))
		return nil, enginerr.NewAPIError(408, fmt.Sprintf("function %q call timeout (%s)", methodName, timeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NewInstance constructs a session instance: new Class(argsValue, env)
// inside the Build's context (spec §4.6.2 step 3), where args holds exactly
// the positional constructor parameters (typically []any{argsValue}).
// Returns the constructed instance as a retained *goja.Object reference,
// valid only on this Build's worker goroutine.
func (b *Build) NewInstance(ctx context.Context, h *bridge.Handler, className string, args []any) (*goja.Object, error) {
	type outcome struct {
		obj *goja.Object
		err error
	}
	resultCh := make(chan outcome, 1)

	_, err := b.worker.Submit(func(vm *goja.Runtime) (any, error) {
		if err := b.surface.Install(vm, h); err != nil {
			resultCh <- outcome{nil, err}
			return nil, nil
		}

		classVal := vm.GlobalObject().Get(className)
		classObj, ok := classVal.(*goja.Object)
		if !ok {
			resultCh <- outcome{nil, &enginerr.NoSuchClass{Name: className}}
			return nil, nil
		}

		jsArgs := make([]goja.Value, len(args)+1)
		for i, a := range args {
			jsArgs[i] = vm.ToValue(a)
		}
		jsArgs[len(args)] = vm.ToValue(h.Env)

		instance, err := vm.New(classObj, jsArgs...)
		if err != nil {
			resultCh <- outcome{nil, enginerr.NewSessionError(500, bridge.ClassifyException(vm, err).Error())}
			return nil, nil
		}
		resultCh <- outcome{instance, nil}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	select {
	case o := <-resultCh:
		return o.obj, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CallMethod invokes instance[methodName](argsValue, argsValue) on the
// Build's worker — the same value passed twice, per spec §4.6.2 step 2's
// dual-argument convention.
func (b *Build) CallMethod(ctx context.Context, h *bridge.Handler, instance *goja.Object, methodName string, argsValue any, timeout time.Duration) (any, error) {
	return b.invoke(ctx, h, instance, methodName, []any{argsValue, argsValue}, timeout)
}

// Eval runs text on the Build's worker with the short micro-timeout,
// returning the converted result (spec §4.6.2 Eval, debug sessions only).
func (b *Build) Eval(ctx context.Context, h *bridge.Handler, text string, microTimeout time.Duration) (any, error) {
	type outcome struct {
		val any
		err error
	}
	resultCh := make(chan outcome, 1)

	_, err := b.worker.Submit(func(vm *goja.Runtime) (any, error) {
		if err := b.surface.Install(vm, h); err != nil {
			resultCh <- outcome{nil, err}
			return nil, nil
		}
		result, err := vm.RunString(text)
		if err != nil {
			resultCh <- outcome{nil, bridge.ClassifyException(vm, err)}
			return nil, nil
		}
		resultCh <- outcome{value.Convert(vm, result), nil}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	if microTimeout <= 0 {
		microTimeout = enginerr.DefaultMicroTimeout
	}
	select {
	case o := <-resultCh:
		return o.val, o.err
	case <-time.After(microTimeout):
		b.worker.Terminate("eval micro-timeout")
		return nil, enginerr.NewAPIError(408, "eval micro-timeout")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PrecompileCache is the expiring saved_code map from spec §4.2/§4.7: keyed
// by "gamespace:function_name", capacity 64, TTL 60s, used by the standalone
// functions path to avoid re-fetching sources from FunctionRepo on every
// Build assembly.
type PrecompileCache struct {
	c *ttlcache.Cache[string, string]
}

const (
	PrecompileCapacity = 64
	PrecompileTTL       = 60 * time.Second
)

func NewPrecompileCache() *PrecompileCache {
	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](PrecompileTTL),
		ttlcache.WithCapacity[string, string](PrecompileCapacity),
	)
	go c.Start()
	return &PrecompileCache{c: c}
}

func (p *PrecompileCache) Get(gamespace, fnName string) (string, bool) {
	item := p.c.Get(gamespace + ":" + fnName)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

func (p *PrecompileCache) Set(gamespace, fnName, source string) {
	p.c.Set(gamespace+":"+fnName, source, ttlcache.DefaultTTL)
}

func (p *PrecompileCache) Stop() { p.c.Stop() }
