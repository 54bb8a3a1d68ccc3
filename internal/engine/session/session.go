// Package session implements spec §3/§4.6.2: a live JS instance bound to a
// Build, with its own expiring cache, Environment, and log/debug sinks,
// serviced one method call at a time for its whole lifetime.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/kestrel-labs/scriptrt/internal/engine/bridge"
	"github.com/kestrel-labs/scriptrt/internal/engine/build"
	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
	"github.com/kestrel-labs/scriptrt/internal/engine/env"
)

// LogSink appends a log line visible to whoever owns the session (e.g. a
// server-side log aggregator). DebugSink additionally mirrors it to a
// connected debug client as a JSON-RPC notification; nil for non-debug
// sessions.
type LogSink func(message string)
type DebugSink func(message string)

// ReleaseFunc is called by buildcache.Cache.Release (or equivalent) once the
// session's Build ref is no longer needed. Session never imports buildcache
// directly to avoid a dependency cycle with the router that wires both
// together; it only needs "something to call on Close".
type ReleaseFunc func()

// Session is the live object described in spec §3.
type Session struct {
	ID    string
	Build *build.Build
	Env   env.Environment

	instance *goja.Object
	handler  *bridge.Handler
	release  ReleaseFunc

	className string
	closeOnce sync.Once
}

// Open implements spec §4.6.2 Open: constructs the instance on b and returns
// a ready Session. b must be a Build already ref'd by the caller; release is
// invoked exactly once, by Close, to drop that ref.
func Open(ctx context.Context, b *build.Build, className string, argsValue any, e env.Environment, log LogSink, debug DebugSink, release ReleaseFunc) (*Session, error) {
	if !b.IsSessionClass(className) {
		return nil, &enginerr.NoSuchClass{Name: className}
	}

	cache := bridge.NewCache()
	h := &bridge.Handler{
		Env:   e,
		Cache: cache,
		Log:   bridge.LogFunc(log),
		Debug: bridge.DebugFunc(debug),
	}

	instance, err := b.NewInstance(ctx, h, className, []any{argsValue})
	if err != nil {
		cache.Stop()
		return nil, err
	}

	return &Session{
		ID:        uuid.NewString(),
		Build:     b,
		Env:       e,
		instance:  instance,
		handler:   h,
		release:   release,
		className: className,
	}, nil
}

// Call implements spec §4.6.2 Call: rejects blacklisted/underscored method
// names before ever touching the worker, then invokes
// instance[methodName](argsValue, argsValue) and applies the standard
// classification.
func (s *Session) Call(ctx context.Context, methodName string, argsValue any, timeout time.Duration) (any, error) {
	if !enginerr.IsSessionMethodAllowed(methodName) {
		return nil, enginerr.NewSessionError(404, fmt.Sprintf("method not allowed: %s", methodName))
	}
	return s.Build.CallMethod(ctx, s.handler, s.instance, methodName, argsValue, timeout)
}

// Eval implements spec §4.6.2 Eval, for debug sessions only.
func (s *Session) Eval(ctx context.Context, text string, microTimeout time.Duration) (any, error) {
	return s.Build.Eval(ctx, s.handler, text, microTimeout)
}

// Close implements spec §4.6.2 Release: best-effort instance.released(...),
// then drops the Build ref and stops the per-session cache. Releasing an
// already-released session is a no-op — a double disconnect must not
// double-decrement the Build's refcount.
func (s *Session) Close(ctx context.Context, code int, reason string) {
	s.closeOnce.Do(func() {
		_, _ = s.Build.CallMethod(ctx, s.handler, s.instance, "released",
			map[string]any{"code": code, "reason": reason}, 2*time.Second)

		if s.release != nil {
			s.release()
		}
		s.handler.Cache.Stop()
	})
}
