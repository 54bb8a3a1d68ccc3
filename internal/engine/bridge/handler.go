// Package bridge implements the per-call Handler (spec's "PromiseContext")
// and the JS↔host asynchronous bridge protocol described in spec §4.5: a
// host API method returns a JS Promise whose executor snapshots the current
// Handler and hands off to the host scheduler without blocking the worker;
// the host coroutine later posts a completion job back onto the owning
// worker, which restores the Handler as "current" before resolving the
// Promise.
package bridge

import (
	"time"

	"github.com/dop251/goja"
	"github.com/jellydator/ttlcache/v3"

	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
	"github.com/kestrel-labs/scriptrt/internal/engine/env"
	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
)

// CacheCapacity and CacheTTL are the fixed shape of the per-handler cache
// (spec §4.4, §6 handler_cache_capacity/handler_cache_ttl_seconds).
const (
	CacheCapacity = 10
	CacheTTL      = 60 * time.Second
)

// Cache is the per-handler / per-session key→value cache described in
// spec §3/§4.4: capacity 10, TTL 60s.
type Cache struct {
	c *ttlcache.Cache[string, any]
}

// NewCache constructs a Cache with the fixed capacity/TTL. It is shared
// identically by a Session across all its calls, and is fresh per one-shot
// call Handler.
func NewCache() *Cache {
	c := ttlcache.New[string, any](
		ttlcache.WithTTL[string, any](CacheTTL),
		ttlcache.WithCapacity[string, any](CacheCapacity),
	)
	go c.Start()
	return &Cache{c: c}
}

func (c *Cache) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	item := c.c.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (c *Cache) Set(key string, value any) {
	if c == nil {
		return
	}
	c.c.Set(key, value, ttlcache.DefaultTTL)
}

// Stop releases the cache's background eviction goroutine.
func (c *Cache) Stop() {
	if c == nil {
		return
	}
	c.c.Stop()
}

// LogFunc appends a message to the current invocation's log sink.
type LogFunc func(message string)

// DebugFunc mirrors a log message to a debug sink (e.g. a JSON-RPC
// notification over an open debug-session connection). Nil when debugging
// is not enabled.
type DebugFunc func(message string)

// Handler is the transient record set as "current" before entering JS and
// read by every host API function to resolve environment/caching/logging
// (spec's PromiseContext). It is borrowed, never owned: Build owns contexts,
// Session holds a ref to Build, Handler is rebuilt per invocation and
// restored verbatim by completion jobs (see Bridge).
type Handler struct {
	Env   env.Environment
	Cache *Cache
	Log   LogFunc
	Debug DebugFunc
}

// CompleteOnWorker schedules fn to run on w with handler restored as
// "current" (via the handler parameter the host API closures already
// close over — goja has no implicit global "current", so restoration here
// simply means: run on the correct worker goroutine, in the correct
// goja.Runtime, so Promise resolution touches the right isolate). This is
// the "host coroutine posts a completion job to the worker" step of
// spec §4.5 step 3.
//
// It runs fn via RunSync rather than Submit: a pending resolution must never
// compete with new work for w's bounded queue slots, or a burst of
// concurrent calls can saturate the queue and silently drop a completion,
// leaving its awaiting JS call hung until an unrelated 408 surfaces. fn's
// execution (the resolve/reject continuation, which may resume arbitrary
// script past the original await) is itself bounded by the same
// micro-timeout that guards any other synchronous JS stretch (spec §5).
func CompleteOnWorker(w *worker.Worker, fn func(vm *goja.Runtime)) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.RunSync(func(vm *goja.Runtime) (any, error) {
			fn(vm)
			return nil, nil
		})
	}()

	select {
	case <-done:
	case <-time.After(enginerr.DefaultMicroTimeout):
		// Don't wait further: Terminate unblocks the isolate asynchronously,
		// and the spawned goroutine above will drain once RunSync returns.
		w.Terminate("resolve/reject continuation exceeded micro-timeout (" + enginerr.DefaultMicroTimeout.String() + ")")
	}
}
