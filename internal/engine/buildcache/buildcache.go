// Package buildcache implements spec §4.3: the Build Cache maps
// (gamespace, project, commit) to a live *build.Build with a refcount and a
// 30-second idle-release window, and ensures at most one in-flight
// compilation per fingerprint even under concurrent callers.
package buildcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kestrel-labs/scriptrt/internal/engine/build"
	"github.com/kestrel-labs/scriptrt/internal/engine/hostapi"
	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
	"github.com/kestrel-labs/scriptrt/internal/sourcestore"
)

// Loader resolves everything New needs to assemble a Build for a given
// fingerprint: the source snapshot, the worker to put it on, and the host
// API surface to install.
type Loader interface {
	LoadFiles(ctx context.Context, gamespace, project, commit string) ([]sourcestore.File, error)
	// NextWorker acquires a fresh Worker dedicated to one new Build — its own
	// isolate, never shared with any other Build (spec §4.2 step 1). It may
	// block until the pool's js_workers concurrency cap has a free slot.
	NextWorker(ctx context.Context) (*worker.Worker, error)
	// ReleaseWorker tears w down once the Build resident on it is destroyed,
	// reclaiming its isolate (globals included) and freeing its pool slot.
	ReleaseWorker(w *worker.Worker)
	// Surface builds the host API surface for a Build identified by project
	// (the same string passed to LoadFiles/GetOrCreate) — the loader decides
	// from project alone whether this is the privileged Server Code build
	// (spec §4.8), so Loader.GetOrCreate callers never need to pass an
	// isServer flag through the cache explicitly.
	Surface(w *worker.Worker, project string) *hostapi.Surface
}

// entry wraps a Build with the refcount/idle-timer bookkeeping spec §3
// assigns to it; Build itself stays a pure compiled-environment value.
type entry struct {
	b        *build.Build
	mu       sync.Mutex
	refcount int
	timer    *time.Timer
}

// Cache is the default Build Cache implementation.
type Cache struct {
	loader Loader
	// IdleWindow is the idle duration before a zero-refcount build is
	// destroyed (spec §4.3, default 30s).
	IdleWindow time.Duration

	mu      sync.Mutex
	entries map[build.ID]*entry
	group   singleflight.Group
}

// New returns a Cache backed by loader, with the default 30s idle window.
func New(loader Loader) *Cache {
	return &Cache{loader: loader, IdleWindow: 30 * time.Second, entries: map[build.ID]*entry{}}
}

// GetOrCreate resolves (gamespace, project, commit) to a live Build,
// incrementing its refcount. Concurrent callers for the same fingerprint
// share one in-flight compilation (singleflight), per spec §4.3's
// "at-most-one concurrent build per fingerprint" invariant.
func (c *Cache) GetOrCreate(ctx context.Context, gamespace, project, commit string) (*build.Build, error) {
	id := build.NewID(gamespace, project, commit)

	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		c.mu.Unlock()
		e.mu.Lock()
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.refcount++
		e.mu.Unlock()
		return e.b, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(string(id), func() (any, error) {
		w, err := c.loader.NextWorker(ctx)
		if err != nil {
			return nil, fmt.Errorf("buildcache: acquiring worker for %s/%s@%s: %w", gamespace, project, commit, err)
		}
		files, err := c.loader.LoadFiles(ctx, gamespace, project, commit)
		if err != nil {
			c.loader.ReleaseWorker(w)
			return nil, fmt.Errorf("buildcache: loading sources for %s/%s@%s: %w", gamespace, project, commit, err)
		}
		surface := c.loader.Surface(w, project)
		b, err := build.New(ctx, build.Options{
			Gamespace: gamespace, Project: project, Commit: commit,
			Worker: w, Surface: surface, Files: files,
		})
		if err != nil {
			c.loader.ReleaseWorker(w)
			return nil, err
		}

		e := &entry{b: b}
		c.mu.Lock()
		c.entries[id] = e
		c.mu.Unlock()
		return e, nil
	})
	if err != nil {
		// A failed compilation never poisons the cache (spec §7): nothing was
		// registered under id, so the next GetOrCreate retries from scratch.
		return nil, err
	}
	// Every caller sharing the compilation takes its own ref.
	e := v.(*entry)
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.refcount++
	e.mu.Unlock()
	return e.b, nil
}

// Release decrements b's refcount; at zero it starts the idle timer that
// destroys and evicts the build after IdleWindow (spec §4.3).
func (c *Cache) Release(b *build.Build) {
	c.mu.Lock()
	e, ok := c.entries[b.ID]
	c.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.refcount > 0 {
		e.refcount--
	}
	if e.refcount == 0 && e.timer == nil {
		e.timer = time.AfterFunc(c.IdleWindow, func() {
			c.destroy(b.ID)
		})
	}
}

func (c *Cache) destroy(id build.ID) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.mu.Lock()
	stillIdle := e.refcount == 0
	e.mu.Unlock()
	if !stillIdle {
		c.mu.Unlock()
		return
	}
	delete(c.entries, id)
	c.mu.Unlock()

	// Tear the build's dedicated isolate down entirely, not merely clear its
	// pending interrupt: the Build owned this Worker (and its goja.Runtime)
	// exclusively, so destroying it is what actually reclaims the globals
	// (spec §4.2 step 1 / §4.3 destroy) and frees the slot for the next Build.
	c.loader.ReleaseWorker(e.b.Worker())
}

// Size returns the number of live builds, for dashboard/metrics use.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
