package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja_nodejs/require"
)

// Pool bounds how many Workers may be live at once, at N = js_workers
// (spec §4.1/§5's "N single-threaded isolates"). A Worker is never shared
// between unrelated Builds: Acquire starts a fresh isolate — its own event
// loop, its own goja.Runtime — dedicated to exactly one Build for that
// Build's whole lifetime (spec §4.2 step 1, "create a fresh context").
// Release tears that isolate down entirely and frees its slot so a later
// Build can reuse it. Pool only ever enforces the concurrency cap; it keeps
// no notion of "the next worker in rotation".
type Pool struct {
	registry  *require.Registry
	queueSize int

	sem chan struct{}

	mu    sync.Mutex
	live  map[*Worker]struct{}
	count uint64
}

// NewPool prepares a Pool capped at n concurrently-live Workers, each
// started (on Acquire) with the given per-worker queue size and a shared
// require registry, so native/stdlib modules are registered identically
// across isolates.
func NewPool(n, queueSize int, registry *require.Registry) (*Pool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("worker pool: n must be > 0, got %d", n)
	}
	return &Pool{
		registry:  registry,
		queueSize: queueSize,
		sem:       make(chan struct{}, n),
		live:      map[*Worker]struct{}{},
	}, nil
}

// Acquire blocks until a slot is free, then starts and returns a brand-new
// Worker — its own isolate — dedicated to exactly one Build. The caller must
// call Release exactly once, when that Build is destroyed, to tear the
// isolate down and reclaim the slot.
func (p *Pool) Acquire(ctx context.Context) (*Worker, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	p.count++
	name := fmt.Sprintf("worker-%d", p.count)
	p.mu.Unlock()

	w, err := New(name, Options{QueueSize: p.queueSize, Registry: p.registry})
	if err != nil {
		<-p.sem
		return nil, fmt.Errorf("worker pool: starting %s: %w", name, err)
	}

	p.mu.Lock()
	p.live[w] = struct{}{}
	p.mu.Unlock()
	return w, nil
}

// Release shuts w's isolate down — dropping its goja.Runtime so the Build's
// globals are reclaimed — and frees the slot Acquire consumed for it. A
// no-op if w is not (or is no longer) tracked by this Pool.
func (p *Pool) Release(w *Worker) {
	p.mu.Lock()
	_, ok := p.live[w]
	delete(p.live, w)
	p.mu.Unlock()
	if !ok {
		return
	}
	w.Shutdown(false)
	<-p.sem
}

// Size returns the pool's capacity (N = js_workers), not the number of
// Workers currently live.
func (p *Pool) Size() int { return cap(p.sem) }

// Workers returns a snapshot of the currently-live Workers, for
// introspection (dashboard/metrics) only — callers must not submit jobs to
// them directly.
func (p *Pool) Workers() []*Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Worker, 0, len(p.live))
	for w := range p.live {
		out = append(out, w)
	}
	return out
}

// Shutdown tears down every currently-live Worker. If wait is true, each
// drains its queue before this returns.
func (p *Pool) Shutdown(wait bool) {
	p.mu.Lock()
	workers := make([]*Worker, 0, len(p.live))
	for w := range p.live {
		workers = append(workers, w)
	}
	p.live = map[*Worker]struct{}{}
	p.mu.Unlock()

	for _, w := range workers {
		w.Shutdown(wait)
	}
}
