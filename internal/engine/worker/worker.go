// Package worker implements the capped pool of single-threaded JS execution
// contexts described in spec §4.1: each Worker owns one goja isolate (via a
// goja_nodejs event loop) and a bounded job queue, and exposes an
// async-from-outside, sync-from-inside programming model. It is the
// lowest-level component of the execution engine.
package worker

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"

	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
	"github.com/kestrel-labs/scriptrt/internal/goroutineid"
)

// Job is a unit of work dispatched to a Worker's isolate. Fn receives the
// goja.Runtime bound to the worker's isolate and must not retain it beyond
// the call.
type Fn func(vm *goja.Runtime) (any, error)

// Worker is a single named thread-plus-isolate pair.
type Worker struct {
	name       string
	loop       *eventloop.EventLoop
	vm         *goja.Runtime
	goroutine  atomic.Int64
	slots      chan struct{} // bounded queue: one slot held per in-flight job
	shutdownFn atomic.Bool
}

// Options configures a Worker.
type Options struct {
	// QueueSize bounds the number of jobs that may be in flight (submitted
	// but not yet settled) at once. Submit/SubmitYield return WorkerBusy
	// once the bound is reached.
	QueueSize int
	// Registry is an optional CommonJS require registry for the event loop.
	// May be nil. stdlib.js is not loaded through it: build.New evaluates it
	// as a plain script.
	Registry *require.Registry
}

// New starts a new Worker: a goroutine running a goja_nodejs event loop,
// which is the thread in "one isolate per thread" (§4.1 rationale).
func New(name string, opts Options) (*Worker, error) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(opts.Registry),
		eventloop.EnableConsole(false),
	)
	loop.Start()

	w := &Worker{
		name:  name,
		loop:  loop,
		slots: make(chan struct{}, opts.QueueSize),
	}

	init := make(chan error, 1)
	if !loop.RunOnLoop(func(vm *goja.Runtime) {
		w.vm = vm
		w.goroutine.Store(goroutineid.Get())
		init <- nil
	}) {
		return nil, fmt.Errorf("worker %s: event loop failed to start", name)
	}
	if err := <-init; err != nil {
		return nil, err
	}
	return w, nil
}

// Name returns the worker's name, used in WorkerBusy errors.
func (w *Worker) Name() string { return w.name }

// OnGoroutine reports whether the calling goroutine is this worker's loop
// goroutine, allowing callers that might already be running inside a job
// (e.g. a host API callback resuming JS) to avoid a pointless round trip.
func (w *Worker) OnGoroutine() bool {
	return goroutineid.Get() == w.goroutine.Load()
}

func (w *Worker) acquireSlot() bool {
	select {
	case w.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (w *Worker) releaseSlot() {
	select {
	case <-w.slots:
	default:
	}
}

// Submit enqueues fn and returns a Future that settles with its result once
// fn returns. Fails with *enginerr.WorkerBusy if the queue is full.
func (w *Worker) Submit(fn Fn) (*Future, error) {
	if w.shutdownFn.Load() {
		return nil, errors.New("worker: shut down")
	}
	if !w.acquireSlot() {
		return nil, &enginerr.WorkerBusy{Worker: w.name}
	}

	fut := NewFuture()
	ok := w.loop.RunOnLoop(func(vm *goja.Runtime) {
		defer w.releaseSlot()
		value, err := fn(vm)
		fut.Complete(value, err)
	})
	if !ok {
		w.releaseSlot()
		return nil, errors.New("worker: event loop not running")
	}
	return fut, nil
}

// SubmitYield enqueues fn and returns a two-stage future: the outer Future
// resolves, carrying the inner *Future, the moment fn actually *starts*
// running on the worker goroutine (before fn is called) — used to
// distinguish a JS top-level call that returned synchronously from one that
// went async (spec §4.1).
func (w *Worker) SubmitYield(fn Fn) (*Future, error) {
	if w.shutdownFn.Load() {
		return nil, errors.New("worker: shut down")
	}
	if !w.acquireSlot() {
		return nil, &enginerr.WorkerBusy{Worker: w.name}
	}

	outer := NewFuture()
	inner := NewFuture()
	ok := w.loop.RunOnLoop(func(vm *goja.Runtime) {
		defer w.releaseSlot()
		outer.Complete(inner, nil) // started_hook
		value, err := fn(vm)
		inner.Complete(value, err)
	})
	if !ok {
		w.releaseSlot()
		return nil, errors.New("worker: event loop not running")
	}
	return outer, nil
}

// Terminate requests the isolate abort whatever script is currently running
// (used on hard timeout). The in-flight job's Fn will observe a
// *goja.InterruptedError from the VM; callers should translate that into an
// *enginerr.TerminationError. Safe to call from any goroutine.
func (w *Worker) Terminate(reason string) {
	if w.vm != nil {
		w.vm.Interrupt(&enginerr.TerminationError{Reason: reason})
	}
}

// Shutdown requests the worker's event loop stop. If wait is true, it blocks
// until all queued jobs have drained.
func (w *Worker) Shutdown(wait bool) {
	w.shutdownFn.Store(true)
	if wait {
		w.loop.Stop()
	} else {
		go w.loop.Stop()
	}
}

// RunSync runs fn on the worker goroutine and blocks for its result,
// bypassing the bounded queue (used for setup/teardown paths that must not
// be rejected by backpressure, e.g. build compilation).
func (w *Worker) RunSync(fn Fn) (any, error) {
	errCh := make(chan struct{})
	var value any
	var err error
	ok := w.loop.RunOnLoop(func(vm *goja.Runtime) {
		value, err = fn(vm)
		close(errCh)
	})
	if !ok {
		return nil, errors.New("worker: event loop not running")
	}
	<-errCh
	return value, err
}
