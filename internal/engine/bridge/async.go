package bridge

import (
	"github.com/dop251/goja"

	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
)

// Work is host-side blocking work (an HTTP fetch, a downstream RPC, a store
// read) run off the worker goroutine. It must not touch vm or any goja.Value
// captured from it — those belong to the worker goroutine only.
type Work func() (any, error)

// Async implements spec §4.5's host API async bridge: it creates a Promise
// on vm, launches work on a fresh goroutine immediately (never blocking the
// worker), and once work finishes, posts a completion job back onto w that
// resolves or rejects the Promise on the correct isolate. Every asynchronous
// host API method (web.get, store.*, downstream.request, ...) is built as a
// thin adapter from its Go call to a Work closure passed here.
//
// The returned goja.Value is the Promise immediately handed back to the
// calling script; work has not necessarily even started by the time this
// function returns.
func Async(w *worker.Worker, vm *goja.Runtime, work Work) goja.Value {
	promise, resolve, reject := vm.NewPromise()

	go func() {
		result, err := work()
		CompleteOnWorker(w, func(vm2 *goja.Runtime) {
			if err != nil {
				_ = reject(RejectionValue(vm2, err))
				return
			}
			_ = resolve(vm2.ToValue(result))
		})
	}()

	return vm.ToValue(promise)
}

// AsyncValue is like Async but the Work closure produces a goja.Value
// directly (e.g. one already built from a conversion helper), skipping the
// implicit vm2.ToValue(result) wrapping in the completion job.
func AsyncValue(w *worker.Worker, vm *goja.Runtime, work func() (goja.Value, error)) goja.Value {
	promise, resolve, reject := vm.NewPromise()

	go func() {
		result, err := work()
		CompleteOnWorker(w, func(vm2 *goja.Runtime) {
			if err != nil {
				_ = reject(RejectionValue(vm2, err))
				return
			}
			_ = resolve(result)
		})
	}()

	return vm.ToValue(promise)
}
