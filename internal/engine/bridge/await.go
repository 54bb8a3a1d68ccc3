package bridge

import (
	"errors"

	"github.com/dop251/goja"

	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
	"github.com/kestrel-labs/scriptrt/internal/engine/value"
	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
)

// IsPromise duck-types v as a thenable: any object exposing a callable
// "then" property, matching the conversion design note's preference for
// duck typing over a hard dependency on goja's concrete Promise type.
func IsPromise(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok {
		return false
	}
	_, callable := goja.AssertFunction(obj.Get("then"))
	return callable
}

// AwaitPromise attaches .then(resolve, reject) to a thenable returned by a
// JS call and returns a *worker.Future that settles with the converted
// (spec §6) native Go value or a classified Go error, per spec §4.6.1 step 3
// and §9's exception-marshalling design note. The resolve/reject callbacks
// run on the worker goroutine owning vm, so the goja→Go conversion happens
// there too — the Future itself only ever carries plain Go data, safe to
// read from any goroutine. Must be called on the worker goroutine owning vm
// (i.e. from inside a Fn passed to Submit/RunSync).
func AwaitPromise(vm *goja.Runtime, v goja.Value) *worker.Future {
	fut := worker.NewFuture()
	obj := v.(*goja.Object)
	thenFn, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		fut.Complete(nil, enginerr.NewExecutionError(500, "value is not thenable", ""))
		return fut
	}

	resolveCb := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		fut.Complete(value.Convert(vm, call.Argument(0)), nil)
		return goja.Undefined()
	})
	rejectCb := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		fut.Complete(nil, ClassifyRejection(vm, call.Argument(0)))
		return goja.Undefined()
	})

	if _, err := thenFn(v, resolveCb, rejectCb); err != nil {
		fut.Complete(nil, enginerr.NewExecutionError(500, err.Error(), ""))
	}
	return fut
}

// ClassifyException turns a goja call error — typically a *goja.Exception
// wrapping a thrown value — into the engine's canonical error taxonomy,
// reusing the same {code, message}/stack classification AwaitPromise applies
// to promise rejections (spec §7).
func ClassifyException(vm *goja.Runtime, err error) error {
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			var term *enginerr.TerminationError
			if errors.As(cause, &term) {
				return enginerr.NewAPIError(408, term.Error())
			}
			return cause
		}
		return enginerr.NewAPIError(408, interrupted.Error())
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return ClassifyRejection(vm, exc.Value())
	}
	return enginerr.NewExecutionError(500, err.Error(), "")
}

// ClassifyRejection turns a JS promise-rejection value or thrown exception
// into the engine's canonical error taxonomy, per spec §9's marshalling
// design note:
//   - a JS Error with code/message properties -> APIError(code, message)
//   - a JS Error with a stack property but no code -> ExecutionError(500, msg, stack)
//   - anything else -> ExecutionError(500, String(reason), "")
func ClassifyRejection(vm *goja.Runtime, reason goja.Value) error {
	if reason == nil || goja.IsUndefined(reason) || goja.IsNull(reason) {
		return enginerr.NewExecutionError(500, "undefined", "")
	}

	if obj, ok := reason.(*goja.Object); ok {
		codeVal := obj.Get("code")
		msgVal := obj.Get("message")
		if codeVal != nil && !goja.IsUndefined(codeVal) {
			code := int(codeVal.ToInteger())
			msg := reason.String()
			if msgVal != nil && !goja.IsUndefined(msgVal) {
				msg = msgVal.String()
			}
			return enginerr.NewAPIError(code, msg)
		}

		stackVal := obj.Get("stack")
		msg := reason.String()
		if msgVal != nil && !goja.IsUndefined(msgVal) {
			msg = msgVal.String()
		}
		stack := ""
		if stackVal != nil && !goja.IsUndefined(stackVal) {
			stack = stackVal.String()
		}
		return enginerr.NewExecutionError(500, msg, stack)
	}

	return enginerr.NewExecutionError(500, reason.String(), "")
}

// RejectionValue constructs the JS-visible value a host-initiated Promise
// (created by a host API method, spec §4.4) should reject with for a given
// Go error, so in-script try/catch sees the same {code, message} shape a
// script-thrown Error(code, message) would produce.
func RejectionValue(vm *goja.Runtime, err error) goja.Value {
	code := 500
	if c, ok := err.(enginerr.Coded); ok {
		code = c.Code()
	}
	msg := err.Error()
	var internal *enginerr.InternalError
	if errors.As(err, &internal) {
		msg = "Internal error: " + internal.Error()
	}
	obj := vm.NewObject()
	_ = obj.Set("code", code)
	_ = obj.Set("message", msg)
	_ = obj.Set("name", "APIError")
	return obj
}
