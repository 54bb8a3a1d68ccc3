package build

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-labs/scriptrt/internal/engine/bridge"
	"github.com/kestrel-labs/scriptrt/internal/engine/hostapi"
	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
	"github.com/kestrel-labs/scriptrt/internal/sourcestore"
)

func newTestBuild(t *testing.T, files []sourcestore.File) *Build {
	t.Helper()
	w, err := worker.New("t", worker.Options{QueueSize: 8})
	require.NoError(t, err)
	t.Cleanup(func() { w.Shutdown(true) })

	surface := hostapi.NewSurface(w, nil, nil, nil, false)
	b, err := New(context.Background(), Options{
		Gamespace: "gs1",
		Project:   "myapp",
		Commit:    "c1",
		Worker:    w,
		Surface:   surface,
		Files:     files,
	})
	require.NoError(t, err)
	return b
}

const sampleScript = `
register("add", function (args) {
	return args.a + args.b;
});
register("restricted", function (args) {
	return "secret";
}, 'has("admin")');

function Counter(initial) {
	this.count = initial || 0;
}
Counter.prototype.increment = function (args) {
	this.count += (args && args.by) || 1;
	return this.count;
};
registerSession("Counter", Counter);
`

func TestNewScansGlobalsForCallablesAndSessionClasses(t *testing.T) {
	b := newTestBuild(t, []sourcestore.File{{Name: "app.js", Text: sampleScript}})

	require.True(t, b.IsCallable("add"))
	require.True(t, b.IsCallable("restricted"))
	require.False(t, b.IsCallable("Counter"))
	require.True(t, b.IsSessionClass("Counter"))
	require.False(t, b.IsSessionClass("add"))

	scope, ok := b.RequiredCallScope("restricted")
	require.True(t, ok)
	require.Contains(t, scope, "admin")

	_, ok = b.RequiredCallScope("add")
	require.False(t, ok)
}

func TestBuildIDIsStableForIdenticalFingerprint(t *testing.T) {
	require.Equal(t, NewID("gs1", "app", "c1"), NewID("gs1", "app", "c1"))
	require.NotEqual(t, NewID("gs1", "app", "c1"), NewID("gs1", "app", "c2"))
}

func TestCallInvokesRegisteredFunction(t *testing.T) {
	b := newTestBuild(t, []sourcestore.File{{Name: "app.js", Text: sampleScript}})
	h := &bridge.Handler{Cache: bridge.NewCache()}
	defer h.Cache.Stop()

	result, err := b.Call(context.Background(), h, "add", map[string]any{"a": float64(2), "b": float64(3)}, time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 5, result)
}

func TestCallUnknownMethodReturnsNoSuchMethod(t *testing.T) {
	b := newTestBuild(t, []sourcestore.File{{Name: "app.js", Text: sampleScript}})
	h := &bridge.Handler{Cache: bridge.NewCache()}
	defer h.Cache.Stop()

	_, err := b.Call(context.Background(), h, "doesNotExist", nil, time.Second)
	require.Error(t, err)
}

func TestNewInstanceAndCallMethodRoundTrip(t *testing.T) {
	b := newTestBuild(t, []sourcestore.File{{Name: "app.js", Text: sampleScript}})
	h := &bridge.Handler{Cache: bridge.NewCache()}
	defer h.Cache.Stop()

	instance, err := b.NewInstance(context.Background(), h, "Counter", []any{float64(10)})
	require.NoError(t, err)
	require.NotNil(t, instance)

	result, err := b.CallMethod(context.Background(), h, instance, "increment", map[string]any{"by": float64(5)}, time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 15, result)
}

func TestEvalRunsArbitraryExpression(t *testing.T) {
	b := newTestBuild(t, []sourcestore.File{{Name: "app.js", Text: sampleScript}})
	h := &bridge.Handler{Cache: bridge.NewCache()}
	defer h.Cache.Stop()

	result, err := b.Eval(context.Background(), h, "1 + 41", time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 42, result)
}

// TestCallTimesOutAndTerminatesWorker exercises a synchronous infinite loop,
// which is caught by the fixed micro-timeout (not the caller-supplied call
// timeout below, which only bounds waiting on an already-returned Promise).
func TestCallTimesOutAndTerminatesWorker(t *testing.T) {
	busyScript := `register("spin", function (args) { while (true) {} });`
	b := newTestBuild(t, []sourcestore.File{{Name: "app.js", Text: busyScript}})
	h := &bridge.Handler{Cache: bridge.NewCache()}
	defer h.Cache.Stop()

	start := time.Now()
	_, err := b.Call(context.Background(), h, "spin", nil, 20*time.Millisecond)
	require.Error(t, err)
	require.Less(t, time.Since(start), DefaultCallTimeout, "a synchronous hang must be caught by the micro-timeout, not the full call timeout")
}

// TestCallAsyncResultRespectsCustomCallTimeout exercises the phase the 20ms
// argument above does NOT govern: an async call that returns a Promise whose
// resolution the host never posts (nothing ever resolves it) is bounded by
// the caller-supplied call timeout, not the fixed micro-timeout.
func TestCallAsyncResultRespectsCustomCallTimeout(t *testing.T) {
	hangingScript := `register("neverResolves", function (args) { return new Promise(function () {}); });`
	b := newTestBuild(t, []sourcestore.File{{Name: "app.js", Text: hangingScript}})
	h := &bridge.Handler{Cache: bridge.NewCache()}
	defer h.Cache.Stop()

	start := time.Now()
	_, err := b.Call(context.Background(), h, "neverResolves", nil, 30*time.Millisecond)
	require.Error(t, err)
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	require.Less(t, elapsed, time.Second)
}
