package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-labs/scriptrt/internal/engine/build"
	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
	"github.com/kestrel-labs/scriptrt/internal/engine/env"
	"github.com/kestrel-labs/scriptrt/internal/engine/hostapi"
	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
	"github.com/kestrel-labs/scriptrt/internal/sourcestore"
)

const counterScript = `
function Counter(initial) {
	this.count = initial || 0;
	this.releasedReason = null;
}
Counter.prototype.increment = function (by) {
	this.count += by;
	return this.count;
};
Counter.prototype.release = function () {
	return "should never be reachable";
};
Counter.prototype.released = function (info) {
	this.releasedReason = info && info.reason;
	log("released:" + (info && info.reason));
};
registerSession("Counter", Counter);
`

func newTestBuild(t *testing.T, script string) *build.Build {
	t.Helper()
	w, err := worker.New("t", worker.Options{QueueSize: 8})
	require.NoError(t, err)
	t.Cleanup(func() { w.Shutdown(true) })

	surface := hostapi.NewSurface(w, nil, nil, nil, false)
	b, err := build.New(context.Background(), build.Options{
		Gamespace: "gs1",
		Project:   "myapp",
		Commit:    "c1",
		Worker:    w,
		Surface:   surface,
		Files:     []sourcestore.File{{Name: "app.js", Text: script}},
	})
	require.NoError(t, err)
	return b
}

func TestOpenRejectsUnknownClass(t *testing.T) {
	b := newTestBuild(t, counterScript)
	_, err := Open(context.Background(), b, "NoSuchClass", nil, env.Environment{}, nil, nil, nil)
	require.Error(t, err)
	var nsc *enginerr.NoSuchClass
	require.ErrorAs(t, err, &nsc)
}

func TestOpenCallCloseLifecycle(t *testing.T) {
	b := newTestBuild(t, counterScript)

	var released bool
	release := func() { released = true }

	s, err := Open(context.Background(), b, "Counter", float64(10), env.Environment{}, nil, nil, release)
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)

	result, err := s.Call(context.Background(), "increment", float64(5), time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 15, result)

	s.Close(context.Background(), 1000, "test done")
	require.True(t, released, "Close must invoke the ReleaseFunc")
}

func TestCallRejectsBlacklistedMethod(t *testing.T) {
	b := newTestBuild(t, counterScript)
	s, err := Open(context.Background(), b, "Counter", nil, env.Environment{}, nil, nil, nil)
	require.NoError(t, err)
	defer s.Close(context.Background(), 1000, "teardown")

	_, err = s.Call(context.Background(), "release", nil, time.Second)
	require.Error(t, err)
	var se *enginerr.SessionError
	require.ErrorAs(t, err, &se)
}

func TestEvalRunsExpressionAgainstSessionWorker(t *testing.T) {
	b := newTestBuild(t, counterScript)
	s, err := Open(context.Background(), b, "Counter", nil, env.Environment{}, nil, nil, nil)
	require.NoError(t, err)
	defer s.Close(context.Background(), 1000, "teardown")

	result, err := s.Eval(context.Background(), "2 * 21", time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 42, result)
}

func TestCloseInvokesReleasedWithReasonLogged(t *testing.T) {
	b := newTestBuild(t, counterScript)

	var logs []string
	log := func(msg string) { logs = append(logs, msg) }

	s, err := Open(context.Background(), b, "Counter", nil, env.Environment{}, log, nil, nil)
	require.NoError(t, err)

	s.Close(context.Background(), 1000, "shutting down")

	require.Contains(t, logs, "released:shutting down")
}

func TestCloseIsIdempotent(t *testing.T) {
	b := newTestBuild(t, counterScript)

	var releaseCalls int
	release := func() { releaseCalls++ }

	var logs []string
	log := func(msg string) { logs = append(logs, msg) }

	s, err := Open(context.Background(), b, "Counter", nil, env.Environment{}, log, nil, release)
	require.NoError(t, err)

	s.Close(context.Background(), 1000, "first disconnect")
	s.Close(context.Background(), 1000, "second disconnect")

	require.Equal(t, 1, releaseCalls, "a double Close must not double-release the Build ref")
	released := 0
	for _, l := range logs {
		if l == "released:first disconnect" || l == "released:second disconnect" {
			released++
		}
	}
	require.Equal(t, 1, released, "released() must run at most once")
}
