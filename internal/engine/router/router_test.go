package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-labs/scriptrt/internal/engine/build"
	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
	"github.com/kestrel-labs/scriptrt/internal/engine/env"
	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
	"github.com/kestrel-labs/scriptrt/internal/functionrepo"
	"github.com/kestrel-labs/scriptrt/internal/projectsettings"
	"github.com/kestrel-labs/scriptrt/internal/sourcestore"
)

// fakeSettings is a minimal in-memory projectsettings.ProjectSettings, so
// router tests never touch a real SQLite file.
type fakeSettings struct {
	apps   map[string]projectsettings.Settings
	server projectsettings.Settings
}

func (f *fakeSettings) Get(ctx context.Context, gamespace, app string) (projectsettings.Settings, error) {
	s, ok := f.apps[gamespace+"/"+app]
	if !ok {
		return projectsettings.Settings{}, context.DeadlineExceeded
	}
	return s, nil
}

func (f *fakeSettings) GetServer(ctx context.Context, gamespace string) (projectsettings.Settings, error) {
	return f.server, nil
}

// fakeSource is a minimal in-memory sourcestore.SourceStore keyed by commit,
// standing in for a git checkout.
type fakeSource struct {
	files map[string][]sourcestore.File
}

func (f *fakeSource) GetSnapshot(ctx context.Context, gamespace, project, commit string) ([]sourcestore.File, error) {
	files, ok := f.files[commit]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return files, nil
}

// fakeFunctions is a minimal in-memory functionrepo.FunctionRepo.
type fakeFunctions struct {
	byGamespace map[string]map[string]functionrepo.NameSource
}

func (f *fakeFunctions) GetWithDeps(ctx context.Context, gamespace, fnName, app string) ([]functionrepo.NameSource, error) {
	ns, ok := f.byGamespace[gamespace][fnName]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return []functionrepo.NameSource{ns}, nil
}

func newTestRouter(t *testing.T, source *fakeSource, settings *fakeSettings, functions *fakeFunctions) *Router {
	t.Helper()
	pool, err := worker.NewPool(1, 8, nil)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Shutdown(true) })

	if functions == nil {
		functions = &fakeFunctions{byGamespace: map[string]map[string]functionrepo.NameSource{}}
	}

	return New(Options{
		Pool:        pool,
		Settings:    settings,
		Source:      source,
		Functions:   functions,
		Precompile:  build.NewPrecompileCache(),
		CallTimeout: time.Second,
	})
}

const echoScript = `
register("echo", function (args) {
	return args;
});
register("needsScope", function (args) {
	return "ok";
}, 'has("admin")');
`

func TestRouterCallDispatchesAllowedFunction(t *testing.T) {
	source := &fakeSource{files: map[string][]sourcestore.File{
		"commit1": {{Name: "app.js", Text: echoScript}},
	}}
	settings := &fakeSettings{apps: map[string]projectsettings.Settings{
		"gs1/myapp": {GamespaceID: "gs1", ApplicationKey: "myapp", CurrentCommit: "commit1"},
	}}
	r := newTestRouter(t, source, settings, nil)

	result, err := r.Call(context.Background(), "gs1", "myapp", "v1", "echo", "hello", env.Environment{GamespaceID: "gs1"})
	require.NoError(t, err)
	require.Equal(t, "hello", result)
}

func TestRouterCallRejectsUnknownMethod(t *testing.T) {
	source := &fakeSource{files: map[string][]sourcestore.File{
		"commit1": {{Name: "app.js", Text: echoScript}},
	}}
	settings := &fakeSettings{apps: map[string]projectsettings.Settings{
		"gs1/myapp": {GamespaceID: "gs1", ApplicationKey: "myapp", CurrentCommit: "commit1"},
	}}
	r := newTestRouter(t, source, settings, nil)

	_, err := r.Call(context.Background(), "gs1", "myapp", "v1", "doesNotExist", nil, env.Environment{})
	require.Error(t, err)
	var nsm *enginerr.NoSuchMethod
	require.ErrorAs(t, err, &nsm)
}

func TestRouterCallRejectsBlacklistedMethod(t *testing.T) {
	source := &fakeSource{files: map[string][]sourcestore.File{
		"commit1": {{Name: "app.js", Text: echoScript}},
	}}
	settings := &fakeSettings{apps: map[string]projectsettings.Settings{
		"gs1/myapp": {GamespaceID: "gs1", ApplicationKey: "myapp", CurrentCommit: "commit1"},
	}}
	r := newTestRouter(t, source, settings, nil)

	_, err := r.Call(context.Background(), "gs1", "myapp", "v1", "release", nil, env.Environment{})
	require.Error(t, err)
}

func TestRouterCallEnforcesRequiredScope(t *testing.T) {
	source := &fakeSource{files: map[string][]sourcestore.File{
		"commit1": {{Name: "app.js", Text: echoScript}},
	}}
	settings := &fakeSettings{apps: map[string]projectsettings.Settings{
		"gs1/myapp": {GamespaceID: "gs1", ApplicationKey: "myapp", CurrentCommit: "commit1"},
	}}
	r := newTestRouter(t, source, settings, nil)

	_, err := r.Call(context.Background(), "gs1", "myapp", "v1", "needsScope", nil, env.Environment{AccessScopes: nil})
	require.Error(t, err)

	result, err := r.Call(context.Background(), "gs1", "myapp", "v1", "needsScope", nil, env.Environment{AccessScopes: []string{"admin"}})
	require.NoError(t, err)
	require.Equal(t, "ok", result)
}

func TestRouterCallServerUsesServerProject(t *testing.T) {
	source := &fakeSource{files: map[string][]sourcestore.File{
		"server-commit": {{Name: "server.js", Text: echoScript}},
	}}
	settings := &fakeSettings{server: projectsettings.Settings{
		GamespaceID:    "gs1",
		ApplicationKey: projectsettings.ServerKey,
		CurrentCommit:  "server-commit",
	}}
	r := newTestRouter(t, source, settings, nil)

	result, err := r.CallServer(context.Background(), "gs1", "echo", "from-server", env.Environment{GamespaceID: "gs1"})
	require.NoError(t, err)
	require.Equal(t, "from-server", result)
}

func TestRouterCallFunctionResolvesStandaloneFunction(t *testing.T) {
	functions := &fakeFunctions{byGamespace: map[string]map[string]functionrepo.NameSource{
		"gs1": {"echo": {Name: "echo", Source: echoScript}},
	}}
	r := newTestRouter(t, &fakeSource{files: map[string][]sourcestore.File{}}, &fakeSettings{}, functions)

	result, err := r.CallFunction(context.Background(), "gs1", "myapp", "echo", "hi", env.Environment{})
	require.NoError(t, err)
	require.Equal(t, "hi", result)
}

func TestRouterCallUnknownAppReturnsBuildError(t *testing.T) {
	r := newTestRouter(t, &fakeSource{files: map[string][]sourcestore.File{}}, &fakeSettings{apps: map[string]projectsettings.Settings{}}, nil)

	_, err := r.Call(context.Background(), "gs1", "unknown", "v1", "echo", nil, env.Environment{})
	require.Error(t, err)
	var be *enginerr.BuildError
	require.ErrorAs(t, err, &be)
}

const counterSessionScript = `
function Counter(initial) {
	this.count = initial || 0;
	this.released = false;
}
Counter.prototype.increment = function (by) {
	this.count += by;
	return this.count;
};
Counter.prototype.released = function (info) {
	this.released = true;
};
registerSession("Counter", Counter);
`

func TestRouterSessionLifecycle(t *testing.T) {
	source := &fakeSource{files: map[string][]sourcestore.File{
		"commit1": {{Name: "app.js", Text: counterSessionScript}},
	}}
	settings := &fakeSettings{apps: map[string]projectsettings.Settings{
		"gs1/myapp": {GamespaceID: "gs1", ApplicationKey: "myapp", CurrentCommit: "commit1"},
	}}
	r := newTestRouter(t, source, settings, nil)

	var logs []string
	log := func(msg string) { logs = append(logs, msg) }

	sess, err := r.OpenSession(context.Background(), "gs1", "myapp", "v1", "Counter", float64(10), env.Environment{GamespaceID: "gs1"}, log, nil)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	result, err := r.SessionCall(context.Background(), sess, "increment", float64(5))
	require.NoError(t, err)
	require.EqualValues(t, 15, result)

	r.CloseSession(context.Background(), sess, 1000, "done")
}

func TestRouterOpenSessionRejectsUnknownClass(t *testing.T) {
	source := &fakeSource{files: map[string][]sourcestore.File{
		"commit1": {{Name: "app.js", Text: counterSessionScript}},
	}}
	settings := &fakeSettings{apps: map[string]projectsettings.Settings{
		"gs1/myapp": {GamespaceID: "gs1", ApplicationKey: "myapp", CurrentCommit: "commit1"},
	}}
	r := newTestRouter(t, source, settings, nil)

	_, err := r.OpenSession(context.Background(), "gs1", "myapp", "v1", "NoSuchClass", nil, env.Environment{}, nil, nil)
	require.Error(t, err)
	var nsc *enginerr.NoSuchClass
	require.ErrorAs(t, err, &nsc)
}

func TestRouterSessionCallRejectsBlacklistedMethod(t *testing.T) {
	source := &fakeSource{files: map[string][]sourcestore.File{
		"commit1": {{Name: "app.js", Text: counterSessionScript}},
	}}
	settings := &fakeSettings{apps: map[string]projectsettings.Settings{
		"gs1/myapp": {GamespaceID: "gs1", ApplicationKey: "myapp", CurrentCommit: "commit1"},
	}}
	r := newTestRouter(t, source, settings, nil)

	sess, err := r.OpenSession(context.Background(), "gs1", "myapp", "v1", "Counter", nil, env.Environment{}, nil, nil)
	require.NoError(t, err)
	defer r.CloseSession(context.Background(), sess, 1000, "test teardown")

	_, err = r.SessionCall(context.Background(), sess, "release", nil)
	require.Error(t, err)
}
