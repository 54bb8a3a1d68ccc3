package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
	"github.com/kestrel-labs/scriptrt/internal/engine/env"
	"github.com/kestrel-labs/scriptrt/internal/sourcestore"
)

func TestDebugSessionUploadStartCallClose(t *testing.T) {
	r := newTestRouter(t, &fakeSource{files: map[string][]sourcestore.File{}}, &fakeSettings{}, nil)

	d := r.NewDebugSession("gs1", "Counter")
	require.NoError(t, d.Upload("app.js", counterSessionScript))

	var logs []string
	err := d.Start(context.Background(), float64(1), env.Environment{GamespaceID: "gs1"}, func(msg string) { logs = append(logs, msg) }, nil)
	require.NoError(t, err)

	result, err := d.Call(context.Background(), "increment", float64(4))
	require.NoError(t, err)
	require.EqualValues(t, 5, result)

	d.Close(context.Background(), 1000, "done")
}

func TestDebugSessionUploadReplacesExistingFile(t *testing.T) {
	r := newTestRouter(t, &fakeSource{files: map[string][]sourcestore.File{}}, &fakeSettings{}, nil)
	d := r.NewDebugSession("gs1", "Counter")

	require.NoError(t, d.Upload("app.js", "stale source"))
	require.NoError(t, d.Upload("app.js", counterSessionScript))
	require.Len(t, d.files, 1)
	require.Equal(t, counterSessionScript, d.files[0].Text)
}

func TestDebugSessionUploadAfterStartRejected(t *testing.T) {
	r := newTestRouter(t, &fakeSource{files: map[string][]sourcestore.File{}}, &fakeSettings{}, nil)
	d := r.NewDebugSession("gs1", "Counter")
	require.NoError(t, d.Upload("app.js", counterSessionScript))
	require.NoError(t, d.Start(context.Background(), nil, env.Environment{}, nil, nil))
	defer d.Close(context.Background(), 1000, "teardown")

	err := d.Upload("app.js", "ignored")
	var se *enginerr.SessionError
	require.ErrorAs(t, err, &se)
}

func TestDebugSessionStartUnknownClassReturnsNoSuchClass(t *testing.T) {
	r := newTestRouter(t, &fakeSource{files: map[string][]sourcestore.File{}}, &fakeSettings{}, nil)
	d := r.NewDebugSession("gs1", "NoSuchClass")
	require.NoError(t, d.Upload("app.js", counterSessionScript))

	err := d.Start(context.Background(), nil, env.Environment{}, nil, nil)
	require.Error(t, err)
	var nsc *enginerr.NoSuchClass
	require.ErrorAs(t, err, &nsc)
}

func TestDebugSessionCallBeforeStartReturnsSessionError(t *testing.T) {
	r := newTestRouter(t, &fakeSource{files: map[string][]sourcestore.File{}}, &fakeSettings{}, nil)
	d := r.NewDebugSession("gs1", "Counter")

	_, err := d.Call(context.Background(), "increment", nil)
	var se *enginerr.SessionError
	require.ErrorAs(t, err, &se)
}
