package router

import (
	"context"
	"fmt"

	"github.com/kestrel-labs/scriptrt/internal/engine/build"
	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
	"github.com/kestrel-labs/scriptrt/internal/engine/env"
	"github.com/kestrel-labs/scriptrt/internal/engine/session"
	"github.com/kestrel-labs/scriptrt/internal/engine/worker"
	"github.com/kestrel-labs/scriptrt/internal/sourcestore"
)

// debugProject is the reserved buildcache-style project identifier a debug
// Build's ID is derived from; debug Builds are never actually registered in
// buildcache.Cache (spec §4.6.3: "the Build is constructed ad-hoc (not
// cached)"), so this only shapes build.NewID, not a lookup key.
const debugProject = "$debug"

// DebugSession implements spec §4.6.3: like Session, but the Build is
// assembled ad-hoc from client-uploaded files on its own one-off Worker
// rather than resolved from the shared Build cache, and uploads are only
// accepted before Start.
type DebugSession struct {
	router    *Router
	gamespace string
	className string

	files   []sourcestore.File
	started bool

	w    *worker.Worker
	sess *session.Session
}

// NewDebugSession begins a debug session for className in gamespace; no
// files are compiled until Start.
func (r *Router) NewDebugSession(gamespace, className string) *DebugSession {
	return &DebugSession{router: r, gamespace: gamespace, className: className}
}

// Upload implements spec §4.6.3 upload(filename, contents): rejected once
// Start has run. Re-uploading an existing filename replaces its contents.
func (d *DebugSession) Upload(filename, contents string) error {
	if d.started {
		return enginerr.NewSessionError(409, "cannot upload after start")
	}
	for i, f := range d.files {
		if f.Name == filename {
			d.files[i].Text = contents
			return nil
		}
	}
	d.files = append(d.files, sourcestore.File{Name: filename, Text: contents})
	return nil
}

// Start assembles the ad-hoc Build from every uploaded file and opens
// className as a session against it (spec §4.6.3/§4.6.2 Open), mirroring
// every log(...) call to debug via the debug sink.
func (d *DebugSession) Start(ctx context.Context, argsValue any, e env.Environment, log session.LogSink, debug session.DebugSink) error {
	if d.started {
		return enginerr.NewSessionError(409, "already started")
	}

	w, err := worker.New(fmt.Sprintf("debug-%s-%s", d.gamespace, d.className), worker.Options{})
	if err != nil {
		return fmt.Errorf("router: starting debug worker: %w", err)
	}

	surface := d.router.loader.Surface(w, debugProject)
	b, err := build.New(ctx, build.Options{
		Gamespace: d.gamespace,
		Project:   debugProject,
		Commit:    "",
		Worker:    w,
		Surface:   surface,
		Files:     d.files,
	})
	if err != nil {
		w.Shutdown(false)
		return err
	}

	if !b.IsSessionClass(d.className) {
		w.Shutdown(false)
		return &enginerr.NoSuchClass{Name: d.className}
	}

	release := func() { w.Shutdown(false) }
	s, err := session.Open(ctx, b, d.className, argsValue, e, log, debug, release)
	if err != nil {
		w.Shutdown(false)
		return err
	}

	d.w = w
	d.sess = s
	d.started = true
	return nil
}

// Call implements spec §4.6.2 Call against the ad-hoc debug Build.
func (d *DebugSession) Call(ctx context.Context, methodName string, argsValue any) (any, error) {
	if !d.started {
		return nil, enginerr.NewSessionError(409, "debug session not started")
	}
	return d.router.SessionCall(ctx, d.sess, methodName, argsValue)
}

// Eval implements spec §4.6.3's "eval is permitted" clause.
func (d *DebugSession) Eval(ctx context.Context, text string) (any, error) {
	if !d.started {
		return nil, enginerr.NewSessionError(409, "debug session not started")
	}
	return d.router.SessionEval(ctx, d.sess, text)
}

// Close releases the session (calling released(...) in JS) and shuts down
// the one-off debug worker.
func (d *DebugSession) Close(ctx context.Context, code int, reason string) {
	if !d.started {
		return
	}
	d.sess.Close(ctx, code, reason)
}
